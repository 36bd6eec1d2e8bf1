package keychain

import (
	"context"
	"time"

	"github.com/noetl/noetl/internal/apperrors"
)

// Service implements the keychain operations (§4.11): get/set/delete,
// list_by_catalog, cleanup_expired, cleanup_execution.
type Service struct {
	store  Store
	sealer *Sealer
	now    func() time.Time
}

// New builds a Service. now defaults to time.Now when nil, overridable
// for deterministic expiry tests.
func New(store Store, sealer *Sealer, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, sealer: sealer, now: now}
}

// Get looks up a cache entry by its logical coordinates. An absent key
// yields StatusNotFound; a present-but-expired key yields StatusExpired
// without decrypting; otherwise it bumps access bookkeeping and
// returns the decrypted data.
func (s *Service) Get(ctx context.Context, keychainName string, catalogID int64, scope Scope, executionID int64) (Result, error) {
	cacheKey := CacheKey(keychainName, catalogID, scope, executionID)
	entry, err := s.store.Get(ctx, cacheKey)
	if err != nil {
		return Result{}, err
	}
	if entry == nil {
		return Result{Status: StatusNotFound}, nil
	}
	if entry.ExpiresAt != nil && entry.ExpiresAt.Before(s.now()) {
		return Result{Status: StatusExpired, ExpiresAt: entry.ExpiresAt, AutoRenew: entry.AutoRenew}, nil
	}

	data, err := s.sealer.Open(cacheKey, entry.Ciphertext)
	if err != nil {
		return Result{}, err
	}
	if err := s.store.IncrementAccess(ctx, cacheKey); err != nil {
		return Result{}, err
	}

	return Result{
		Status:      StatusFound,
		Data:        data,
		ExpiresAt:   entry.ExpiresAt,
		AutoRenew:   entry.AutoRenew,
		AccessCount: entry.AccessCount + 1,
	}, nil
}

// SetOptions configures Set's expiry handling: ExpiresAt takes
// priority over ExpiresIn, which is taken relative to the current
// instant.
type SetOptions struct {
	ExpiresAt   *time.Time
	ExpiresIn   time.Duration
	AutoRenew   bool
	RenewConfig map[string]any
}

// Set upserts the entry for the composite cache key derived from
// (name, catalogID, scope, executionID).
func (s *Service) Set(ctx context.Context, keychainName string, catalogID int64, scope Scope, executionID int64, data map[string]any, opts SetOptions) error {
	if keychainName == "" {
		return apperrors.RequiredError("name")
	}

	cacheKey := CacheKey(keychainName, catalogID, scope, executionID)
	ciphertext, err := s.sealer.Seal(cacheKey, data)
	if err != nil {
		return err
	}

	expiresAt := opts.ExpiresAt
	if expiresAt == nil && opts.ExpiresIn > 0 {
		t := s.now().Add(opts.ExpiresIn)
		expiresAt = &t
	}

	return s.store.Upsert(ctx, Entry{
		CacheKey:     cacheKey,
		KeychainName: keychainName,
		CatalogID:    catalogID,
		Scope:        scope,
		ExecutionID:  executionID,
		Ciphertext:   ciphertext,
		ExpiresAt:    expiresAt,
		AutoRenew:    opts.AutoRenew,
		RenewConfig:  opts.RenewConfig,
	})
}

// Delete removes the entry for the composite cache key.
func (s *Service) Delete(ctx context.Context, keychainName string, catalogID int64, scope Scope, executionID int64) error {
	return s.store.Delete(ctx, CacheKey(keychainName, catalogID, scope, executionID))
}

// ListByCatalog returns every entry registered under catalogID.
func (s *Service) ListByCatalog(ctx context.Context, catalogID int64) ([]Entry, error) {
	return s.store.ListByCatalog(ctx, catalogID)
}

// CleanupExpired deletes entries past expiry with auto_renew=false.
// Entries with auto_renew=true are retained for a renewal hook, which
// is outside the core contract.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredWithoutAutoRenew(ctx)
}

// CleanupExecution deletes every entry scoped to executionID.
func (s *Service) CleanupExecution(ctx context.Context, executionID int64) (int64, error) {
	return s.store.DeleteByExecution(ctx, executionID)
}
