package keychain

import "context"

// Store persists keychain entries keyed by their composite cache key.
type Store interface {
	Upsert(ctx context.Context, e Entry) error
	Get(ctx context.Context, cacheKey string) (*Entry, error)
	Delete(ctx context.Context, cacheKey string) error
	ListByCatalog(ctx context.Context, catalogID int64) ([]Entry, error)

	// IncrementAccess bumps access_count and sets accessed_at = now().
	IncrementAccess(ctx context.Context, cacheKey string) error

	// DeleteExpiredWithoutAutoRenew deletes entries whose expires_at is
	// past and auto_renew is false, returning the count deleted.
	DeleteExpiredWithoutAutoRenew(ctx context.Context) (int64, error)

	// DeleteByExecution deletes every entry scoped to executionID.
	DeleteByExecution(ctx context.Context, executionID int64) (int64, error)
}
