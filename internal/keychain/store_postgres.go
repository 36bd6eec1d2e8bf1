package keychain

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/noetl/noetl/internal/apperrors"
)

// PostgresStore persists keychain entries, the way the secrets
// service's PostgresStore persists rows, adapted to an upsert-by-
// composite-key schema with expiry/renewal bookkeeping.
type PostgresStore struct {
	db     *sqlx.DB
	schema string
}

func NewPostgresStore(db *sqlx.DB, schema string) *PostgresStore {
	if schema == "" {
		schema = "noetl"
	}
	return &PostgresStore{db: db, schema: schema}
}

func (s *PostgresStore) table() string {
	return fmt.Sprintf("%s.keychain", s.schema)
}

type entryRow struct {
	CacheKey     string     `db:"cache_key"`
	KeychainName string     `db:"keychain_name"`
	CatalogID    int64      `db:"catalog_id"`
	Scope        string     `db:"scope"`
	ExecutionID  int64      `db:"execution_id"`
	Ciphertext   []byte     `db:"ciphertext"`
	ExpiresAt    *time.Time `db:"expires_at"`
	AutoRenew    bool       `db:"auto_renew"`
	RenewConfig  []byte     `db:"renew_config"`
	AccessCount  int64      `db:"access_count"`
	AccessedAt   *time.Time `db:"accessed_at"`
	CreatedAt    time.Time  `db:"created_at"`
}

func (s *PostgresStore) Upsert(ctx context.Context, e Entry) error {
	renewConfig, err := json.Marshal(e.RenewConfig)
	if err != nil {
		return apperrors.NewInternalError("marshal renew_config", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (cache_key, keychain_name, catalog_id, scope, execution_id, ciphertext, expires_at, auto_renew, renew_config, access_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, now())
		ON CONFLICT (cache_key) DO UPDATE SET
			ciphertext = EXCLUDED.ciphertext,
			expires_at = EXCLUDED.expires_at,
			auto_renew = EXCLUDED.auto_renew,
			renew_config = EXCLUDED.renew_config`, s.table())

	_, err = s.db.ExecContext(ctx, query, e.CacheKey, e.KeychainName, e.CatalogID, string(e.Scope), e.ExecutionID, e.Ciphertext, e.ExpiresAt, e.AutoRenew, renewConfig)
	if err != nil {
		return apperrors.NewTransientError("keychain.upsert", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, cacheKey string) (*Entry, error) {
	query := fmt.Sprintf(`
		SELECT cache_key, keychain_name, catalog_id, scope, execution_id, ciphertext, expires_at, auto_renew, renew_config, access_count, accessed_at, created_at
		FROM %s WHERE cache_key = $1`, s.table())

	var row entryRow
	if err := s.db.GetContext(ctx, &row, query, cacheKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewTransientError("keychain.get", err)
	}
	return toEntry(row)
}

func (s *PostgresStore) Delete(ctx context.Context, cacheKey string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE cache_key = $1`, s.table())
	if _, err := s.db.ExecContext(ctx, query, cacheKey); err != nil {
		return apperrors.NewTransientError("keychain.delete", err)
	}
	return nil
}

func (s *PostgresStore) ListByCatalog(ctx context.Context, catalogID int64) ([]Entry, error) {
	query := fmt.Sprintf(`
		SELECT cache_key, keychain_name, catalog_id, scope, execution_id, ciphertext, expires_at, auto_renew, renew_config, access_count, accessed_at, created_at
		FROM %s WHERE catalog_id = $1 ORDER BY cache_key`, s.table())

	var rows []entryRow
	if err := s.db.SelectContext(ctx, &rows, query, catalogID); err != nil {
		return nil, apperrors.NewTransientError("keychain.list_by_catalog", err)
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		e, err := toEntry(r)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, nil
}

func (s *PostgresStore) IncrementAccess(ctx context.Context, cacheKey string) error {
	query := fmt.Sprintf(`UPDATE %s SET access_count = access_count + 1, accessed_at = now() WHERE cache_key = $1`, s.table())
	if _, err := s.db.ExecContext(ctx, query, cacheKey); err != nil {
		return apperrors.NewTransientError("keychain.increment_access", err)
	}
	return nil
}

func (s *PostgresStore) DeleteExpiredWithoutAutoRenew(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE expires_at IS NOT NULL AND expires_at < now() AND auto_renew = false`, s.table())
	result, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, apperrors.NewTransientError("keychain.cleanup_expired", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

func (s *PostgresStore) DeleteByExecution(ctx context.Context, executionID int64) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE execution_id = $1`, s.table())
	result, err := s.db.ExecContext(ctx, query, executionID)
	if err != nil {
		return 0, apperrors.NewTransientError("keychain.cleanup_execution", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

func toEntry(r entryRow) (*Entry, error) {
	var renewConfig map[string]any
	if len(r.RenewConfig) > 0 {
		if err := json.Unmarshal(r.RenewConfig, &renewConfig); err != nil {
			return nil, apperrors.NewInternalError("unmarshal renew_config", err)
		}
	}
	return &Entry{
		CacheKey:     r.CacheKey,
		KeychainName: r.KeychainName,
		CatalogID:    r.CatalogID,
		Scope:        Scope(r.Scope),
		ExecutionID:  r.ExecutionID,
		Ciphertext:   r.Ciphertext,
		ExpiresAt:    r.ExpiresAt,
		AutoRenew:    r.AutoRenew,
		RenewConfig:  renewConfig,
		AccessCount:  r.AccessCount,
		AccessedAt:   r.AccessedAt,
		CreatedAt:    r.CreatedAt,
	}, nil
}
