package credential

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

// PostgresStore persists credentials, the way the secrets service's
// PostgresStore persists account secrets, replacing its per-account
// tenant scoping with a flat, globally-unique name.
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
	return fmt.Sprintf("%s.credentials", s.schema)
}

type credentialRow struct {
	ID          int64     `db:"id"`
	Name        string    `db:"name"`
	Type        string    `db:"type"`
	Ciphertext  []byte    `db:"ciphertext"`
	Meta        []byte    `db:"meta"`
	Tags        []byte    `db:"tags"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (s *PostgresStore) Upsert(ctx context.Context, name, credType string, ciphertext []byte, meta map[string]any, tags []string, description string) (Credential, error) {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return Credential{}, apperrors.NewInternalError("marshal credential meta", err)
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return Credential{}, apperrors.NewInternalError("marshal credential tags", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (name, type, ciphertext, meta, tags, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (name) DO UPDATE SET
			type = EXCLUDED.type,
			ciphertext = EXCLUDED.ciphertext,
			meta = EXCLUDED.meta,
			tags = EXCLUDED.tags,
			description = EXCLUDED.description,
			updated_at = now()
		RETURNING id, name, type, meta, tags, description, created_at, updated_at`, s.table())

	var row credentialRow
	if err := s.db.QueryRowxContext(ctx, query, name, credType, ciphertext, metaJSON, tagsJSON, description).StructScan(&row); err != nil {
		return Credential{}, apperrors.NewTransientError("credential.upsert", err)
	}
	return toCredential(row)
}

func (s *PostgresStore) GetByID(ctx context.Context, id int64) (*Credential, []byte, error) {
	query := fmt.Sprintf(`SELECT id, name, type, ciphertext, meta, tags, description, created_at, updated_at FROM %s WHERE id = $1`, s.table())
	return s.scanOne(ctx, query, id)
}

func (s *PostgresStore) GetByName(ctx context.Context, name string) (*Credential, []byte, error) {
	query := fmt.Sprintf(`SELECT id, name, type, ciphertext, meta, tags, description, created_at, updated_at FROM %s WHERE name = $1`, s.table())
	return s.scanOne(ctx, query, name)
}

func (s *PostgresStore) List(ctx context.Context, credType, query string) ([]Credential, error) {
	sqlQuery := fmt.Sprintf(`
		SELECT id, name, type, ciphertext, meta, tags, description, created_at, updated_at
		FROM %s WHERE ($1 = '' OR type = $1)
		  AND ($2 = '' OR name ILIKE '%%' || $2 || '%%' OR description ILIKE '%%' || $2 || '%%')
		ORDER BY name`, s.table())

	var rows []credentialRow
	if err := s.db.SelectContext(ctx, &rows, sqlQuery, credType, query); err != nil {
		return nil, apperrors.NewTransientError("credential.list", err)
	}

	out := make([]Credential, 0, len(rows))
	for _, r := range rows {
		c, err := toCredential(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c.Redacted())
	}
	return out, nil
}

func (s *PostgresStore) DeleteByID(ctx context.Context, id int64) error {
	return s.delete(ctx, "id = $1", id)
}

func (s *PostgresStore) DeleteByName(ctx context.Context, name string) error {
	return s.delete(ctx, "name = $1", name)
}

func (s *PostgresStore) delete(ctx context.Context, where string, arg any) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s`, s.table(), where)
	result, err := s.db.ExecContext(ctx, query, arg)
	if err != nil {
		return apperrors.NewTransientError("credential.delete", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.NewNotFoundError("credential", fmt.Sprint(arg))
	}
	return nil
}

func (s *PostgresStore) scanOne(ctx context.Context, query string, arg any) (*Credential, []byte, error) {
	var row credentialRow
	if err := s.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, apperrors.NewNotFoundError("credential", fmt.Sprint(arg))
		}
		return nil, nil, apperrors.NewTransientError("credential.get", err)
	}
	c, err := toCredential(row)
	if err != nil {
		return nil, nil, err
	}
	return &c, row.Ciphertext, nil
}

func toCredential(r credentialRow) (Credential, error) {
	var meta map[string]any
	if len(r.Meta) > 0 {
		if err := json.Unmarshal(r.Meta, &meta); err != nil {
			return Credential{}, apperrors.NewInternalError("unmarshal credential meta", err)
		}
	}
	var tags []string
	if len(r.Tags) > 0 {
		if err := json.Unmarshal(r.Tags, &tags); err != nil {
			return Credential{}, apperrors.NewInternalError("unmarshal credential tags", err)
		}
	}
	return Credential{
		ID:          r.ID,
		Name:        r.Name,
		Type:        r.Type,
		Meta:        meta,
		Tags:        tags,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}
