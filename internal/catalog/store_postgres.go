package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/noetl/noetl/internal/apperrors"
	"github.com/noetl/noetl/internal/dsl"
)

// PostgresStore implements Store against a schema-qualified table, the
// way the secrets service's PostgresStore persists rows, adapted to an
// append-only, versioned schema instead of an updatable one.
type PostgresStore struct {
	db     *sqlx.DB
	schema string
}

// NewPostgresStore builds a PostgresStore against schema (defaults to
// "noetl" when empty).
func NewPostgresStore(db *sqlx.DB, schema string) *PostgresStore {
	if schema == "" {
		schema = "noetl"
	}
	return &PostgresStore{db: db, schema: schema}
}

func (s *PostgresStore) table() string {
	return fmt.Sprintf("%s.catalog", s.schema)
}

func (s *PostgresStore) NextVersion(ctx context.Context, path string) (int, error) {
	query := fmt.Sprintf(`SELECT COALESCE(MAX(version), 0) + 1 FROM %s WHERE path = $1`, s.table())
	var next int
	if err := s.db.GetContext(ctx, &next, query, path); err != nil {
		return 0, apperrors.NewTransientError("catalog.next_version", err)
	}
	return next, nil
}

func (s *PostgresStore) Insert(ctx context.Context, e Entry) (int64, error) {
	meta, err := json.Marshal(e.Meta)
	if err != nil {
		return 0, apperrors.NewInternalError("marshal catalog meta", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (kind, path, version, content, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, now()) RETURNING id`, s.table())

	var id int64
	if err := s.db.QueryRowContext(ctx, query, e.Kind, e.Path, e.Version, e.Content, []byte(meta)).Scan(&id); err != nil {
		return 0, apperrors.NewTransientError("catalog.insert", err)
	}
	return id, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id int64) (*Entry, error) {
	query := fmt.Sprintf(`SELECT id, kind, path, version, content, meta, created_at FROM %s WHERE id = $1`, s.table())
	return s.scanOne(ctx, query, id)
}

func (s *PostgresStore) GetByPathVersion(ctx context.Context, path string, version int) (*Entry, error) {
	query := fmt.Sprintf(`SELECT id, kind, path, version, content, meta, created_at FROM %s WHERE path = $1 AND version = $2`, s.table())
	return s.scanOne(ctx, query, path, version)
}

func (s *PostgresStore) Latest(ctx context.Context, path string) (*Entry, error) {
	query := fmt.Sprintf(`
		SELECT id, kind, path, version, content, meta, created_at
		FROM %s WHERE path = $1 ORDER BY version DESC LIMIT 1`, s.table())
	return s.scanOne(ctx, query, path)
}

func (s *PostgresStore) AllVersions(ctx context.Context, path string) ([]Entry, error) {
	query := fmt.Sprintf(`
		SELECT id, kind, path, version, content, meta, created_at
		FROM %s WHERE path = $1 ORDER BY version ASC`, s.table())
	var rows []entryRow
	if err := s.db.SelectContext(ctx, &rows, query, path); err != nil {
		return nil, apperrors.NewTransientError("catalog.all_versions", err)
	}
	return toEntries(rows)
}

func (s *PostgresStore) List(ctx context.Context, kind string) ([]Entry, error) {
	query := fmt.Sprintf(`
		SELECT DISTINCT ON (path) id, kind, path, version, content, meta, created_at
		FROM %s`, s.table())
	args := []any{}
	if kind != "" {
		query += " WHERE kind = $1"
		args = append(args, kind)
	}
	query += " ORDER BY path, version DESC"

	var rows []entryRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperrors.NewTransientError("catalog.list", err)
	}
	return toEntries(rows)
}

func (s *PostgresStore) scanOne(ctx context.Context, query string, args ...any) (*Entry, error) {
	var row entryRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("catalog entry", fmt.Sprint(args))
		}
		return nil, apperrors.NewTransientError("catalog.get", err)
	}
	entries, err := toEntries([]entryRow{row})
	if err != nil {
		return nil, err
	}
	return &entries[0], nil
}

func toEntries(rows []entryRow) ([]Entry, error) {
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		var meta map[string]any
		if len(r.Meta) > 0 {
			if err := json.Unmarshal(r.Meta, &meta); err != nil {
				return nil, apperrors.NewInternalError("unmarshal catalog meta", err)
			}
		}
		var layout *dsl.Playbook
		if pb, err := dsl.Parse([]byte(r.Content)); err == nil {
			layout = pb
		}
		out = append(out, Entry{
			ID:        r.ID,
			Kind:      r.Kind,
			Path:      r.Path,
			Version:   r.Version,
			Content:   r.Content,
			Layout:    layout,
			Meta:      meta,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}
