package execution

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/noetl/noetl/internal/apperrors"
)

// PostgresStore persists the execution index, grounded on
// internal/catalog/store_postgres.go's schema-qualified sqlx pattern.
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
	return fmt.Sprintf("%s.execution_index", s.schema)
}

func (s *PostgresStore) NextID(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`SELECT nextval('%s.execution_id_seq')`, s.schema)
	var id int64
	if err := s.db.GetContext(ctx, &id, query); err != nil {
		return 0, apperrors.NewTransientError("execution.next_id", err)
	}
	return id, nil
}

func (s *PostgresStore) Insert(ctx context.Context, row Row) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (execution_id, catalog_id, path, version, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())`, s.table())
	if _, err := s.db.ExecContext(ctx, query, row.ExecutionID, row.CatalogID, row.Path, row.Version, row.Status); err != nil {
		return apperrors.NewTransientError("execution.insert", err)
	}
	return nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, executionID int64, status string) error {
	query := fmt.Sprintf(`UPDATE %s SET status = $2, updated_at = now() WHERE execution_id = $1`, s.table())
	if _, err := s.db.ExecContext(ctx, query, executionID, status); err != nil {
		return apperrors.NewTransientError("execution.update_status", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, executionID int64) (*Row, error) {
	query := fmt.Sprintf(`
		SELECT execution_id, catalog_id, path, version, status, created_at, updated_at
		FROM %s WHERE execution_id = $1`, s.table())
	var row Row
	if err := s.db.GetContext(ctx, &row, query, executionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("execution", fmt.Sprint(executionID))
		}
		return nil, apperrors.NewTransientError("execution.get", err)
	}
	return &row, nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]Row, error) {
	query := fmt.Sprintf(`
		SELECT execution_id, catalog_id, path, version, status, created_at, updated_at
		FROM %s WHERE 1=1`, s.table())
	var args []any
	n := 0
	arg := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}
	if filter.CatalogID != 0 {
		query += " AND catalog_id = " + arg(filter.CatalogID)
	}
	if filter.Path != "" {
		query += " AND path = " + arg(filter.Path)
	}
	if filter.Status != "" {
		query += " AND status = " + arg(filter.Status)
	}
	query += " ORDER BY execution_id DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	var rows []Row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperrors.NewTransientError("execution.list", err)
	}
	return rows, nil
}
