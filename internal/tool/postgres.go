package tool

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"
	"github.com/noetl/noetl/internal/apperrors"
)

// Postgres runs a SQL statement against an arbitrary DSN given in
// cfg.Auth, grounded on the teacher's database/sql + lib/pq access
// pattern used throughout its store_postgres.go files. Unlike the
// orchestrator's own store, this tool connects to whatever database
// the playbook step targets, so it opens (and closes) its own
// connection per call rather than sharing the orchestrator's pool.
type Postgres struct{}

// NewPostgres returns a Postgres tool.
func NewPostgres() *Postgres { return &Postgres{} }

// Execute runs cfg.Body["query"] with optional cfg.Body["params"]
// ([]any) against cfg.Auth["dsn"], returning result rows as
// data["rows"] (a []any whose elements are map[string]any) and their
// count as data["row_count"].
func (p *Postgres) Execute(ctx context.Context, cfg Config, _ ExecutionContext) (Result, error) {
	return TimedExecute(func() (Result, error) {
		dsn, _ := cfg.Auth["dsn"].(string)
		if dsn == "" {
			return Result{Status: StatusError, Error: "postgres tool requires auth.dsn"},
				apperrors.NewValidationError("postgres", "dsn is required")
		}
		query, _ := cfg.Body["query"].(string)
		if query == "" {
			return Result{Status: StatusError, Error: "postgres tool requires body.query"},
				apperrors.NewValidationError("postgres", "query is required")
		}
		params, _ := cfg.Body["params"].([]any)

		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return Result{Status: StatusError, Error: err.Error()}, err
		}
		defer db.Close()

		rows, err := db.QueryContext(ctx, query, params...)
		if err != nil {
			if ctx.Err() != nil {
				return Result{Status: StatusTimeout, Error: err.Error()}, err
			}
			return Result{Status: StatusError, Error: err.Error()}, nil
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return Result{Status: StatusError, Error: err.Error()}, err
		}

		var out []any
		for rows.Next() {
			values := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return Result{Status: StatusError, Error: err.Error()}, err
			}
			row := make(map[string]any, len(cols))
			for i, col := range cols {
				row[col] = values[i]
			}
			out = append(out, row)
		}
		if err := rows.Err(); err != nil {
			return Result{Status: StatusError, Error: err.Error()}, err
		}

		return Result{Status: StatusSuccess, Data: map[string]any{"rows": out, "row_count": len(out)}}, nil
	})
}
