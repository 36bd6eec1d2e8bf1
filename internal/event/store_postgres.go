package event

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/noetl/noetl/internal/apperrors"
)

// PostgresStore persists the event log in a single append-only table,
// the way PostgresStore in the secrets service persists credential
// rows, adapted to an append-only, no-update schema.
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
	return fmt.Sprintf("%s.events", s.schema)
}

// Append inserts a new event row and returns the assigned id. The
// table's id column is a bigserial primary key, so Postgres itself
// guarantees strictly increasing, globally unique ids across
// concurrent appenders.
func (s *PostgresStore) Append(ctx context.Context, executionID int64, eventType Type, payload any) (int64, error) {
	raw, err := MarshalPayload(payload)
	if err != nil {
		return 0, apperrors.NewInternalError("marshal event payload", err)
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (execution_id, event_type, payload, created_at)
		 VALUES ($1, $2, $3, now()) RETURNING id`, s.table())

	var id int64
	if err := s.db.QueryRowContext(ctx, query, executionID, string(eventType), []byte(raw)).Scan(&id); err != nil {
		return 0, apperrors.NewTransientError("event.append", err)
	}
	return id, nil
}

// Read returns events for executionID with id > fromID, ordered by id,
// limited to limit rows (0 means unbounded).
func (s *PostgresStore) Read(ctx context.Context, executionID int64, fromID int64, limit int) ([]Event, error) {
	query := fmt.Sprintf(
		`SELECT id, execution_id, event_type, payload, created_at
		 FROM %s WHERE execution_id = $1 AND id > $2 ORDER BY id ASC`, s.table())
	args := []any{executionID, fromID}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	var events []Event
	if err := s.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, apperrors.NewTransientError("event.read", err)
	}
	return events, nil
}

// Last returns the most recent event for executionID, or nil if the
// execution has no events yet.
func (s *PostgresStore) Last(ctx context.Context, executionID int64) (*Event, error) {
	query := fmt.Sprintf(
		`SELECT id, execution_id, event_type, payload, created_at
		 FROM %s WHERE execution_id = $1 ORDER BY id DESC LIMIT 1`, s.table())

	var ev Event
	if err := s.db.GetContext(ctx, &ev, query, executionID); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, apperrors.NewTransientError("event.last", err)
	}
	return &ev, nil
}

// GetByID looks up a single event by its global bigserial id.
func (s *PostgresStore) GetByID(ctx context.Context, eventID int64) (*Event, error) {
	query := fmt.Sprintf(
		`SELECT id, execution_id, event_type, payload, created_at
		 FROM %s WHERE id = $1`, s.table())

	var ev Event
	if err := s.db.GetContext(ctx, &ev, query, eventID); err != nil {
		if isNoRows(err) {
			return nil, apperrors.NewNotFoundError("event", fmt.Sprint(eventID))
		}
		return nil, apperrors.NewTransientError("event.get_by_id", err)
	}
	return &ev, nil
}

// AppendClaimIfAbsent is the claim protocol's atomicity primitive
// (§4.8): it appends a command.claimed event for commandID only if no
// such event already exists for it, in a single statement so two
// concurrent claimers cannot both succeed. claimed reports whether
// this call won the race.
func (s *PostgresStore) AppendClaimIfAbsent(ctx context.Context, executionID int64, commandID, workerID string) (eventID int64, claimed bool, err error) {
	payload, err := MarshalPayload(CommandClaimedPayload{CommandID: commandID, WorkerID: workerID})
	if err != nil {
		return 0, false, apperrors.NewInternalError("marshal claim payload", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (execution_id, event_type, payload, created_at)
		SELECT $1, $2, $3, now()
		WHERE NOT EXISTS (
			SELECT 1 FROM %s
			WHERE event_type = $2 AND payload->>'command_id' = $4
		)
		RETURNING id`, s.table(), s.table())

	var id int64
	scanErr := s.db.QueryRowContext(ctx, query, executionID, string(TypeCommandClaimed), []byte(payload), commandID).Scan(&id)
	if scanErr != nil {
		if isNoRows(scanErr) {
			return 0, false, nil
		}
		return 0, false, apperrors.NewTransientError("event.claim", scanErr)
	}
	return id, true, nil
}

// Pending returns the oldest command.issued events lacking a
// command.claimed event for their command_id, up to limit rows. A
// negative or zero limit defaults to 1, since the poll endpoint only
// ever hands one command to one asking worker at a time.
func (s *PostgresStore) Pending(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 1
	}

	query := fmt.Sprintf(`
		SELECT e.id, e.execution_id, e.event_type, e.payload, e.created_at
		FROM %s e
		WHERE e.event_type = $1
		AND NOT EXISTS (
			SELECT 1 FROM %s c
			WHERE c.event_type = $2 AND c.payload->>'command_id' = e.payload->>'command_id'
		)
		ORDER BY e.id ASC
		LIMIT $3`, s.table(), s.table())

	var events []Event
	if err := s.db.SelectContext(ctx, &events, query, string(TypeCommandIssued), string(TypeCommandClaimed), limit); err != nil {
		return nil, apperrors.NewTransientError("event.pending", err)
	}
	return events, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
