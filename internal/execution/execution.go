// Package execution maintains the queryable execution index (§6
// Execution REST: list by catalog_id/path/status) alongside the
// authoritative event log, and offers the Run/Status/Cancel/Finalize
// operations the REST surface and CLI drive.
package execution

import (
	"context"
	"time"

	"github.com/noetl/noetl/internal/dsl"
	"github.com/noetl/noetl/internal/state"
)

// Row is one indexed execution summary.
type Row struct {
	ExecutionID int64     `db:"execution_id" json:"execution_id"`
	CatalogID   int64     `db:"catalog_id" json:"catalog_id"`
	Path        string    `db:"path" json:"path"`
	Version     int       `db:"version" json:"version"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Filter narrows a List call; zero values are unfiltered.
type Filter struct {
	CatalogID int64
	Path      string
	Status    string
	Limit     int
	Offset    int
}

// Store persists the execution index, separate from the event log it
// summarizes — a cache maintained alongside, not derived on every read.
type Store interface {
	Insert(ctx context.Context, row Row) error
	UpdateStatus(ctx context.Context, executionID int64, status string) error
	Get(ctx context.Context, executionID int64) (*Row, error)
	List(ctx context.Context, filter Filter) ([]Row, error)
	NextID(ctx context.Context) (int64, error)
}

// Orchestrator is the subset of orchestrator.Orchestrator that Service
// drives; kept as an interface so it can be faked in tests.
type Orchestrator interface {
	Start(ctx context.Context, executionID, catalogID int64, path string, version int, args map[string]any, pb *dsl.Playbook) error
	Cancel(ctx context.Context, executionID int64) error
	Advance(ctx context.Context, executionID int64, pb *dsl.Playbook) error
}

// Service wires the execution index to the orchestrator and event log.
type Service struct {
	store   Store
	orch    Orchestrator
	events  EventFolder
}

// EventFolder folds the full event stream of one execution into a
// Projection; *event.PostgresStore plus state.Fold satisfy this via
// the ProjectionFolder adapter in fold.go.
type EventFolder interface {
	Project(ctx context.Context, executionID int64) (*state.Projection, error)
}

// New builds a Service.
func New(store Store, orch Orchestrator, events EventFolder) *Service {
	return &Service{store: store, orch: orch, events: events}
}

// Run allocates a fresh execution id, indexes it as RUNNING, and
// starts the orchestrator.
func (s *Service) Run(ctx context.Context, catalogID int64, path string, version int, args map[string]any, pb *dsl.Playbook) (int64, error) {
	id, err := s.store.NextID(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.store.Insert(ctx, Row{
		ExecutionID: id,
		CatalogID:   catalogID,
		Path:        path,
		Version:     version,
		Status:      string(state.ExecutionRunning),
	}); err != nil {
		return 0, err
	}
	if err := s.orch.Start(ctx, id, catalogID, path, version, args, pb); err != nil {
		return 0, err
	}
	return id, nil
}

// Status folds the projection for executionID.
func (s *Service) Status(ctx context.Context, executionID int64) (*state.Projection, error) {
	return s.events.Project(ctx, executionID)
}

// List returns indexed execution summaries matching filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]Row, error) {
	return s.store.List(ctx, filter)
}

// Get returns the indexed summary for one execution.
func (s *Service) Get(ctx context.Context, executionID int64) (*Row, error) {
	return s.store.Get(ctx, executionID)
}

// Cancel asks the orchestrator to stop issuing new commands and marks
// the index entry CANCELLED; in-flight commands still fold normally.
func (s *Service) Cancel(ctx context.Context, executionID int64) error {
	if err := s.orch.Cancel(ctx, executionID); err != nil {
		return err
	}
	return s.store.UpdateStatus(ctx, executionID, string(state.ExecutionCancelled))
}

// CancellationCheck reports whether executionID has been cancelled,
// for workers that want to stop voluntarily between pipeline tasks.
func (s *Service) CancellationCheck(ctx context.Context, executionID int64) (bool, error) {
	proj, err := s.events.Project(ctx, executionID)
	if err != nil {
		return false, err
	}
	return proj.ExecutionStatus == state.ExecutionCancelled, nil
}

// Finalize re-folds the execution and, if it has reached a terminal
// status that the index has not yet recorded, updates the index entry.
// This is the safety net for index rows that missed the in-process
// update path (e.g. an orchestrator restart between Advance calls).
func (s *Service) Finalize(ctx context.Context, executionID int64) (*state.Projection, error) {
	proj, err := s.events.Project(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if proj.ExecutionStatus.IsTerminal() {
		if err := s.store.UpdateStatus(ctx, executionID, string(proj.ExecutionStatus)); err != nil {
			return nil, err
		}
	}
	return proj, nil
}
