package execution

import (
	"context"
	"testing"

	"github.com/noetl/noetl/internal/dsl"
	"github.com/noetl/noetl/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	rows   map[int64]Row
	nextID int64
}

func newMemStore() *memStore { return &memStore{rows: map[int64]Row{}} }

func (m *memStore) NextID(context.Context) (int64, error) {
	m.nextID++
	return m.nextID, nil
}

func (m *memStore) Insert(_ context.Context, row Row) error {
	m.rows[row.ExecutionID] = row
	return nil
}

func (m *memStore) UpdateStatus(_ context.Context, executionID int64, status string) error {
	row, ok := m.rows[executionID]
	if !ok {
		return nil
	}
	row.Status = status
	m.rows[executionID] = row
	return nil
}

func (m *memStore) Get(_ context.Context, executionID int64) (*Row, error) {
	row, ok := m.rows[executionID]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (m *memStore) List(context.Context, Filter) ([]Row, error) {
	var out []Row
	for _, r := range m.rows {
		out = append(out, r)
	}
	return out, nil
}

type fakeOrchestrator struct {
	started   []int64
	cancelled []int64
}

func (f *fakeOrchestrator) Start(_ context.Context, executionID, _ int64, _ string, _ int, _ map[string]any, _ *dsl.Playbook) error {
	f.started = append(f.started, executionID)
	return nil
}

func (f *fakeOrchestrator) Cancel(_ context.Context, executionID int64) error {
	f.cancelled = append(f.cancelled, executionID)
	return nil
}

func (f *fakeOrchestrator) Advance(context.Context, int64, *dsl.Playbook) error { return nil }

type fakeFolder struct {
	proj *state.Projection
}

func (f *fakeFolder) Project(context.Context, int64) (*state.Projection, error) {
	return f.proj, nil
}

func TestRunAllocatesIDIndexesAndStarts(t *testing.T) {
	store := newMemStore()
	orch := &fakeOrchestrator{}
	folder := &fakeFolder{proj: state.NewProjection()}
	svc := New(store, orch, folder)

	id, err := svc.Run(context.Background(), 10, "p", 1, map[string]any{"x": 1}, &dsl.Playbook{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, []int64{1}, orch.started)

	row, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", row.Status)
}

func TestCancelUpdatesIndex(t *testing.T) {
	store := newMemStore()
	orch := &fakeOrchestrator{}
	folder := &fakeFolder{proj: state.NewProjection()}
	svc := New(store, orch, folder)

	require.NoError(t, store.Insert(context.Background(), Row{ExecutionID: 5, Status: "RUNNING"}))
	require.NoError(t, svc.Cancel(context.Background(), 5))
	assert.Equal(t, []int64{5}, orch.cancelled)

	row, _ := store.Get(context.Background(), 5)
	assert.Equal(t, "CANCELLED", row.Status)
}

func TestFinalizeUpdatesIndexOnlyWhenTerminal(t *testing.T) {
	store := newMemStore()
	orch := &fakeOrchestrator{}
	require.NoError(t, store.Insert(context.Background(), Row{ExecutionID: 7, Status: "RUNNING"}))

	running := state.NewProjection()
	svc := New(store, orch, &fakeFolder{proj: running})
	_, err := svc.Finalize(context.Background(), 7)
	require.NoError(t, err)
	row, _ := store.Get(context.Background(), 7)
	assert.Equal(t, "RUNNING", row.Status)

	done := state.NewProjection()
	done.ExecutionStatus = state.ExecutionCompleted
	svc2 := New(store, orch, &fakeFolder{proj: done})
	_, err = svc2.Finalize(context.Background(), 7)
	require.NoError(t, err)
	row, _ = store.Get(context.Background(), 7)
	assert.Equal(t, "COMPLETED", row.Status)
}

func TestCancellationCheckReflectsProjection(t *testing.T) {
	store := newMemStore()
	orch := &fakeOrchestrator{}
	cancelled := state.NewProjection()
	cancelled.ExecutionStatus = state.ExecutionCancelled
	svc := New(store, orch, &fakeFolder{proj: cancelled})

	got, err := svc.CancellationCheck(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, got)
}
