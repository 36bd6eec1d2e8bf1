package state

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/noetl/noetl/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

// TestHappyPathExecution follows scenario 2 from the testable
// properties: execution.started, two command lifecycles, then
// execution.completed.
func TestHappyPathExecution(t *testing.T) {
	now := time.Now().UTC()
	events := []event.Event{
		{ID: 1, Type: event.TypeExecutionStarted, Payload: mustJSON(t, event.ExecutionStartedPayload{Path: "demo/hello"}), CreatedAt: now},
		{ID: 2, Type: event.TypeCommandIssued, Payload: mustJSON(t, event.CommandIssuedPayload{CommandID: "c1", Step: "start"}), CreatedAt: now},
		{ID: 3, Type: event.TypeCommandClaimed, Payload: mustJSON(t, event.CommandClaimedPayload{CommandID: "c1", WorkerID: "worker_A"}), CreatedAt: now},
		{ID: 4, Type: event.TypeCommandStarted, Payload: mustJSON(t, event.CommandStartedPayload{CommandID: "c1"}), CreatedAt: now},
		{ID: 5, Type: event.TypeCallDone, Payload: mustJSON(t, event.CallDonePayload{CommandID: "c1", CallIndex: 0}), CreatedAt: now},
		{ID: 6, Type: event.TypeCommandCompleted, Payload: mustJSON(t, event.CommandCompletedPayload{CommandID: "c1", Status: "success"}), CreatedAt: now},
		{ID: 7, Type: event.TypeCommandIssued, Payload: mustJSON(t, event.CommandIssuedPayload{CommandID: "c2", Step: "done"}), CreatedAt: now},
		{ID: 8, Type: event.TypeCommandClaimed, Payload: mustJSON(t, event.CommandClaimedPayload{CommandID: "c2", WorkerID: "worker_B"}), CreatedAt: now},
		{ID: 9, Type: event.TypeCommandStarted, Payload: mustJSON(t, event.CommandStartedPayload{CommandID: "c2"}), CreatedAt: now},
		{ID: 10, Type: event.TypeCallDone, Payload: mustJSON(t, event.CallDonePayload{CommandID: "c2", CallIndex: 0}), CreatedAt: now},
		{ID: 11, Type: event.TypeCommandCompleted, Payload: mustJSON(t, event.CommandCompletedPayload{CommandID: "c2", Status: "success"}), CreatedAt: now},
		{ID: 12, Type: event.TypeExecutionCompleted, Payload: mustJSON(t, event.ExecutionCompletedPayload{Status: string(ExecutionCompleted)}), CreatedAt: now},
	}

	p, err := Fold(events)
	require.NoError(t, err)
	assert.Equal(t, ExecutionCompleted, p.ExecutionStatus)
	assert.Equal(t, StepSucceeded, p.Steps["start"].Status)
	assert.Equal(t, StepSucceeded, p.Steps["done"].Status)
	assert.Equal(t, CommandCompleted, p.Commands["c1"].Status)
	assert.Equal(t, "worker_B", p.Commands["c2"].ClaimedBy)
}

// TestSecondClaimIgnored follows scenario 3: a second command.claimed
// for the same command id must not overwrite the winner.
func TestSecondClaimIgnored(t *testing.T) {
	events := []event.Event{
		{ID: 1, Type: event.TypeCommandIssued, Payload: mustJSON(t, event.CommandIssuedPayload{CommandID: "c1", Step: "start"})},
		{ID: 2, Type: event.TypeCommandClaimed, Payload: mustJSON(t, event.CommandClaimedPayload{CommandID: "c1", WorkerID: "worker_A"})},
		{ID: 3, Type: event.TypeCommandClaimed, Payload: mustJSON(t, event.CommandClaimedPayload{CommandID: "c1", WorkerID: "worker_B"})},
	}
	p, err := Fold(events)
	require.NoError(t, err)
	assert.Equal(t, "worker_A", p.Commands["c1"].ClaimedBy)
}

func TestExecutionStatusIsTerminalAndSticky(t *testing.T) {
	events := []event.Event{
		{ID: 1, Type: event.TypeExecutionStarted, Payload: mustJSON(t, event.ExecutionStartedPayload{})},
		{ID: 2, Type: event.TypeExecutionCompleted, Payload: mustJSON(t, event.ExecutionCompletedPayload{Status: string(ExecutionCompleted)})},
		{ID: 3, Type: event.TypeExecutionCancelled},
	}
	p, err := Fold(events)
	require.NoError(t, err)
	assert.Equal(t, ExecutionCompleted, p.ExecutionStatus)
}

func TestFoldIsIdempotentOverSamePrefix(t *testing.T) {
	events := []event.Event{
		{ID: 1, Type: event.TypeExecutionStarted, Payload: mustJSON(t, event.ExecutionStartedPayload{Path: "demo/hello"})},
		{ID: 2, Type: event.TypeVarSet, Payload: mustJSON(t, event.VarSetPayload{Name: "k", Value: "v"})},
	}
	p1, err := Fold(events)
	require.NoError(t, err)
	p2, err := Fold(append([]event.Event{}, events...))
	require.NoError(t, err)
	assert.Equal(t, p1.Variables, p2.Variables)
	assert.Equal(t, p1.ExecutionStatus, p2.ExecutionStatus)
}

func TestVarSetStoresLastValue(t *testing.T) {
	events := []event.Event{
		{ID: 1, Type: event.TypeVarSet, Payload: mustJSON(t, event.VarSetPayload{Name: "x", Value: float64(1)})},
		{ID: 2, Type: event.TypeVarSet, Payload: mustJSON(t, event.VarSetPayload{Name: "x", Value: float64(2)})},
	}
	p, err := Fold(events)
	require.NoError(t, err)
	assert.Equal(t, float64(2), p.Variables["x"])
}
