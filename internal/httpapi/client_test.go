package httpapi

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noetl/noetl/internal/catalog"
	"github.com/noetl/noetl/internal/claim"
	"github.com/noetl/noetl/internal/event"
	"github.com/noetl/noetl/internal/execution"
	"github.com/noetl/noetl/internal/registry"
)

// TestControlPlaneClientRoundTrip exercises the Client adapter against
// a real NewHandler-backed server, the same way a worker process
// drives the orchestrator over HTTP.
func TestControlPlaneClientRoundTrip(t *testing.T) {
	catStore := &fakeCatalogStore{}
	catSvc := catalog.New(catStore)
	catalogID, err := catStore.Insert(context.Background(), catalog.Entry{
		Kind: "Playbook", Path: "demo/hello", Version: 1, Content: testPlaybook,
	})
	require.NoError(t, err)

	evStore := newMemEventStore()
	execStore := newMemExecutionStore()
	require.NoError(t, execStore.Insert(context.Background(), execution.Row{
		ExecutionID: 1, CatalogID: catalogID, Path: "demo/hello", Version: 1, Status: "RUNNING",
	}))
	execSvc := execution.New(execStore, &fakeOrchestrator{}, foldingEvents{evStore})
	claimer := claim.New(&memClaimStore{events: evStore, claimed: map[string]bool{}})
	reg := registry.New(newMemRegistryStore(), 0)

	srv := httptest.NewServer(NewHandler(Deps{
		Catalog:    catSvc,
		Executions: execSvc,
		Events:     evStore,
		Claimer:    claimer,
		Registry:   reg,
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	ctx := context.Background()

	require.NoError(t, client.RegisterWorker(ctx, "w1", "default", "host-1"))
	require.NoError(t, client.Heartbeat(ctx, "w1", "default"))

	outcome, err := client.ClaimCommand(ctx, 1, "cmd-1", "w1")
	require.NoError(t, err)
	assert.Equal(t, claim.Claimed, outcome)

	again, err := client.ClaimCommand(ctx, 1, "cmd-1", "w1")
	require.NoError(t, err)
	assert.Equal(t, claim.AlreadyClaimed, again)

	issuedID, err := evStore.Append(ctx, 1, event.TypeCommandIssued, event.CommandIssuedPayload{
		CommandID: "cmd-1", Step: "start", ToolKind: "noop",
	})
	require.NoError(t, err)

	pendingID, err := evStore.Append(ctx, 1, event.TypeCommandIssued, event.CommandIssuedPayload{
		CommandID: "cmd-2", Step: "next", ToolKind: "noop",
	})
	require.NoError(t, err)

	n, ok, err := client.PollCommand(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "cmd-2", n.CommandID)
	assert.Equal(t, pendingID, n.EventID)

	outcome, err = client.ClaimCommand(ctx, 1, "cmd-2", "w1")
	require.NoError(t, err)
	assert.Equal(t, claim.Claimed, outcome)

	_, ok, err = client.PollCommand(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	cmd, err := client.FetchCommand(ctx, issuedID)
	require.NoError(t, err)
	assert.Equal(t, "start", cmd.Step)
	assert.Equal(t, "cmd-1", cmd.CommandID)

	require.NoError(t, client.EmitEvent(ctx, 1, "command.started", map[string]any{"step": "start"}))
	require.NoError(t, client.SetVariable(ctx, 1, "greeting", "hi"))

	proj, err := execSvc.Status(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "hi", proj.Variables["greeting"])

	require.NoError(t, client.DeregisterWorker(ctx, "w1", "default"))
}
