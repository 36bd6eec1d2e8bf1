package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/noetl/noetl/internal/bus"
	"github.com/noetl/noetl/internal/claim"
	"github.com/noetl/noetl/internal/command"
	"github.com/noetl/noetl/internal/dsl"
	"github.com/noetl/noetl/internal/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscriber struct {
	mu      sync.Mutex
	subject string
	handler bus.Handler
}

func (f *fakeSubscriber) Subscribe(subject string, handler bus.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subject = subject
	f.handler = handler
	return nil
}

func (f *fakeSubscriber) deliver(ctx context.Context, n bus.Notification) error {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return h(ctx, bus.Envelope{Subject: f.subject, Payload: payload, Timestamp: time.Now()})
}

type lifecycleClient struct {
	*fakeClient
	mu          sync.Mutex
	registered  bool
	deregistered bool
	heartbeats  int
}

func newLifecycleClient(fetch command.Command) *lifecycleClient {
	fc := newFakeClient()
	fc.fetchCommand = fetch
	return &lifecycleClient{fakeClient: fc}
}

func (c *lifecycleClient) RegisterWorker(ctx context.Context, workerID, poolName, hostname string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registered = true
	return nil
}

func (c *lifecycleClient) Heartbeat(ctx context.Context, workerID, poolName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.heartbeats++
	return nil
}

func (c *lifecycleClient) DeregisterWorker(ctx context.Context, workerID, poolName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deregistered = true
	return nil
}

func TestWorkerRunRegistersSubscribesAndDeregistersOnStop(t *testing.T) {
	client := newLifecycleClient(command.Command{})
	sub := &fakeSubscriber{}
	registry := tool.NewRegistry()
	registry.Register("noop", tool.NewNoop())
	exec := NewExecutor(registry, client, "w1")

	w := New(Config{WorkerID: "w1", Subject: "noetl.commands", HeartbeatInterval: 20 * time.Millisecond}, client, sub, exec)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.registered
	}, time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		return sub.handler != nil
	}, time.Second, time.Millisecond)

	w.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not shut down")
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.True(t, client.deregistered)
}

func TestHandleNotificationClaimsAndExecutes(t *testing.T) {
	fetchCmd := command.Command{
		CommandID:   "c1",
		ExecutionID: 1,
		Step:        "start",
		Tool:        dsl.ToolSpec{Single: &dsl.ToolInvocation{Kind: dsl.ToolNoop}},
		Variables:   map[string]any{},
	}
	client := newLifecycleClient(fetchCmd)
	client.claimOutcome = claim.Claimed
	sub := &fakeSubscriber{}
	registry := tool.NewRegistry()
	registry.Register("noop", tool.NewNoop())
	exec := NewExecutor(registry, client, "w1")

	w := New(Config{WorkerID: "w1", Subject: "noetl.commands"}, client, sub, exec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		return sub.handler != nil
	}, time.Second, time.Millisecond)

	require.NoError(t, sub.deliver(context.Background(), bus.Notification{
		ExecutionID: 1, EventID: 5, CommandID: "c1", Step: "start",
	}))

	require.Eventually(t, func() bool {
		return len(client.fakeClient.snapshotEvents()) > 0
	}, time.Second, time.Millisecond)

	w.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not shut down")
	}

	var types []string
	for _, e := range client.fakeClient.snapshotEvents() {
		types = append(types, e.eventType)
	}
	assert.Contains(t, types, "command.started")
	assert.Contains(t, types, "command.completed")
}

func TestHandleNotificationReleasesPermitWhenAlreadyClaimed(t *testing.T) {
	client := newLifecycleClient(command.Command{})
	client.claimOutcome = claim.AlreadyClaimed
	sub := &fakeSubscriber{}
	registry := tool.NewRegistry()
	exec := NewExecutor(registry, client, "w1")

	w := New(Config{WorkerID: "w1", Subject: "noetl.commands", MaxConcurrentTasks: 1}, client, sub, exec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		return sub.handler != nil
	}, time.Second, time.Millisecond)

	require.NoError(t, sub.deliver(context.Background(), bus.Notification{ExecutionID: 1, EventID: 1, CommandID: "c1", Step: "start"}))
	require.NoError(t, sub.deliver(context.Background(), bus.Notification{ExecutionID: 1, EventID: 2, CommandID: "c2", Step: "start"}))

	assert.Len(t, w.sem, 0)

	w.Stop()
	<-done
}
