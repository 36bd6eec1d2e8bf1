package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/noetl/noetl/internal/bus"
	"github.com/noetl/noetl/internal/claim"
	"github.com/shirou/gopsutil/v3/host"
)

// defaultExecTimeout bounds command execution when the command carries
// no explicit timeout.
const defaultExecTimeout = 10 * time.Minute

// Config controls one worker process's pool identity, concurrency and
// heartbeat cadence (§4.9).
type Config struct {
	WorkerID            string
	PoolName            string
	ServerURL           string
	Subject             string
	MaxConcurrentTasks  int
	HeartbeatInterval   time.Duration
	PollInterval        time.Duration
}

// Normalize fills zero fields with the spec's documented defaults: 4
// concurrent tasks, a 15s heartbeat, a fresh UUID worker id.
func (c *Config) Normalize() {
	if c.WorkerID == "" {
		c.WorkerID = uuid.NewString()
	}
	if c.PoolName == "" {
		c.PoolName = "default"
	}
	if c.MaxConcurrentTasks <= 0 {
		c.MaxConcurrentTasks = 4
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
}

// Worker runs the claim-execute-emit loop against one subject,
// bounded by a counting semaphore that gates both bus notifications
// and poll-fallback dequeues (§4.9 step 3).
type Worker struct {
	cfg      Config
	client   ControlPlaneClient
	bus      Subscriber
	executor *Executor

	sem chan struct{}

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a Worker. bus may be nil, in which case the worker only
// polls (§4.8: bus is optional, the orchestrator must also expose
// polling).
func New(cfg Config, client ControlPlaneClient, subscriber Subscriber, executor *Executor) *Worker {
	cfg.Normalize()
	return &Worker{
		cfg:      cfg,
		client:   client,
		bus:      subscriber,
		executor: executor,
		sem:      make(chan struct{}, cfg.MaxConcurrentTasks),
	}
}

// Run registers the worker, starts its heartbeat, its notification
// subscription (when a bus is set) and its poll loop, and blocks until
// ctx is cancelled, at which point it drains in-flight tasks and
// deregisters (§4.9 Shutdown).
func (w *Worker) Run(ctx context.Context) error {
	hostname := localHostname()
	if err := w.client.RegisterWorker(ctx, w.cfg.WorkerID, w.cfg.PoolName, hostname); err != nil {
		return fmt.Errorf("worker: register: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.running = true
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go w.heartbeatLoop(runCtx)

	if w.bus != nil {
		if err := w.bus.Subscribe(w.cfg.Subject, w.handleNotification); err != nil {
			return fmt.Errorf("worker: subscribe: %w", err)
		}
	}
	// Polling always runs alongside the bus: the bus gives low latency,
	// polling is the safety net that still delivers commands if a
	// notification is ever missed (§4.8).
	w.wg.Add(1)
	go w.pollLoop(runCtx)

	<-runCtx.Done()

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	w.wg.Wait()

	deregisterCtx, deregisterCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer deregisterCancel()
	return w.client.DeregisterWorker(deregisterCtx, w.cfg.WorkerID, w.cfg.PoolName)
}

// Stop cancels the run loop, allowing Run to return after draining
// in-flight tasks.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
}

func (w *Worker) heartbeatLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.client.Heartbeat(ctx, w.cfg.WorkerID, w.cfg.PoolName); err != nil {
				continue
			}
		}
	}
}

// pollLoop is the bus-optional fallback (§4.8): on every tick it asks
// the control plane whether a command is waiting and, if so, drives it
// through the same claim-fetch-execute path a bus notification would.
// A busy semaphore or an empty poll both just wait for the next tick.
func (w *Worker) pollLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		select {
		case w.sem <- struct{}{}:
		default:
			continue // every permit is in use, try again next tick
		}

		n, ok, err := w.client.PollCommand(ctx)
		if err != nil || !ok {
			<-w.sem
			continue
		}
		w.claimAndExecute(ctx, n)
	}
}

// handleNotification implements §4.9 steps 3-6: acquire a permit and
// hand the decoded notification to claimAndExecute.
func (w *Worker) handleNotification(ctx context.Context, env bus.Envelope) error {
	var n bus.Notification
	if err := json.Unmarshal(env.Payload, &n); err != nil {
		return fmt.Errorf("worker: decode notification: %w", err)
	}

	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	return w.claimAndExecute(ctx, n)
}

// claimAndExecute claims n's command and, on success, spawns execution
// holding the caller's semaphore permit until terminal. The caller must
// already hold a permit in w.sem; claimAndExecute releases it on every
// path that does not hand off to the execution goroutine.
func (w *Worker) claimAndExecute(ctx context.Context, n bus.Notification) error {
	outcome, err := w.client.ClaimCommand(ctx, n.ExecutionID, n.CommandID, w.cfg.WorkerID)
	if err != nil {
		<-w.sem
		return err
	}
	if outcome != claim.Claimed {
		<-w.sem
		return nil
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.sem }()

		fetchCtx, fetchCancel := context.WithTimeout(context.Background(), 30*time.Second)
		cmd, err := w.client.FetchCommand(fetchCtx, n.EventID)
		fetchCancel()
		if err != nil {
			return
		}

		timeout := defaultExecTimeout
		if cmd.TimeoutSecs > 0 {
			timeout = time.Duration(cmd.TimeoutSecs) * time.Second
		}
		execCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = w.executor.Execute(execCtx, cmd)
	}()
	return nil
}

func localHostname() string {
	info, err := host.Info()
	if err != nil || info.Hostname == "" {
		return "unknown"
	}
	return info.Hostname
}
