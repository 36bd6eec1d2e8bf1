// Package worker implements the worker runtime (§4.9): registration,
// heartbeat, the claim-execute-emit loop, and bounded concurrency,
// grounded on original_source's crates/worker-pool/src/worker.rs and
// executor/command.rs reference semantics, adapted to Go's
// goroutine-and-channel idiom in place of tokio tasks and a semaphore.
package worker

import (
	"context"

	"github.com/noetl/noetl/internal/bus"
	"github.com/noetl/noetl/internal/claim"
	"github.com/noetl/noetl/internal/command"
)

// ControlPlaneClient is everything a worker needs from the
// orchestrator's HTTP surface: registration, heartbeat, claim, command
// fetch, and event emission. The real implementation lives in
// internal/httpapi's client adapter; tests substitute a fake.
type ControlPlaneClient interface {
	RegisterWorker(ctx context.Context, workerID, poolName, hostname string) error
	Heartbeat(ctx context.Context, workerID, poolName string) error
	DeregisterWorker(ctx context.Context, workerID, poolName string) error
	ClaimCommand(ctx context.Context, executionID int64, commandID, workerID string) (claim.Outcome, error)
	FetchCommand(ctx context.Context, eventID int64) (command.Command, error)
	// PollCommand is the bus-optional fallback (§4.8): it asks the
	// control plane whether a command is waiting. ok is false when none
	// is pending.
	PollCommand(ctx context.Context) (n bus.Notification, ok bool, err error)
	EmitEvent(ctx context.Context, executionID int64, eventType string, payload any) error
	SetVariable(ctx context.Context, executionID int64, name string, value any) error
}

// Subscriber is the bus-facing half of the worker. *bus.Bus satisfies
// it directly; the Postgres LISTEN/NOTIFY bus has no broker-level
// redelivery of its own (§4.8: "redelivery handled by the claim
// protocol, not by the bus itself"), so there is no separate ack/nack
// step here — a claim failure simply leaves the command unclaimed for
// the polling fallback to pick up.
type Subscriber interface {
	Subscribe(subject string, handler bus.Handler) error
}
