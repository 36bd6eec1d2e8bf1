// Package event implements the append-only event log (§4.5): the sole
// source of truth for execution state.
package event

import (
	"encoding/json"
	"time"
)

// Type enumerates the closed set of event types the core folds.
type Type string

const (
	TypeExecutionStarted   Type = "execution.started"
	TypeExecutionCompleted Type = "execution.completed"
	TypeExecutionCancelled Type = "execution.cancelled"
	TypeCommandIssued      Type = "command.issued"
	TypeCommandClaimed     Type = "command.claimed"
	TypeCommandStarted     Type = "command.started"
	TypeCommandCompleted   Type = "command.completed"
	TypeCommandFailed      Type = "command.failed"
	TypeCallDone           Type = "call.done"
	TypeCallError          Type = "call.error"
	TypeStepExit           Type = "step.exit"
	TypeVarSet             Type = "var.set"
)

// Event is one immutable, append-only record in an execution's log.
type Event struct {
	ID          int64           `db:"id" json:"id"`
	ExecutionID int64           `db:"execution_id" json:"execution_id"`
	Type        Type            `db:"event_type" json:"event_type"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// DecodePayload unmarshals the event's payload into v.
func (e Event) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// ExecutionStartedPayload is the payload for execution.started.
type ExecutionStartedPayload struct {
	CatalogID int64          `json:"catalog_id"`
	Path      string         `json:"path"`
	Version   int            `json:"version"`
	Args      map[string]any `json:"args,omitempty"`
}

// ExecutionCompletedPayload is the payload for execution.completed.
type ExecutionCompletedPayload struct {
	Status string         `json:"status"`
	Result map[string]any `json:"result,omitempty"`
}

// CommandIssuedPayload is the payload for command.issued; it carries
// the full command body so workers can fetch it by event id (§4.8).
type CommandIssuedPayload struct {
	CommandID string         `json:"command_id"`
	Step      string         `json:"step"`
	ToolKind  string         `json:"tool_kind"`
	Tool      any            `json:"tool"`
	Variables map[string]any `json:"variables,omitempty"`
	Secrets   map[string]any `json:"secrets,omitempty"`
	Cases     any            `json:"cases,omitempty"`
	Timeout   int            `json:"timeout,omitempty"`
}

// CommandClaimedPayload is the payload for command.claimed.
type CommandClaimedPayload struct {
	CommandID string `json:"command_id"`
	WorkerID  string `json:"worker_id"`
}

// CommandStartedPayload is the payload for command.started.
type CommandStartedPayload struct {
	CommandID string `json:"command_id"`
}

// CallDonePayload is the payload for call.done / call.error.
type CallDonePayload struct {
	CommandID string         `json:"command_id"`
	CallIndex int            `json:"call_index"`
	Label     string         `json:"label,omitempty"`
	Result    map[string]any `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// CommandCompletedPayload is the payload for command.completed /
// command.failed.
type CommandCompletedPayload struct {
	CommandID string `json:"command_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// StepExitPayload is the payload for step.exit.
type StepExitPayload struct {
	Step       string         `json:"step"`
	Status     string         `json:"status"`
	Data       map[string]any `json:"data,omitempty"`
	GotoTarget string         `json:"goto_target,omitempty"`
}

// VarSetPayload is the payload for var.set.
type VarSetPayload struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}
