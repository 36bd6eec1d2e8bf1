// Package command models the orchestrator-emitted Command (§3) and the
// snapshot builder that assembles its variable environment.
package command

import (
	"github.com/google/uuid"
	"github.com/noetl/noetl/internal/dsl"
)

// Command is a single unit of work for a specific step, carrying
// everything a worker needs to execute it without a second round trip
// for the variable environment.
type Command struct {
	CommandID   string           `json:"command_id"`
	ExecutionID int64            `json:"execution_id"`
	Step        string           `json:"step"`
	Tool        dsl.ToolSpec     `json:"tool"`
	Variables   map[string]any   `json:"variables,omitempty"`
	Secrets     map[string]any   `json:"secrets,omitempty"`
	Cases       []dsl.CaseEntry  `json:"cases,omitempty"`
	TimeoutSecs int              `json:"timeout_secs,omitempty"`
	Retry       *dsl.RetrySpec   `json:"retry,omitempty"`
}

// NewID returns a fresh globally-unique command id.
func NewID() string {
	return uuid.NewString()
}

// Snapshot builds the variable environment for a new command: the
// projection's current variables plus the prior step's output bound
// under the prior step's name (§4.7 Command generation).
func Snapshot(variables map[string]any, priorStep string, priorResult map[string]any) map[string]any {
	out := make(map[string]any, len(variables)+1)
	for k, v := range variables {
		out[k] = v
	}
	if priorStep != "" && priorResult != nil {
		out[priorStep] = priorResult
	}
	return out
}
