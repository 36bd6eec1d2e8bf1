// Package tool implements the tool registry and built-in tools
// (§4.3): a name-to-implementation registry, the way the secrets
// service's ServiceRegistry maps service names to factories, adapted
// to map tool kinds to executable tool implementations.
package tool

import (
	"context"
	"time"
)

// Config is a tool invocation's configuration (§4.3).
type Config struct {
	Kind    string
	Body    map[string]any
	Timeout time.Duration
	Retry   *RetryConfig
	Auth    map[string]any
}

// RetryConfig mirrors the defaults spec.md §4.3 specifies: 3 retries
// after the first attempt, 500ms initial delay, 10s max delay, 2.0
// backoff multiplier.
type RetryConfig struct {
	MaxRetries        int
	InitialDelayMs    int
	MaxDelayMs        int
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the spec's documented defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, InitialDelayMs: 500, MaxDelayMs: 10000, BackoffMultiplier: 2.0}
}

// ExecutionContext carries everything a tool needs beyond its own
// configuration (§4.3).
type ExecutionContext struct {
	ExecutionID int64
	Step        string
	Variables   map[string]any
	Secrets     map[string]any
	ServerURL   string
	WorkerID    string
	CommandID   string
	CallIndex   int
}

// Status is a tool execution's terminal outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// Result is a tool execution's outcome (§4.3).
type Result struct {
	Status     Status
	Data       map[string]any
	Error      string
	Stdout     string
	Stderr     string
	ExitCode   int
	DurationMs int64
}

// Tool is one kind's implementation. Retry is applied by the worker
// (§4.9), not by the tool itself. The worker also bounds each call
// with a timeout; the http and shell tools additionally apply
// cfg.Timeout to their own request or process.
type Tool interface {
	Execute(ctx context.Context, cfg Config, execCtx ExecutionContext) (Result, error)
}

// TimedExecute wraps fn with duration measurement, the small piece of
// bookkeeping every built-in tool needs.
func TimedExecute(fn func() (Result, error)) (Result, error) {
	start := time.Now()
	result, err := fn()
	result.DurationMs = time.Since(start).Milliseconds()
	return result, err
}
