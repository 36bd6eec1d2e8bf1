package tool

import "context"

// Noop always succeeds without side effects, useful for playbook
// steps that only route or annotate state.
type Noop struct{}

// NewNoop returns a Noop tool.
func NewNoop() *Noop { return &Noop{} }

// Execute returns success, echoing cfg.Body as its data so downstream
// case/then expressions have something deterministic to reference.
func (n *Noop) Execute(_ context.Context, cfg Config, _ ExecutionContext) (Result, error) {
	return TimedExecute(func() (Result, error) {
		return Result{Status: StatusSuccess, Data: cfg.Body}, nil
	})
}
