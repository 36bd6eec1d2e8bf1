package tool

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/noetl/noetl/internal/apperrors"
)

// Registry maps tool kinds to their implementations, the same
// RWMutex-guarded map-of-factories shape as the framework's service
// registry, adapted from a service-name registry to a tool-kind one.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register installs a tool under a kind name, overwriting any
// previous registration for the same kind.
func (r *Registry) Register(kind string, t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[kind] = t
}

// Get returns the tool registered for kind, or ok=false.
func (r *Registry) Get(kind string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[kind]
	return t, ok
}

// Has reports whether kind is registered.
func (r *Registry) Has(kind string) bool {
	_, ok := r.Get(kind)
	return ok
}

// List returns the registered kinds in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for k := range r.tools {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Execute runs the named tool directly.
func (r *Registry) Execute(ctx context.Context, kind string, cfg Config, execCtx ExecutionContext) (Result, error) {
	t, ok := r.Get(kind)
	if !ok {
		return Result{}, apperrors.NewNotFoundError("tool", kind)
	}
	return t.Execute(ctx, cfg, execCtx)
}

// ExecuteFromConfig dispatches on cfg.Kind, the shape every step
// invocation in the orchestrator actually has in hand.
func (r *Registry) ExecuteFromConfig(ctx context.Context, cfg Config, execCtx ExecutionContext) (Result, error) {
	if cfg.Kind == "" {
		return Result{}, apperrors.NewValidationError("tool", "config.kind is required")
	}
	return r.Execute(ctx, cfg.Kind, cfg, execCtx)
}

// NewDefaultRegistry builds a registry with every closed-set tool kind
// registered: real implementations where the corpus grounds one, and
// explicit not-implemented stubs for the rest so List/Has reflect the
// full kind set named by the playbook schema without silently
// swallowing requests for kinds nobody built.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("noop", NewNoop())
	r.Register("http", NewHTTP(nil))
	r.Register("shell", NewShell())
	r.Register("script", NewScript())
	r.Register("rhai", NewScript())
	r.Register("postgres", NewPostgres())

	for _, kind := range []string{
		"duckdb", "ducklake", "python", "workbook", "playbook", "playbooks",
		"secrets", "iterator", "container", "snowflake", "transfer",
		"snowflake_transfer", "gcs", "gateway", "nats", "artifact", "task_sequence",
	} {
		r.Register(kind, notImplemented(kind))
	}
	return r
}

type stub string

func notImplemented(kind string) Tool { return stub(kind) }

func (s stub) Execute(context.Context, Config, ExecutionContext) (Result, error) {
	return Result{}, apperrors.NewInternalError(fmt.Sprintf("tool kind %q is not implemented by this worker build", string(s)), nil)
}
