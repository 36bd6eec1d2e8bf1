// Package orchestrator implements the step-transition engine (§4.7):
// the algorithm that turns a folded projection plus a playbook's
// static graph into the next commands to issue, grounded on the
// teacher's automation scheduler's tick-and-dispatch shape
// (packages/com.r3e.services.automation/scheduler.go) but event-driven
// rather than polling-driven, since transitions here are triggered by
// newly appended events instead of a wall-clock ticker.
package orchestrator

import (
	"context"

	"github.com/noetl/noetl/internal/apperrors"
	"github.com/noetl/noetl/internal/bus"
	"github.com/noetl/noetl/internal/command"
	"github.com/noetl/noetl/internal/dsl"
	"github.com/noetl/noetl/internal/event"
	"github.com/noetl/noetl/internal/state"
	"github.com/noetl/noetl/internal/template"
)

// EventStore is the subset of event.PostgresStore the orchestrator
// depends on.
type EventStore interface {
	Append(ctx context.Context, executionID int64, eventType event.Type, payload any) (int64, error)
	Read(ctx context.Context, executionID int64, fromID int64, limit int) ([]event.Event, error)
}

// Publisher is the subset of bus.Bus the orchestrator depends on.
type Publisher interface {
	Publish(ctx context.Context, subject string, n bus.Notification) error
}

// SecretResolver resolves credential/keychain secrets referenced by a
// step's tool configuration into a flat map keyed by credential name,
// decrypted and ready to snapshot into a command (§4.7, §4.11).
type SecretResolver interface {
	Resolve(ctx context.Context, credentialNames []string) (map[string]any, error)
}

// noSecrets is used when the caller wires no resolver; steps that
// reference credentials then fail loudly rather than silently running
// without the secrets they asked for.
type noSecrets struct{}

func (noSecrets) Resolve(_ context.Context, names []string) (map[string]any, error) {
	if len(names) == 0 {
		return nil, nil
	}
	return nil, apperrors.NewInternalError("no secret resolver configured", nil)
}

// Orchestrator drives one playbook's execution forward one event batch
// at a time.
type Orchestrator struct {
	events    EventStore
	publisher Publisher
	secrets   SecretResolver
	serverURL string
	subject   string
}

// New builds an Orchestrator. publisher and secrets may be nil; a nil
// publisher disables bus notifications (polling-only, per §4.8's "bus
// is optional"), a nil secrets resolver rejects any step that
// references a credential.
func New(events EventStore, publisher Publisher, secrets SecretResolver, serverURL, subject string) *Orchestrator {
	if secrets == nil {
		secrets = noSecrets{}
	}
	return &Orchestrator{events: events, publisher: publisher, secrets: secrets, serverURL: serverURL, subject: subject}
}

// Start appends execution.started and performs the first advance,
// dispatching the "start" step.
func (o *Orchestrator) Start(ctx context.Context, executionID, catalogID int64, path string, version int, args map[string]any, pb *dsl.Playbook) error {
	if _, err := o.events.Append(ctx, executionID, event.TypeExecutionStarted, event.ExecutionStartedPayload{
		CatalogID: catalogID, Path: path, Version: version, Args: args,
	}); err != nil {
		return err
	}
	return o.Advance(ctx, executionID, pb)
}

// Cancel appends execution.cancelled directly; in-flight commands are
// allowed to finish (§4.7 Cancellation) and Advance stops issuing new
// ones once folded state is terminal.
func (o *Orchestrator) Cancel(ctx context.Context, executionID int64) error {
	_, err := o.events.Append(ctx, executionID, event.TypeExecutionCancelled, struct{}{})
	return err
}

// Advance folds the execution's current event stream and issues every
// command the projection now makes ready, looping until a fixed point
// (no newly ready step) is reached. It is safe to call repeatedly and
// concurrently with itself for the same execution: every mutation it
// makes is itself an event, and re-folding after each one keeps
// decisions based on the latest state.
func (o *Orchestrator) Advance(ctx context.Context, executionID int64, pb *dsl.Playbook) error {
	g := buildGraph(pb)

	for {
		events, err := o.events.Read(ctx, executionID, 0, 0)
		if err != nil {
			return err
		}
		proj, err := state.Fold(events)
		if err != nil {
			return err
		}
		if proj.ExecutionStatus.IsTerminal() {
			return nil
		}

		progressed, err := o.advanceOnce(ctx, executionID, g, proj)
		if err != nil {
			return err
		}
		if !progressed {
			return nil
		}
	}
}

// advanceOnce performs a single pass: dispatch the start step if the
// execution has no steps yet, otherwise look for newly-ready
// successors of terminal steps. Returns true if it appended any event,
// signalling the caller to re-fold and try again.
func (o *Orchestrator) advanceOnce(ctx context.Context, executionID int64, g *graph, proj *state.Projection) (bool, error) {
	if len(proj.Steps) == 0 {
		start, ok := g.step("start")
		if !ok {
			return false, apperrors.NewInternalError("playbook has no start step", nil)
		}
		return true, o.dispatch(ctx, executionID, g, proj, start, "")
	}

	candidates := map[string]string{} // successor step name -> triggering predecessor
	for name, st := range proj.Steps {
		if !st.Status.IsTerminal() {
			continue
		}
		step, ok := g.step(name)
		if !ok {
			continue
		}

		successors, err := o.resolveSuccessors(step, st, proj)
		if err != nil {
			return false, err
		}

		if len(successors) == 0 {
			if g.isLeaf(step) {
				return true, o.complete(ctx, executionID, proj, st)
			}
			continue
		}

		for _, succ := range successors {
			if _, seen := proj.Steps[succ]; seen {
				continue // already dispatched or terminal
			}
			if !o.fanInSatisfied(g, proj, succ) {
				continue
			}
			candidates[succ] = name
		}
	}

	for succ, from := range candidates {
		step, ok := g.step(succ)
		if !ok {
			return false, apperrors.NewInternalError("next references unknown step "+succ, nil)
		}
		return true, o.dispatch(ctx, executionID, g, proj, step, from)
	}
	return false, nil
}

func (o *Orchestrator) fanInSatisfied(g *graph, proj *state.Projection, stepName string) bool {
	for _, pred := range g.predecessors[stepName] {
		st, ok := proj.Steps[pred]
		if !ok || !st.Status.IsTerminal() {
			return false
		}
	}
	return true
}

func (o *Orchestrator) resolveSuccessors(step dsl.Step, st *state.StepState, proj *state.Projection) ([]string, error) {
	if st.CaseGoto != "" {
		return []string{st.CaseGoto}, nil
	}
	if step.Next == nil {
		return nil, nil
	}
	switch step.Next.Kind() {
	case "single":
		return []string{step.Next.SingleName}, nil
	case "list":
		return step.Next.Names, nil
	case "targets":
		var out []string
		for _, t := range step.Next.Targets {
			if t.When == "" {
				out = append(out, t.Step)
				continue
			}
			ok, err := template.EvaluateCondition(t.When, conditionContext(proj, step.Step))
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, t.Step)
			}
		}
		return out, nil
	default:
		return nil, nil
	}
}

// complete terminates the execution the moment a leaf step reaches a
// terminal status (§4.7: "If no next, the step terminates the
// execution..."); later completions on other branches are ignored by
// fold's sticky-terminal rule.
func (o *Orchestrator) complete(ctx context.Context, executionID int64, proj *state.Projection, st *state.StepState) error {
	status := "COMPLETED"
	if st.Status == state.StepFailed {
		status = "FAILED"
	}
	_, err := o.events.Append(ctx, executionID, event.TypeExecutionCompleted, event.ExecutionCompletedPayload{
		Status: status,
		Result: st.LastResult,
	})
	return err
}

// dispatch evaluates the step's `when` guard and either skips it
// (step.exit SKIPPED, no command) or issues a command (§4.7 Command
// generation).
func (o *Orchestrator) dispatch(ctx context.Context, executionID int64, g *graph, proj *state.Projection, step dsl.Step, fromStep string) error {
	if step.When != "" {
		ok, err := template.EvaluateCondition(step.When, conditionContext(proj, fromStep))
		if err != nil {
			return err
		}
		if !ok {
			_, err := o.events.Append(ctx, executionID, event.TypeStepExit, event.StepExitPayload{
				Step: step.Step, Status: string(state.StepSkipped),
			})
			return err
		}
	}

	variables := command.Snapshot(proj.Variables, fromStep, predecessorResult(proj, fromStep))

	secretNames := credentialNames(step)
	secrets, err := o.secrets.Resolve(ctx, secretNames)
	if err != nil {
		return err
	}

	cmdID := command.NewID()
	timeout, retry := stepTiming(step)

	eventID, err := o.events.Append(ctx, executionID, event.TypeCommandIssued, event.CommandIssuedPayload{
		CommandID: cmdID,
		Step:      step.Step,
		ToolKind:  toolKind(step),
		Tool:      step.Tool,
		Variables: variables,
		Secrets:   secrets,
		Cases:     step.Case,
		Timeout:   timeout,
	})
	if err != nil {
		return err
	}
	_ = retry // retry is re-derived from the tool spec by the worker at execute time.

	if o.publisher == nil {
		return nil
	}
	return o.publisher.Publish(ctx, o.subject, bus.Notification{
		ExecutionID: executionID,
		EventID:     eventID,
		CommandID:   cmdID,
		Step:        step.Step,
		ServerURL:   o.serverURL,
	})
}

func conditionContext(proj *state.Projection, fromStep string) map[string]any {
	ctx := make(map[string]any, len(proj.Variables)+1)
	for k, v := range proj.Variables {
		ctx[k] = v
	}
	if fromStep != "" {
		if st, ok := proj.Steps[fromStep]; ok {
			ctx["result"] = st.LastResult
		}
	}
	return ctx
}

func predecessorResult(proj *state.Projection, fromStep string) map[string]any {
	if fromStep == "" {
		return nil
	}
	if st, ok := proj.Steps[fromStep]; ok {
		return st.LastResult
	}
	return nil
}

func toolKind(step dsl.Step) string {
	if step.Tool.IsPipeline() {
		return "pipeline"
	}
	if step.Tool.Single != nil {
		return string(step.Tool.Single.Kind)
	}
	return ""
}

func stepTiming(step dsl.Step) (int, *dsl.RetrySpec) {
	if step.Tool.Single != nil {
		return step.Tool.Single.Timeout, step.Tool.Single.Retry
	}
	return 0, nil
}

func credentialNames(step dsl.Step) []string {
	var out []string
	add := func(auth *dsl.AuthSpec) {
		if auth != nil && auth.CredentialName != "" {
			out = append(out, auth.CredentialName)
		}
	}
	if step.Tool.Single != nil {
		add(step.Tool.Single.Auth)
	}
	for _, task := range step.Tool.Pipeline {
		add(task.Auth)
	}
	return out
}
