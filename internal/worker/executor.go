package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/noetl/noetl/internal/caseeval"
	"github.com/noetl/noetl/internal/command"
	"github.com/noetl/noetl/internal/dsl"
	"github.com/noetl/noetl/internal/tool"
)

// Executor runs one command's tool (or pipeline) and evaluates its
// case list, grounded directly on
// crates/worker-pool/src/executor/command.rs's CommandExecutor.execute.
type Executor struct {
	tools    *tool.Registry
	client   ControlPlaneClient
	workerID string
}

// NewExecutor builds an Executor over a tool registry and the control
// plane client used to emit events and report case side effects.
func NewExecutor(tools *tool.Registry, client ControlPlaneClient, workerID string) *Executor {
	return &Executor{tools: tools, client: client, workerID: workerID}
}

// Execute runs command end to end: command.started, each pipeline
// task (or the single tool) with retry/timeout, call.done/call.error
// per task, case evaluation, and a terminal command.completed or
// command.failed (§4.10).
func (e *Executor) Execute(ctx context.Context, cmd command.Command) error {
	_ = e.client.EmitEvent(ctx, cmd.ExecutionID, "command.started", map[string]any{
		"command_id": cmd.CommandID,
		"worker_id":  e.workerID,
		"step":       cmd.Step,
	})

	execCtx := tool.ExecutionContext{
		ExecutionID: cmd.ExecutionID,
		Step:        cmd.Step,
		Variables:   cmd.Variables,
		Secrets:     cmd.Secrets,
		WorkerID:    e.workerID,
		CommandID:   cmd.CommandID,
	}

	result, callErr := e.runTool(ctx, cmd, execCtx)
	if callErr != nil {
		_ = e.client.EmitEvent(ctx, cmd.ExecutionID, "command.failed", map[string]any{
			"command_id": cmd.CommandID,
			"error":      callErr.Error(),
		})
		return callErr
	}

	if len(cmd.Cases) > 0 {
		outcome, err := caseeval.Evaluate(cmd.Cases, cmd.Variables, result.Data)
		if err != nil {
			_ = e.client.EmitEvent(ctx, cmd.ExecutionID, "command.failed", map[string]any{
				"command_id": cmd.CommandID, "error": err.Error(),
			})
			return err
		}
		if outcome.Matched {
			if err := e.applyCaseEffects(ctx, cmd, outcome); err != nil {
				return err
			}
			for _, eff := range outcome.Effects {
				if eff.Action == caseeval.ActionFail {
					return fmt.Errorf("case evaluation failed: %s", eff.FailMessage)
				}
			}
		}
	}

	return e.client.EmitEvent(ctx, cmd.ExecutionID, "command.completed", map[string]any{
		"command_id": cmd.CommandID,
		"status":     string(result.Status),
	})
}

// runTool executes either the single tool or the labeled pipeline
// (§4.10 step 3-4), applying per-task retry/timeout and emitting
// call.done/call.error for each call_index.
func (e *Executor) runTool(ctx context.Context, cmd command.Command, execCtx tool.ExecutionContext) (tool.Result, error) {
	if !cmd.Tool.IsPipeline() {
		return e.runTask(ctx, cmd, execCtx, 0, "", *cmd.Tool.Single)
	}

	var last tool.Result
	for i, task := range cmd.Tool.Pipeline {
		taskCtx := execCtx
		taskCtx.CallIndex = i
		result, err := e.runTask(ctx, cmd, taskCtx, i, task.Label, task.ToolInvocation)
		last = result
		if err != nil {
			return result, err
		}
		switch task.Eval {
		case "break":
			return result, nil
		case "return":
			return result, nil
		case "fail":
			return result, fmt.Errorf("pipeline task %q requested fail", task.Label)
		}
	}
	return last, nil
}

// runTask applies the teacher-grounded §4.3 retry/timeout envelope
// around a single tool invocation and emits its call.done/call.error.
func (e *Executor) runTask(ctx context.Context, cmd command.Command, execCtx tool.ExecutionContext, callIndex int, label string, inv dsl.ToolInvocation) (tool.Result, error) {
	retry := inv.Retry
	if retry == nil {
		retry = &dsl.RetrySpec{}
	}
	normalized := *retry
	normalized.Normalize()

	timeout := time.Duration(inv.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	cfg := tool.Config{Kind: string(inv.Kind), Body: inv.Body, Timeout: timeout}
	if inv.Auth != nil {
		cfg.Auth = map[string]any{"credential": inv.Auth.CredentialName}
		for k, v := range inv.Auth.Extra {
			cfg.Auth[k] = v
		}
	}

	delay := time.Duration(normalized.InitialDelayMs) * time.Millisecond
	var result tool.Result
	var err error
	for attempt := 0; attempt <= normalized.MaxRetries; attempt++ {
		taskCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err = e.tools.ExecuteFromConfig(taskCtx, cfg, execCtx)
		cancel()

		if err == nil && result.Status != tool.StatusTimeout {
			break
		}
		if attempt == normalized.MaxRetries {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return result, ctx.Err()
		}
		delay = time.Duration(float64(delay) * normalized.BackoffMultiplier)
		if max := time.Duration(normalized.MaxDelayMs) * time.Millisecond; delay > max {
			delay = max
		}
	}

	if err != nil || result.Status == tool.StatusError || result.Status == tool.StatusTimeout {
		message := result.Error
		if message == "" && err != nil {
			message = err.Error()
		}
		_ = e.client.EmitEvent(ctx, cmd.ExecutionID, "call.error", map[string]any{
			"command_id": cmd.CommandID,
			"call_index": callIndex,
			"label":      label,
			"error":      message,
		})
		if err == nil {
			err = fmt.Errorf("%s", message)
		}
		return result, err
	}

	_ = e.client.EmitEvent(ctx, cmd.ExecutionID, "call.done", map[string]any{
		"command_id": cmd.CommandID,
		"call_index": callIndex,
		"label":      label,
		"result":     result.Data,
	})
	return result, nil
}

// applyCaseEffects reports set_var/exit/goto effects to the control
// plane so the orchestrator folds them into the event log (§4.10 step
// 5). fail is reported as command.failed here; the caller then returns
// an error without emitting command.completed.
func (e *Executor) applyCaseEffects(ctx context.Context, cmd command.Command, outcome caseeval.Outcome) error {
	for _, eff := range outcome.Effects {
		switch eff.Action {
		case caseeval.ActionSetVar:
			if err := e.client.SetVariable(ctx, cmd.ExecutionID, eff.VarName, eff.VarValue); err != nil {
				return err
			}
		case caseeval.ActionExit:
			if err := e.client.EmitEvent(ctx, cmd.ExecutionID, "step.exit", map[string]any{
				"step": cmd.Step, "status": eff.ExitStatus, "data": eff.ExitData,
			}); err != nil {
				return err
			}
		case caseeval.ActionGoto:
			if err := e.client.EmitEvent(ctx, cmd.ExecutionID, "step.exit", map[string]any{
				"step": cmd.Step, "status": "SUCCEEDED", "goto_target": eff.GotoStep,
			}); err != nil {
				return err
			}
		case caseeval.ActionFail:
			if err := e.client.EmitEvent(ctx, cmd.ExecutionID, "command.failed", map[string]any{
				"command_id": cmd.CommandID, "error": eff.FailMessage,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}
