// Package caseeval evaluates a step's case list against a tool result
// (§4.10 step 5), the declarative branching layer that sits between
// tool execution and the orchestrator's next-step selection.
package caseeval

import (
	"github.com/noetl/noetl/internal/dsl"
	"github.com/noetl/noetl/internal/template"
)

// Action names the effect produced by the first matching case's then
// list, mirroring §4.10's closed action set.
type Action string

const (
	ActionSetVar   Action = "set_var"
	ActionExit     Action = "exit"
	ActionGoto     Action = "goto"
	ActionRetry    Action = "retry"
	ActionFail     Action = "fail"
	ActionContinue Action = "continue"
	ActionNone     Action = "none"
)

// Effect is one action taken by a matched case's then list, in order.
type Effect struct {
	Action      Action
	VarName     string
	VarValue    any
	ExitStatus  string
	ExitData    any
	GotoStep    string
	MaxAttempts int
	FailMessage string
}

// Outcome is the result of evaluating a step's case list: the
// effects to apply, in order, and whether any case matched at all.
type Outcome struct {
	Matched bool
	Effects []Effect
}

// Evaluate walks cases in declaration order (§4.10 step 5 / §9's
// resolved case-vs-next precedence) and applies the first whose
// `when` renders true against ctx extended with the tool result under
// "result". If no case matches, Outcome.Matched is false and the
// orchestrator falls through to ordinary `next` handling.
func Evaluate(cases []dsl.CaseEntry, ctx map[string]any, result any) (Outcome, error) {
	evalCtx := extend(ctx, result)

	for _, c := range cases {
		matched, err := template.EvaluateCondition(c.When, evalCtx)
		if err != nil {
			return Outcome{}, err
		}
		if !matched {
			continue
		}

		effects, err := applyThen(c.Then, evalCtx)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Matched: true, Effects: effects}, nil
	}
	return Outcome{Matched: false}, nil
}

func extend(ctx map[string]any, result any) map[string]any {
	out := make(map[string]any, len(ctx)+1)
	for k, v := range ctx {
		out[k] = v
	}
	out["result"] = result
	return out
}

// applyThen renders each action in order. A `fail`, `exit`, or `goto`
// stops subsequent actions in the same then list, matching §4.10's
// "stop case evaluation" language for exit and the implicit
// termination of fail/goto.
func applyThen(actions []dsl.ActionSpec, ctx map[string]any) ([]Effect, error) {
	var effects []Effect
	for _, a := range actions {
		switch {
		case a.SetVar != nil:
			value, err := template.RenderToValue(a.SetVar.Value, ctx)
			if err != nil {
				return nil, err
			}
			effects = append(effects, Effect{Action: ActionSetVar, VarName: a.SetVar.Name, VarValue: value})

		case a.Exit != nil:
			data, err := renderOptional(a.Exit.Data, ctx)
			if err != nil {
				return nil, err
			}
			effects = append(effects, Effect{Action: ActionExit, ExitStatus: a.Exit.Status, ExitData: data})
			return effects, nil

		case a.Goto != nil:
			effects = append(effects, Effect{Action: ActionGoto, GotoStep: a.Goto.Step})
			return effects, nil

		case a.Next != nil:
			effects = append(effects, Effect{Action: ActionGoto, GotoStep: a.Next.Step})
			return effects, nil

		case a.Retry != nil:
			effects = append(effects, Effect{Action: ActionRetry, MaxAttempts: a.Retry.MaxAttempts})

		case a.Fail != nil:
			message, err := template.Render(a.Fail.Message, ctx)
			if err != nil {
				return nil, err
			}
			effects = append(effects, Effect{Action: ActionFail, FailMessage: message})
			return effects, nil

		case a.Continue:
			effects = append(effects, Effect{Action: ActionContinue})

		default:
			effects = append(effects, Effect{Action: ActionNone})
		}
	}
	return effects, nil
}

func renderOptional(tpl string, ctx map[string]any) (any, error) {
	if tpl == "" {
		return nil, nil
	}
	return template.RenderToValue(tpl, ctx)
}
