package state

import (
	"github.com/noetl/noetl/internal/apperrors"
	"github.com/noetl/noetl/internal/event"
)

// Fold applies events in id order to an empty projection and returns
// the result. Folding the same prefix twice yields the same
// projection (idempotent, §8): Fold is a pure function of events.
func Fold(events []event.Event) (*Projection, error) {
	p := NewProjection()
	for _, ev := range events {
		if err := apply(p, ev); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Apply folds a single additional event onto an existing projection,
// used by the orchestrator to incrementally extend a cached
// projection instead of refolding the whole stream.
func Apply(p *Projection, ev event.Event) error {
	return apply(p, ev)
}

func apply(p *Projection, ev event.Event) error {
	if ev.ID <= p.LastEventID && p.LastEventID != 0 {
		return apperrors.NewInternalError("out-of-order fold", nil)
	}
	p.LastEventID = ev.ID

	switch ev.Type {
	case event.TypeExecutionStarted:
		var payload event.ExecutionStartedPayload
		if err := ev.DecodePayload(&payload); err != nil {
			return apperrors.NewInternalError("decode execution.started", err)
		}
		p.ExecutionStatus = ExecutionRunning
		p.CatalogID = payload.CatalogID
		p.Path = payload.Path
		p.Version = payload.Version
		for k, v := range payload.Args {
			p.Variables[k] = v
		}

	case event.TypeCommandIssued:
		var payload event.CommandIssuedPayload
		if err := ev.DecodePayload(&payload); err != nil {
			return apperrors.NewInternalError("decode command.issued", err)
		}
		st := p.step(payload.Step)
		st.Status = StepDispatched
		st.LastCommandID = payload.CommandID
		cmd := p.command(payload.CommandID)
		cmd.Step = payload.Step
		cmd.Status = CommandIssued

	case event.TypeCommandClaimed:
		var payload event.CommandClaimedPayload
		if err := ev.DecodePayload(&payload); err != nil {
			return apperrors.NewInternalError("decode command.claimed", err)
		}
		cmd, ok := p.Commands[payload.CommandID]
		if !ok {
			cmd = p.command(payload.CommandID)
		}
		if cmd.Status != CommandIssued {
			// A later command.claimed for an already-claimed command id
			// is defensive noise; the claim protocol should prevent
			// this. Ignored per §4.6 rule 3.
			break
		}
		cmd.Status = CommandClaimed
		cmd.ClaimedBy = payload.WorkerID

	case event.TypeCommandStarted:
		var payload event.CommandStartedPayload
		if err := ev.DecodePayload(&payload); err != nil {
			return apperrors.NewInternalError("decode command.started", err)
		}
		cmd := p.command(payload.CommandID)
		cmd.Status = CommandRunning
		if cmd.Step != "" {
			p.step(cmd.Step).Status = StepInProgress
		}

	case event.TypeCallDone:
		var payload event.CallDonePayload
		if err := ev.DecodePayload(&payload); err != nil {
			return apperrors.NewInternalError("decode call.done", err)
		}
		cmd := p.command(payload.CommandID)
		cmd.Calls[payload.CallIndex] = CallResult{Label: payload.Label, Result: payload.Result}
		if cmd.Step != "" {
			p.step(cmd.Step).LastResult = payload.Result
		}

	case event.TypeCallError:
		var payload event.CallDonePayload
		if err := ev.DecodePayload(&payload); err != nil {
			return apperrors.NewInternalError("decode call.error", err)
		}
		cmd := p.command(payload.CommandID)
		cmd.Calls[payload.CallIndex] = CallResult{Label: payload.Label, Error: payload.Error, Failed: true}

	case event.TypeCommandCompleted:
		var payload event.CommandCompletedPayload
		if err := ev.DecodePayload(&payload); err != nil {
			return apperrors.NewInternalError("decode command.completed", err)
		}
		cmd := p.command(payload.CommandID)
		if payload.Status == "success" || payload.Status == "" {
			cmd.Status = CommandCompleted
			if cmd.Step != "" {
				p.step(cmd.Step).Status = StepSucceeded
			}
		} else {
			cmd.Status = CommandFailed
			if cmd.Step != "" {
				p.step(cmd.Step).Status = StepFailed
			}
		}

	case event.TypeCommandFailed:
		var payload event.CommandCompletedPayload
		if err := ev.DecodePayload(&payload); err != nil {
			return apperrors.NewInternalError("decode command.failed", err)
		}
		cmd := p.command(payload.CommandID)
		cmd.Status = CommandFailed
		if cmd.Step != "" {
			p.step(cmd.Step).Status = StepFailed
		}

	case event.TypeStepExit:
		var payload event.StepExitPayload
		if err := ev.DecodePayload(&payload); err != nil {
			return apperrors.NewInternalError("decode step.exit", err)
		}
		st := p.step(payload.Step)
		st.Status = StepStatus(payload.Status)
		if payload.Data != nil {
			st.LastResult = payload.Data
		}
		st.CaseGoto = payload.GotoTarget

	case event.TypeVarSet:
		var payload event.VarSetPayload
		if err := ev.DecodePayload(&payload); err != nil {
			return apperrors.NewInternalError("decode var.set", err)
		}
		p.Variables[payload.Name] = payload.Value

	case event.TypeExecutionCompleted:
		if p.ExecutionStatus.IsTerminal() {
			break
		}
		var payload event.ExecutionCompletedPayload
		if err := ev.DecodePayload(&payload); err != nil {
			return apperrors.NewInternalError("decode execution.completed", err)
		}
		if payload.Status != "" {
			p.ExecutionStatus = ExecutionStatus(payload.Status)
		} else {
			p.ExecutionStatus = ExecutionCompleted
		}
		p.Result = payload.Result

	case event.TypeExecutionCancelled:
		if p.ExecutionStatus.IsTerminal() {
			break
		}
		p.ExecutionStatus = ExecutionCancelled

	default:
		return apperrors.NewInternalError("unknown event type: "+string(ev.Type), nil)
	}

	return nil
}
