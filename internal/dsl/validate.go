package dsl

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/noetl/noetl/internal/apperrors"
)

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("toolkind", func(fl validator.FieldLevel) bool {
		return IsValidToolKind(ToolKind(fl.Field().String()))
	})
	return v
}

// Validate runs struct-tag validation (required fields, cardinality)
// followed by the semantic step-graph pass: apiVersion/kind, a unique
// "start" step, no duplicate step names, and every next/case.then.next
// reference resolving to a declared step. Errors accumulate; callers
// see every failure in one pass, not just the first.
func Validate(pb *Playbook) error {
	var merr *multierror.Error

	if pb.APIVersion != APIVersion {
		merr = multierror.Append(merr, apperrors.NewValidationError(
			"apiVersion", fmt.Sprintf("unsupported API version %q, expected %q", pb.APIVersion, APIVersion)))
	}
	if pb.Kind != KindPlaybook {
		merr = multierror.Append(merr, apperrors.NewValidationError(
			"kind", fmt.Sprintf("invalid kind %q, expected %q", pb.Kind, KindPlaybook)))
	}
	if pb.Metadata.Name == "" {
		merr = multierror.Append(merr, apperrors.RequiredError("metadata.name"))
	}
	if len(pb.Workflow) == 0 {
		merr = multierror.Append(merr, apperrors.RequiredError("workflow"))
	}

	if !pb.HasStartStep() {
		merr = multierror.Append(merr, apperrors.NewValidationError(
			"workflow", "must have a step named 'start'"))
	}

	seen := make(map[string]struct{}, len(pb.Workflow))
	for _, step := range pb.Workflow {
		if _, dup := seen[step.Step]; dup {
			merr = multierror.Append(merr, apperrors.NewValidationError(
				"workflow", fmt.Sprintf("duplicate step name %q", step.Step)))
			continue
		}
		seen[step.Step] = struct{}{}

		if !step.Tool.IsPipeline() && step.Tool.Single != nil && !IsValidToolKind(step.Tool.Single.Kind) {
			merr = multierror.Append(merr, apperrors.NewValidationError(
				fmt.Sprintf("workflow[%s].tool.kind", step.Step),
				fmt.Sprintf("unknown tool kind %q", step.Tool.Single.Kind)))
		}
		for _, task := range step.Tool.Pipeline {
			if !IsValidToolKind(task.Kind) {
				merr = multierror.Append(merr, apperrors.NewValidationError(
					fmt.Sprintf("workflow[%s].tool[%s].kind", step.Step, task.Label),
					fmt.Sprintf("unknown tool kind %q", task.Kind)))
			}
		}
	}

	stepNames := pb.StepNames()
	for _, step := range pb.Workflow {
		if step.Next != nil {
			if err := validateNextRefs(step.Next, stepNames, step.Step); err != nil {
				merr = multierror.Append(merr, err)
			}
		}
		for i, entry := range step.Case {
			if err := validateCaseRefs(entry, stepNames, step.Step, i); err != nil {
				merr = multierror.Append(merr, err)
			}
		}
	}

	if err := structValidator.Struct(pb); err != nil {
		merr = multierror.Append(merr, apperrors.NewValidationError("document", err.Error()))
	}

	return merr.ErrorOrNil()
}

func validateNextRefs(next *NextSpec, valid map[string]struct{}, currentStep string) error {
	check := func(name string) error {
		if _, ok := valid[name]; !ok {
			return apperrors.NewValidationError("next",
				fmt.Sprintf("step %q references unknown step %q in next", currentStep, name))
		}
		return nil
	}
	switch next.Kind() {
	case "single":
		return check(next.SingleName)
	case "list":
		var merr *multierror.Error
		for _, name := range next.Names {
			if err := check(name); err != nil {
				merr = multierror.Append(merr, err)
			}
		}
		return merr.ErrorOrNil()
	case "targets":
		var merr *multierror.Error
		for _, target := range next.Targets {
			if err := check(target.Step); err != nil {
				merr = multierror.Append(merr, err)
			}
		}
		return merr.ErrorOrNil()
	}
	return nil
}

func validateCaseRefs(entry CaseEntry, valid map[string]struct{}, currentStep string, caseIndex int) error {
	var merr *multierror.Error
	for _, action := range entry.Then {
		var target string
		switch {
		case action.Goto != nil:
			target = action.Goto.Step
		case action.Next != nil:
			target = action.Next.Step
		default:
			continue
		}
		if _, ok := valid[target]; !ok {
			merr = multierror.Append(merr, apperrors.NewValidationError("case",
				fmt.Sprintf("step %q case[%d] (when: %q) references unknown step %q",
					currentStep, caseIndex, entry.When, target)))
		}
	}
	return merr.ErrorOrNil()
}
