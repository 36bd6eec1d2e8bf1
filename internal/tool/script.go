package tool

import (
	"context"

	"github.com/dop251/goja"
	"github.com/noetl/noetl/internal/apperrors"
)

// Script runs cfg.Body["code"] as a JavaScript snippet via goja. It
// backs both the "script" and "rhai" tool kinds: the contract leaves
// the embedded-scripting language unspecified beyond naming two
// kinds, and goja is the only embeddable-script-engine dependency
// present in the example pack, so both kinds share this evaluator
// rather than fabricating a Rhai interpreter Go has no library for.
type Script struct{}

// NewScript returns a Script tool.
func NewScript() *Script { return &Script{} }

// Execute binds execCtx.Variables and execCtx.Secrets as globals
// `vars` and `secrets`, then evaluates cfg.Body["code"]; the script's
// final expression value becomes result.Data["value"].
func (s *Script) Execute(ctx context.Context, cfg Config, execCtx ExecutionContext) (Result, error) {
	return TimedExecute(func() (Result, error) {
		code, _ := cfg.Body["code"].(string)
		if code == "" {
			return Result{Status: StatusError, Error: "script tool requires body.code"},
				apperrors.NewValidationError("script", "code is required")
		}

		vm := goja.New()
		if err := vm.Set("vars", execCtx.Variables); err != nil {
			return Result{Status: StatusError, Error: err.Error()}, err
		}
		if err := vm.Set("secrets", execCtx.Secrets); err != nil {
			return Result{Status: StatusError, Error: err.Error()}, err
		}

		done := make(chan struct{})
		var value goja.Value
		var runErr error
		go func() {
			defer close(done)
			value, runErr = vm.RunString(code)
		}()

		select {
		case <-ctx.Done():
			vm.Interrupt("cancelled")
			<-done
			return Result{Status: StatusTimeout, Error: ctx.Err().Error()}, ctx.Err()
		case <-done:
		}

		if runErr != nil {
			return Result{Status: StatusError, Error: runErr.Error()}, nil
		}
		return Result{Status: StatusSuccess, Data: map[string]any{"value": value.Export()}}, nil
	})
}
