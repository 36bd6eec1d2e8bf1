package tool

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/noetl/noetl/internal/apperrors"
)

// Shell runs an external command via os/exec, the same primitive the
// teacher's deploy scripts shell out with, adapted to a tool that
// captures stdout/stderr/exit code as first-class result fields.
type Shell struct{}

// NewShell returns a Shell tool.
func NewShell() *Shell { return &Shell{} }

// Execute runs cfg.Body["command"] through /bin/sh -c via
// exec.CommandContext. body["args"] is not read.
func (s *Shell) Execute(ctx context.Context, cfg Config, execCtx ExecutionContext) (Result, error) {
	return TimedExecute(func() (Result, error) {
		command, _ := cfg.Body["command"].(string)
		if command == "" {
			return Result{Status: StatusError, Error: "shell tool requires body.command"},
				apperrors.NewValidationError("shell", "command is required")
		}

		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Minute
		}
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
		cmd.Env = envFromContext(execCtx)

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		err := cmd.Run()
		exitCode := 0
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}

		result := Result{
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			ExitCode: exitCode,
		}

		switch {
		case runCtx.Err() != nil:
			result.Status = StatusTimeout
			result.Error = runCtx.Err().Error()
			return result, runCtx.Err()
		case err != nil:
			result.Status = StatusError
			result.Error = err.Error()
			return result, nil
		default:
			result.Status = StatusSuccess
			return result, nil
		}
	})
}

func envFromContext(execCtx ExecutionContext) []string {
	env := append(os.Environ(), fmt.Sprintf("NOETL_EXECUTION_ID=%d", execCtx.ExecutionID), "NOETL_STEP="+execCtx.Step)
	for k, v := range execCtx.Variables {
		env = append(env, fmt.Sprintf("NOETL_VAR_%s=%v", k, v))
	}
	return env
}
