package tool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShellCapturesStdout(t *testing.T) {
	s := NewShell()
	result, err := s.Execute(context.Background(), Config{Body: map[string]any{"command": "echo hello"}}, ExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, "hello\n", result.Stdout)
	assert.Equal(t, 0, result.ExitCode)
}

func TestShellNonZeroExitIsErrorStatus(t *testing.T) {
	s := NewShell()
	result, err := s.Execute(context.Background(), Config{Body: map[string]any{"command": "exit 3"}}, ExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, 3, result.ExitCode)
}

func TestShellMissingCommandIsValidationError(t *testing.T) {
	s := NewShell()
	_, err := s.Execute(context.Background(), Config{}, ExecutionContext{})
	require.Error(t, err)
}

func TestShellRespectsTimeout(t *testing.T) {
	s := NewShell()
	result, err := s.Execute(context.Background(), Config{
		Body:    map[string]any{"command": "sleep 2"},
		Timeout: 20 * time.Millisecond,
	}, ExecutionContext{})
	require.Error(t, err)
	assert.Equal(t, StatusTimeout, result.Status)
}
