package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptEvaluatesFinalExpression(t *testing.T) {
	s := NewScript()
	result, err := s.Execute(context.Background(), Config{Body: map[string]any{"code": "1 + 2"}}, ExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.EqualValues(t, 3, result.Data["value"])
}

func TestScriptSeesVarsAndSecrets(t *testing.T) {
	s := NewScript()
	execCtx := ExecutionContext{
		Variables: map[string]any{"x": float64(10)},
		Secrets:   map[string]any{"token": "abc"},
	}
	result, err := s.Execute(context.Background(), Config{Body: map[string]any{"code": "vars.x + secrets.token.length"}}, execCtx)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.EqualValues(t, 13, result.Data["value"])
}

func TestScriptSyntaxErrorIsErrorStatus(t *testing.T) {
	s := NewScript()
	result, err := s.Execute(context.Background(), Config{Body: map[string]any{"code": "this is not js ("}}, ExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, StatusError, result.Status)
	assert.NotEmpty(t, result.Error)
}

func TestScriptMissingCodeIsValidationError(t *testing.T) {
	s := NewScript()
	_, err := s.Execute(context.Background(), Config{}, ExecutionContext{})
	require.Error(t, err)
}
