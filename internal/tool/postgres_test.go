package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPostgresMissingDSNIsValidationError(t *testing.T) {
	p := NewPostgres()
	_, err := p.Execute(context.Background(), Config{Body: map[string]any{"query": "select 1"}}, ExecutionContext{})
	require.Error(t, err)
}

func TestPostgresMissingQueryIsValidationError(t *testing.T) {
	p := NewPostgres()
	_, err := p.Execute(context.Background(), Config{Auth: map[string]any{"dsn": "postgres://localhost/db"}}, ExecutionContext{})
	require.Error(t, err)
}
