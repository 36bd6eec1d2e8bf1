package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoTool struct{}

func (echoTool) Execute(_ context.Context, cfg Config, _ ExecutionContext) (Result, error) {
	return Result{Status: StatusSuccess, Data: cfg.Body}, nil
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register("echo", echoTool{})

	got, ok := r.Get("echo")
	require.True(t, ok)
	assert.NotNil(t, got)
	assert.True(t, r.Has("echo"))
	assert.False(t, r.Has("missing"))
}

func TestExecuteFromConfigDispatchesOnKind(t *testing.T) {
	r := NewRegistry()
	r.Register("echo", echoTool{})

	result, err := r.ExecuteFromConfig(context.Background(), Config{Kind: "echo", Body: map[string]any{"x": 1}}, ExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 1, result.Data["x"])
}

func TestExecuteFromConfigMissingKindFails(t *testing.T) {
	r := NewRegistry()
	_, err := r.ExecuteFromConfig(context.Background(), Config{}, ExecutionContext{})
	require.Error(t, err)
}

func TestExecuteUnknownToolReturnsNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute(context.Background(), "nope", Config{}, ExecutionContext{})
	require.Error(t, err)
}

func TestListIsSortedAndReflectsRegistrations(t *testing.T) {
	r := NewRegistry()
	r.Register("b", echoTool{})
	r.Register("a", echoTool{})
	assert.Equal(t, []string{"a", "b"}, r.List())
}

func TestDefaultRegistryCoversClosedKindSet(t *testing.T) {
	r := NewDefaultRegistry()
	for _, kind := range []string{
		"http", "postgres", "duckdb", "ducklake", "python", "workbook",
		"playbook", "playbooks", "secrets", "iterator", "container", "script",
		"snowflake", "transfer", "snowflake_transfer", "gcs", "gateway", "nats",
		"shell", "artifact", "noop", "task_sequence", "rhai",
	} {
		assert.True(t, r.Has(kind), "expected kind %q to be registered", kind)
	}
}

func TestDefaultRegistryStubKindReturnsInternalError(t *testing.T) {
	r := NewDefaultRegistry()
	_, err := r.Execute(context.Background(), "duckdb", Config{}, ExecutionContext{})
	require.Error(t, err)
}
