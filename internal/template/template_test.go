package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRenderPlainStringIsUnchanged follows §8's quantified invariant:
// for every template string without delimiters, render(s, ctx) == s.
func TestRenderPlainStringIsUnchanged(t *testing.T) {
	got, err := Render("just plain text", map[string]any{"name": "world"})
	require.NoError(t, err)
	assert.Equal(t, "just plain text", got)
}

func TestRenderSubstitutesVariable(t *testing.T) {
	got, err := Render("hello {{ name }}", map[string]any{"name": "world"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
}

func TestRenderAppliesFilterChain(t *testing.T) {
	got, err := Render("{{ name | upper | trim }}", map[string]any{"name": "  ada  "})
	require.NoError(t, err)
	assert.Equal(t, "ADA", got)
}

func TestRenderDefaultFilterFallsBackOnEmpty(t *testing.T) {
	got, err := Render("{{ missing | default('fallback') }}", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "fallback", got)
}

func TestRenderToValueCoercesTypes(t *testing.T) {
	v, err := RenderToValue("{{ n }}", map[string]any{"n": 42})
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = RenderToValue("{{ flag }}", map[string]any{"flag": true})
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = RenderToValue("null", nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestRenderValueRecursesIntoMapsAndSlices(t *testing.T) {
	ctx := map[string]any{"name": "ada"}
	value := map[string]any{
		"greeting": "hello {{ name }}",
		"tags":     []any{"a-{{ name }}", "b"},
	}
	rendered, err := RenderValue(value, ctx)
	require.NoError(t, err)

	m := rendered.(map[string]any)
	assert.Equal(t, "hello ada", m["greeting"])
	assert.Equal(t, []any{"a-ada", "b"}, m["tags"])
}

func TestEvaluateConditionTrueFalsy(t *testing.T) {
	ok, err := EvaluateCondition("1 == 1", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = EvaluateCondition("1 == 2", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestEvaluateConditionCaseBranching follows scenario 4 from the
// testable properties.
func TestEvaluateConditionCaseBranching(t *testing.T) {
	ctx := map[string]any{"result": map[string]any{"code": float64(404)}}
	ok, err := EvaluateCondition("result.code == 404", ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDefinedAndUndefinedTests(t *testing.T) {
	ctx := map[string]any{"name": "ada"}
	ok, err := EvaluateCondition("defined(name)", ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = EvaluateCondition("undefined(missing)", ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestJSONPathExpression(t *testing.T) {
	ctx := map[string]any{"result": map[string]any{"code": float64(200)}}
	got, err := Render("{{ $.result.code }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "200", got)
}

func TestPathFilterReachesIntoNestedStructure(t *testing.T) {
	ctx := map[string]any{"result": map[string]any{"items": []any{map[string]any{"id": "x"}}}}
	got, err := Render("{{ result | path('items.0.id') }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "x", got)
}

func TestJoinAndSplitFilters(t *testing.T) {
	got, err := Render("{{ csv | split(',') | join('-') }}", map[string]any{"csv": "a,b,c"})
	require.NoError(t, err)
	assert.Equal(t, "a-b-c", got)
}
