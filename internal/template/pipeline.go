package template

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PaesslerAG/gval"
	"github.com/PaesslerAG/jsonpath"
	"github.com/noetl/noetl/internal/apperrors"
)

// language is the gval dialect used for expression evaluation, carrying
// the "is ___" test functions as plain function calls (the contract
// explicitly allows naming to differ from Jinja's built-in tests).
var language = gval.Full(
	gval.Function("defined", func(v any) bool { return v != nil }),
	gval.Function("undefined", func(v any) bool { return v == nil }),
	gval.Function("none", func(v any) bool { return v == nil }),
	gval.Function("string", func(v any) bool { _, ok := v.(string); return ok }),
	gval.Function("number", isNumber),
	gval.Function("sequence", func(v any) bool { _, ok := v.([]any); return ok }),
	gval.Function("mapping", func(v any) bool { _, ok := v.(map[string]any); return ok }),
)

func isNumber(v any) bool {
	switch v.(type) {
	case int, int64, float64, float32:
		return true
	default:
		return false
	}
}

// evaluatePipeline evaluates the leading gval expression, then applies
// each `| filter(args...)` stage left to right.
func evaluatePipeline(expr string, ctx map[string]any) (any, error) {
	stages := splitTopLevel(expr, '|')
	if len(stages) == 0 {
		return nil, apperrors.NewValidationError("template", "empty expression")
	}

	value, err := evalExpr(stages[0], ctx)
	if err != nil {
		return nil, err
	}

	for _, stage := range stages[1:] {
		value, err = applyFilter(strings.TrimSpace(stage), value, ctx)
		if err != nil {
			return nil, err
		}
	}
	return value, nil
}

func evalExpr(expr string, ctx map[string]any) (any, error) {
	expr = strings.TrimSpace(expr)

	// A leading '$' addresses the context via JSONPath instead of gval's
	// dotted-identifier grammar, for reaching into nested tool results.
	if strings.HasPrefix(expr, "$") {
		value, err := jsonpath.Get(expr, toParams(ctx))
		if err != nil {
			return nil, apperrors.NewValidationError("template", fmt.Sprintf("jsonpath %q: %v", expr, err))
		}
		return value, nil
	}

	value, err := language.Evaluate(normalizeQuotes(expr), toParams(ctx))
	if err != nil {
		return nil, apperrors.NewValidationError("template", fmt.Sprintf("evaluate %q: %v", expr, err))
	}
	return value, nil
}

// normalizeQuotes rewrites single-quoted string literals to
// double-quoted ones, since filter arguments are conventionally
// written Jinja-style with single quotes but gval's grammar expects
// double quotes.
func normalizeQuotes(expr string) string {
	if !strings.Contains(expr, "'") {
		return expr
	}
	var out strings.Builder
	inSingle := false
	for _, r := range expr {
		switch {
		case r == '\'':
			inSingle = !inSingle
			out.WriteByte('"')
		default:
			out.WriteRune(r)
		}
	}
	return out.String()
}

func toParams(ctx map[string]any) map[string]any {
	if ctx == nil {
		return map[string]any{}
	}
	return ctx
}

// splitTopLevel splits s on sep, ignoring occurrences inside quotes,
// parens, or brackets.
func splitTopLevel(s string, sep rune) []string {
	var parts []string
	var depth int
	var inQuote rune
	start := 0
	for i, r := range s {
		switch {
		case inQuote != 0:
			if r == inQuote {
				inQuote = 0
			}
		case r == '\'' || r == '"':
			inQuote = r
		case r == '(' || r == '[':
			depth++
		case r == ')' || r == ']':
			depth--
		case r == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// applyFilter parses "name(arg, arg)" or bare "name" and dispatches to
// the filter registry.
func applyFilter(stage string, value any, ctx map[string]any) (any, error) {
	name := stage
	var argExprs []string
	if open := strings.Index(stage, "("); open != -1 && strings.HasSuffix(stage, ")") {
		name = strings.TrimSpace(stage[:open])
		inner := stage[open+1 : len(stage)-1]
		if strings.TrimSpace(inner) != "" {
			for _, a := range splitTopLevel(inner, ',') {
				argExprs = append(argExprs, strings.TrimSpace(a))
			}
		}
	}

	args := make([]any, 0, len(argExprs))
	for _, a := range argExprs {
		v, err := evalExpr(a, ctx)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	fn, ok := filters[name]
	if !ok {
		return nil, apperrors.NewValidationError("template", "unknown filter "+strconv.Quote(name))
	}
	return fn(value, args)
}
