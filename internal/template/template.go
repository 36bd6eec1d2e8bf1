// Package template implements the Jinja-style template engine (§4.2):
// `{{ ... }}` expression substitution (with a pipe filter chain) over a
// string-keyed variable mapping. `{% ... %}` statement blocks are
// removed from the output without being evaluated, so there is no
// if/for control flow.
// No teacher file does anything like this; built from scratch in the
// teacher's general idiom of thin wrappers over a well-known library,
// here PaesslerAG/gval for expression evaluation.
package template

import (
	"strings"

	"github.com/noetl/noetl/internal/apperrors"
)

const (
	exprOpen  = "{{"
	exprClose = "}}"
	stmtOpen  = "{%"
	stmtClose = "%}"
)

// HasDelimiters reports whether s contains either delimiter pair.
func HasDelimiters(s string) bool {
	return strings.Contains(s, exprOpen) || strings.Contains(s, stmtOpen)
}

// Render renders template against ctx. A template containing neither
// `{{` nor `{%` is returned unchanged (the fast path required by §8's
// quantified invariant).
func Render(tpl string, ctx map[string]any) (string, error) {
	if !HasDelimiters(tpl) {
		return tpl, nil
	}

	var out strings.Builder
	i := 0
	for i < len(tpl) {
		nextExpr := indexFrom(tpl, i, exprOpen)
		nextStmt := indexFrom(tpl, i, stmtOpen)

		switch {
		case nextExpr == -1 && nextStmt == -1:
			out.WriteString(tpl[i:])
			return out.String(), nil

		case nextStmt == -1 || (nextExpr != -1 && nextExpr < nextStmt):
			out.WriteString(tpl[i:nextExpr])
			end := strings.Index(tpl[nextExpr:], exprClose)
			if end == -1 {
				return "", apperrors.NewValidationError("template", "unterminated '{{' expression")
			}
			end += nextExpr
			expr := strings.TrimSpace(tpl[nextExpr+len(exprOpen) : end])
			value, err := evaluatePipeline(expr, ctx)
			if err != nil {
				return "", err
			}
			out.WriteString(stringify(value))
			i = end + len(exprClose)

		default:
			out.WriteString(tpl[i:nextStmt])
			end := strings.Index(tpl[nextStmt:], stmtClose)
			if end == -1 {
				return "", apperrors.NewValidationError("template", "unterminated '{%' statement")
			}
			end += nextStmt
			// Statement blocks never produce inline output; this engine
			// only needs the substitution semantics §8 quantifies over.
			i = end + len(stmtClose)
		}
	}
	return out.String(), nil
}

func indexFrom(s string, from int, sub string) int {
	idx := strings.Index(s[from:], sub)
	if idx == -1 {
		return -1
	}
	return from + idx
}

// EvaluateCondition wraps expr in `{{ }}` when it has no delimiters,
// renders it, and returns true iff the trimmed lowercased result is
// "true", "1", or "yes".
func EvaluateCondition(expr string, ctx map[string]any) (bool, error) {
	tpl := expr
	if !HasDelimiters(tpl) {
		tpl = exprOpen + " " + expr + " " + exprClose
	}
	rendered, err := Render(tpl, ctx)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(rendered)) {
	case "true", "1", "yes":
		return true, nil
	default:
		return false, nil
	}
}
