package template

import (
	"encoding/json"
	"strconv"
	"strings"
)

// stringify renders a filter-pipeline result as template output text.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any, map[string]any:
		raw, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(raw)
	default:
		return toString(v)
	}
}

// RenderToValue renders tpl, then attempts to coerce the trimmed
// result to a JSON object/array, boolean, integer, float, or null,
// falling back to the string itself (§4.2).
func RenderToValue(tpl string, ctx map[string]any) (any, error) {
	rendered, err := Render(tpl, ctx)
	if err != nil {
		return nil, err
	}
	return coerce(rendered), nil
}

func coerce(s string) any {
	trimmed := strings.TrimSpace(s)

	switch trimmed {
	case "":
		return nil
	case "null", "None":
		return nil
	case "true":
		return true
	case "false":
		return false
	}

	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var out any
		if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
			return out
		}
	}

	if n, err := strconv.Atoi(trimmed); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}

	return s
}

// RenderValue recursively renders strings inside maps and slices,
// preserving structure. Map keys are rendered as strings.
func RenderValue(value any, ctx map[string]any) (any, error) {
	switch t := value.(type) {
	case string:
		return Render(t, ctx)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			renderedKey, err := Render(k, ctx)
			if err != nil {
				return nil, err
			}
			renderedValue, err := RenderValue(v, ctx)
			if err != nil {
				return nil, err
			}
			out[renderedKey] = renderedValue
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			renderedValue, err := RenderValue(v, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = renderedValue
		}
		return out, nil
	default:
		return value, nil
	}
}
