package template

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/noetl/noetl/internal/apperrors"
	"github.com/tidwall/gjson"
)

type filterFunc func(value any, args []any) (any, error)

// filters implements the required filter set from §4.2. Names match
// the contract's suggested spelling; the contract explicitly allows
// substituting equivalent names as long as semantics match.
var filters = map[string]filterFunc{
	"b64encode": func(v any, _ []any) (any, error) {
		return base64.StdEncoding.EncodeToString([]byte(toString(v))), nil
	},
	"b64decode": func(v any, _ []any) (any, error) {
		decoded, err := base64.StdEncoding.DecodeString(toString(v))
		if err != nil {
			return nil, apperrors.NewValidationError("template", "b64decode: "+err.Error())
		}
		return string(decoded), nil
	},
	"tojson": func(v any, _ []any) (any, error) {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, apperrors.NewValidationError("template", "tojson: "+err.Error())
		}
		return string(raw), nil
	},
	"fromjson": func(v any, _ []any) (any, error) {
		var out any
		if err := json.Unmarshal([]byte(toString(v)), &out); err != nil {
			return nil, apperrors.NewValidationError("template", "fromjson: "+err.Error())
		}
		return out, nil
	},
	"default": func(v any, args []any) (any, error) {
		if v == nil || v == "" {
			if len(args) > 0 {
				return args[0], nil
			}
			return "", nil
		}
		return v, nil
	},
	"int": func(v any, _ []any) (any, error) {
		switch t := v.(type) {
		case int:
			return t, nil
		case int64:
			return int(t), nil
		case float64:
			return int(t), nil
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(t))
			if err != nil {
				return nil, apperrors.NewValidationError("template", "int: "+err.Error())
			}
			return n, nil
		default:
			return nil, apperrors.NewValidationError("template", "int: unsupported type")
		}
	},
	"float": func(v any, _ []any) (any, error) {
		switch t := v.(type) {
		case float64:
			return t, nil
		case int:
			return float64(t), nil
		case int64:
			return float64(t), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
			if err != nil {
				return nil, apperrors.NewValidationError("template", "float: "+err.Error())
			}
			return f, nil
		default:
			return nil, apperrors.NewValidationError("template", "float: unsupported type")
		}
	},
	"string": func(v any, _ []any) (any, error) { return toString(v), nil },
	"lower":  func(v any, _ []any) (any, error) { return strings.ToLower(toString(v)), nil },
	"upper":  func(v any, _ []any) (any, error) { return strings.ToUpper(toString(v)), nil },
	"trim":   func(v any, _ []any) (any, error) { return strings.TrimSpace(toString(v)), nil },
	"split": func(v any, args []any) (any, error) {
		sep := " "
		if len(args) > 0 {
			sep = toString(args[0])
		}
		parts := strings.Split(toString(v), sep)
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	},
	"join": func(v any, args []any) (any, error) {
		sep := ""
		if len(args) > 0 {
			sep = toString(args[0])
		}
		items, err := toSlice(v)
		if err != nil {
			return nil, err
		}
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = toString(item)
		}
		return strings.Join(parts, sep), nil
	},
	"first": func(v any, _ []any) (any, error) {
		items, err := toSlice(v)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, nil
		}
		return items[0], nil
	},
	"last": func(v any, _ []any) (any, error) {
		items, err := toSlice(v)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, nil
		}
		return items[len(items)-1], nil
	},
	"length": func(v any, _ []any) (any, error) {
		switch t := v.(type) {
		case string:
			return len(t), nil
		case []any:
			return len(t), nil
		case map[string]any:
			return len(t), nil
		default:
			return 0, nil
		}
	},
	"keys": func(v any, _ []any) (any, error) {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, apperrors.NewValidationError("template", "keys: value is not a mapping")
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = k
		}
		return out, nil
	},
	"values": func(v any, _ []any) (any, error) {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, apperrors.NewValidationError("template", "values: value is not a mapping")
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = m[k]
		}
		return out, nil
	},
	"items": func(v any, _ []any) (any, error) {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, apperrors.NewValidationError("template", "items: value is not a mapping")
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = []any{k, m[k]}
		}
		return out, nil
	},
	"get": func(v any, args []any) (any, error) {
		if len(args) == 0 {
			return nil, apperrors.NewValidationError("template", "get: requires a key argument")
		}
		m, ok := v.(map[string]any)
		if !ok {
			return nil, apperrors.NewValidationError("template", "get: value is not a mapping")
		}
		key := toString(args[0])
		if val, ok := m[key]; ok {
			return val, nil
		}
		if len(args) > 1 {
			return args[1], nil
		}
		return nil, nil
	},
	// path applies a gjson path expression to a value serialized to
	// JSON first, for reaching into nested tool-result structures
	// without a full jsonpath round trip.
	"path": func(v any, args []any) (any, error) {
		if len(args) == 0 {
			return nil, apperrors.NewValidationError("template", "path: requires a path argument")
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, apperrors.NewValidationError("template", "path: "+err.Error())
		}
		result := gjson.GetBytes(raw, toString(args[0]))
		if !result.Exists() {
			return nil, nil
		}
		return result.Value(), nil
	},
}

func toSlice(v any) ([]any, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, apperrors.NewValidationError("template", "value is not a sequence")
	}
	return items, nil
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
