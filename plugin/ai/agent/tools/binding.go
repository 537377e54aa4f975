package tools

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/tidwall/gjson"

	aierrors "github.com/hrygo/agentcore/internal/errors"
)

// bindingPattern matches {{stepId}} and {{stepId.path}} placeholders.
var bindingPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_\-]+)((?:\.|\[)[^}]*)?\s*\}\}`)

// indexPattern rewrites [n] array access into gjson's .n form.
var indexPattern = regexp.MustCompile(`\[(\d+)\]`)

// Binding is one placeholder found in step arguments.
type Binding struct {
	StepID string
	// Path is a gjson path into the step result; empty means the whole result.
	Path string
}

func (b Binding) String() string {
	if b.Path == "" {
		return "{{" + b.StepID + "}}"
	}
	return "{{" + b.StepID + "." + b.Path + "}}"
}

func parseBinding(m []string) Binding {
	path := indexPattern.ReplaceAllString(strings.TrimSpace(m[2]), ".$1")
	return Binding{StepID: m[1], Path: strings.TrimPrefix(path, ".")}
}

// References returns the distinct step ids referenced anywhere in args, sorted.
func References(args map[string]any) []string {
	var ids []string
	walkStrings(args, func(s string) {
		for _, m := range bindingPattern.FindAllStringSubmatch(s, -1) {
			if id := m[1]; !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	})
	slices.Sort(ids)
	return ids
}

// HasBindings reports whether any argument still contains a placeholder.
func HasBindings(args map[string]any) bool {
	return len(References(args)) > 0
}

// ResolveArgs substitutes placeholders with values looked up in the results
// of earlier steps. A string that is exactly one placeholder is replaced by the
// typed JSON value; placeholders embedded in longer strings are interpolated.
// Lookups that find nothing are reported as an INVALID_ARGUMENT error.
func ResolveArgs(args map[string]any, results map[string]json.RawMessage) (map[string]any, error) {
	var unresolved []string
	resolved, _ := resolveValue(args, results, &unresolved).(map[string]any)
	if len(unresolved) > 0 {
		return nil, aierrors.InvalidArgument("unresolved bindings: " + strings.Join(unresolved, ", "))
	}
	return resolved, nil
}

func resolveValue(v any, results map[string]json.RawMessage, unresolved *[]string) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = resolveValue(item, results, unresolved)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = resolveValue(item, results, unresolved)
		}
		return out
	case string:
		return resolveString(val, results, unresolved)
	default:
		return v
	}
}

func resolveString(s string, results map[string]json.RawMessage, unresolved *[]string) any {
	matches := bindingPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	lookup := func(m []string) (gjson.Result, bool) {
		b := parseBinding(m)
		raw, ok := results[b.StepID]
		if !ok {
			*unresolved = append(*unresolved, b.String())
			return gjson.Result{}, false
		}
		r := gjson.ParseBytes(raw)
		if b.Path != "" {
			r = r.Get(b.Path)
		}
		if !r.Exists() {
			*unresolved = append(*unresolved, b.String())
			return gjson.Result{}, false
		}
		return r, true
	}

	// Whole-string placeholder keeps the JSON type.
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		r, ok := lookup(bindingPattern.FindStringSubmatch(s))
		if !ok {
			return s
		}
		return normalizeJSONValue(r.Value())
	}

	return bindingPattern.ReplaceAllStringFunc(s, func(placeholder string) string {
		r, ok := lookup(bindingPattern.FindStringSubmatch(placeholder))
		if !ok {
			return placeholder
		}
		if r.Type == gjson.String {
			return r.Str
		}
		return r.Raw
	})
}

// normalizeJSONValue turns whole floats into int so integer parameters validate
// and render without a decimal point.
func normalizeJSONValue(v any) any {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return int64(f)
	}
	return v
}

func walkStrings(v any, fn func(string)) {
	switch val := v.(type) {
	case map[string]any:
		for _, item := range val {
			walkStrings(item, fn)
		}
	case []any:
		for _, item := range val {
			walkStrings(item, fn)
		}
	case string:
		fn(val)
	}
}

// ArgString renders an argument value for URLs and logs.
func ArgString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
	}
	return fmt.Sprint(v)
}
