package memory

import (
	"encoding/json"
	"fmt"
	"time"
)

// Graph and vector backends hand properties back in different shapes
// (native Go values, float64 after JSON, json.Number from Neo4j).

func stringProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func floatProp(props map[string]any, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	}
	return 0
}

func intProp(props map[string]any, key string) int {
	return int(floatProp(props, key))
}

func stringsProp(props map[string]any, key string) []string {
	switch v := props[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}

func timeProp(props map[string]any, key string) time.Time {
	s := stringProp(props, key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func mapProp(props map[string]any, key string) map[string]any {
	if v, ok := props[key].(map[string]any); ok {
		return v
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
