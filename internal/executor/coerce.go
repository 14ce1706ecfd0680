package executor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// toFloat accepts numbers and numeric strings, tolerating thousands separators
// and a leading currency sign.
func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		s := strings.TrimSpace(t)
		s = strings.TrimLeft(s, "$€£৳₹")
		s = strings.ReplaceAll(s, ",", "")
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", t)
		}
		return f, nil
	}
	return 0, fmt.Errorf("not a number: %v", v)
}

func toBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1", "done", "checked":
			return true
		}
	}
	return false
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		var out []string
		for _, p := range strings.Split(t, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if m, ok := e.(map[string]any); ok {
				out = append(out, toString(m["name"]))
				continue
			}
			out = append(out, toString(e))
		}
		return out
	}
	return []string{toString(v)}
}
