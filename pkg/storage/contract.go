package storage

import (
	"encoding/json"
	"math"
	"strings"
)

// CheckContract verifies that value satisfies the return-spec shape: every
// field the shape names must be present with a matching type. Unknown type
// labels pass. Extra fields in value are allowed.
func CheckContract(value map[string]any, shape map[string]any) error {
	for field, want := range shape {
		label, ok := want.(string)
		if !ok {
			continue
		}
		got, present := value[field]
		if !present {
			return &ContractViolationError{Field: field, Reason: "missing"}
		}
		if !typeMatches(label, got) {
			return &ContractViolationError{Field: field, Reason: "expected " + label}
		}
	}
	return nil
}

func typeMatches(label string, v any) bool {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "string", "str":
		_, ok := v.(string)
		return ok
	case "int", "integer":
		return isIntegral(v)
	case "float", "number":
		return isNumeric(v)
	case "bool", "boolean":
		_, ok := v.(bool)
		return ok
	case "array", "list":
		_, ok := v.([]any)
		return ok
	case "object", "dict", "map":
		_, ok := v.(map[string]any)
		return ok
	default:
		return true
	}
}

// Booleans never satisfy numeric labels even though some encoders conflate
// them.
func isNumeric(v any) bool {
	switch n := v.(type) {
	case bool:
		return false
	case float64, float32, int, int32, int64:
		return true
	case json.Number:
		_, err := n.Float64()
		return err == nil
	default:
		return false
	}
}

func isIntegral(v any) bool {
	switch n := v.(type) {
	case bool:
		return false
	case int, int32, int64:
		return true
	case float64:
		return n == math.Trunc(n)
	case float32:
		f := float64(n)
		return f == math.Trunc(f)
	case json.Number:
		_, err := n.Int64()
		return err == nil
	default:
		return false
	}
}
