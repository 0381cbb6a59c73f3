// Package cellvalue renders table cell values into JSON for the UI and
// into lowercase search strings for the query engine. It is the only
// place cell values are interpreted; everything downstream works with
// either a JSON value or a search string.
package cellvalue

import (
	"encoding/json"
	"fmt"
	"time"
)

// ToJSON converts a cell value into a structural JSON value, preserving
// numeric types where possible. Dates/times are stringified (RFC 3339),
// lists become JSON arrays of converted elements, and unrecognized types
// fall back to fmt.Sprint.
func ToJSON(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case bool, string, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		return v
	case json.Number:
		return v
	case time.Time:
		return v.Format(time.RFC3339)
	case fmt.Stringer:
		return v.String()
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = ToJSON(elem)
		}
		return out
	default:
		return fmt.Sprint(v)
	}
}

// ToSearchString renders a cell value into a string suitable for
// case-insensitive containment matching, or ("", false) if the value is
// null or a list with no non-null elements. Booleans and numbers use their canonical text; lists concatenate
// element search strings with ','; anything else falls back to its JSON
// encoding. Callers are expected to lowercase the result before indexing.
func ToSearchString(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case bool:
		return fmt.Sprint(v), true
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return fmt.Sprint(v), true
	case []any:
		parts := make([]string, 0, len(v))
		for _, elem := range v {
			if text, ok := ToSearchString(elem); ok {
				parts = append(parts, text)
			}
		}
		if len(parts) == 0 {
			return "", false
		}
		joined := ""
		for i, p := range parts {
			if i > 0 {
				joined += ","
			}
			joined += p
		}
		return joined, true
	default:
		data, err := json.Marshal(ToJSON(v))
		if err != nil {
			return fmt.Sprint(v), true
		}
		return string(data), true
	}
}

// DisplayLength returns the character (not byte) count of the JSON
// rendering of value, used for column-width metrics.
func DisplayLength(value any) int {
	switch v := value.(type) {
	case nil:
		return 0
	case bool:
		if v {
			return 4
		}
		return 5
	case string:
		return len([]rune(v))
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return len([]rune(fmt.Sprint(v)))
	default:
		data, err := json.Marshal(ToJSON(v))
		if err != nil {
			return 0
		}
		return len([]rune(string(data)))
	}
}
