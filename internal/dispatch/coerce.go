package dispatch

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hession/calcmate/internal/tools"
)

const maxValueRepr = 64

// coerceNumber interprets a raw argument as a number. Numeric kinds,
// json.Number and numeric strings are accepted; everything else is rejected.
func coerceNumber(v any) (tools.Number, bool) {
	switch n := v.(type) {
	case float64:
		return fromFloat(n)
	case float32:
		return fromFloat(float64(n))
	case int:
		return tools.Number{Value: float64(n), Integral: true}, true
	case int8:
		return tools.Number{Value: float64(n), Integral: true}, true
	case int16:
		return tools.Number{Value: float64(n), Integral: true}, true
	case int32:
		return tools.Number{Value: float64(n), Integral: true}, true
	case int64:
		return tools.Number{Value: float64(n), Integral: true}, true
	case uint:
		return tools.Number{Value: float64(n), Integral: true}, true
	case uint8:
		return tools.Number{Value: float64(n), Integral: true}, true
	case uint16:
		return tools.Number{Value: float64(n), Integral: true}, true
	case uint32:
		return tools.Number{Value: float64(n), Integral: true}, true
	case uint64:
		return tools.Number{Value: float64(n), Integral: true}, true
	case json.Number:
		return parseNumeric(string(n))
	case string:
		return parseNumeric(n)
	default:
		// nil, bool, maps, slices and anything else
		return tools.Number{}, false
	}
}

func fromFloat(f float64) (tools.Number, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return tools.Number{}, false
	}
	return tools.Number{Value: f, Integral: f == math.Trunc(f)}, true
}

// parseNumeric parses a decimal literal; the value is integral when
// written without a fraction or exponent ("4" but not "4.0" or "4e0")
func parseNumeric(s string) (tools.Number, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return tools.Number{}, false
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return tools.Number{}, false
	}

	return tools.Number{Value: f, Integral: !strings.ContainsAny(s, ".eEpP")}, true
}

// describeValue renders a rejected value's type and representation for error messages
func describeValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		return fmt.Sprintf("boolean %t", val)
	case string:
		return fmt.Sprintf("string %q", truncate(val))
	case json.Number:
		return fmt.Sprintf("number %q", truncate(string(val)))
	case map[string]any:
		return "object " + truncate(compactJSON(val))
	case []any:
		return "array " + truncate(compactJSON(val))
	case float64, float32:
		return fmt.Sprintf("number %v", val)
	default:
		return fmt.Sprintf("%T %s", v, truncate(fmt.Sprint(v)))
	}
}

func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func truncate(s string) string {
	if len(s) <= maxValueRepr {
		return s
	}
	return s[:maxValueRepr] + "..."
}
