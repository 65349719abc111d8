package tools

import (
	"math"
	"strconv"
	"strings"
)

// maxIntegralDigits bounds plain integer rendering; larger values use float notation
const maxIntegralDigits = 1e21

// FormatOperand renders an argument value for result text
func FormatOperand(n Number) string {
	return FormatNumber(n.Value, n.Integral)
}

// FormatNumber renders v without a fractional part when integral is set,
// otherwise as the shortest round-trip decimal that always shows one
// ("102.0", "25.5", "1e+16").
func FormatNumber(v float64, integral bool) string {
	if integral && !math.IsInf(v, 0) && v == math.Trunc(v) && math.Abs(v) < maxIntegralDigits {
		if v == 0 {
			v = 0 // drop the sign of -0
		}
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return formatFloat(v)
}

func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case v == 0:
		if math.Signbit(v) {
			return "-0.0"
		}
		return "0.0"
	}

	if exp := decimalExponent(v); exp < -4 || exp >= 16 {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}

	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// decimalExponent returns the base-10 exponent of v's shortest representation
func decimalExponent(v float64) int {
	s := strconv.FormatFloat(math.Abs(v), 'e', -1, 64)
	idx := strings.IndexByte(s, 'e')
	if idx < 0 {
		return 0
	}
	exp, err := strconv.Atoi(s[idx+1:])
	if err != nil {
		return 0
	}
	return exp
}
