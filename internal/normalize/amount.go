package normalize

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount normalizes a vendor monetary value to a decimal.
//
// Accepted inputs: JSON numbers (float64 after decoding), integers, plain
// decimal strings ("1234.50"), and locale-formatted strings with "." as the
// thousands separator and "," as the decimal separator ("1.234,50").
// Currency symbols and surrounding whitespace are stripped.
//
// Malformed values normalize to zero, never an error, and negative amounts
// clamp to zero: an order total is never negative post-normalization.
func ParseAmount(v any) decimal.Decimal {
	var d decimal.Decimal

	switch val := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		d = val
	case float64:
		d = decimal.NewFromFloat(val)
	case float32:
		d = decimal.NewFromFloat32(val)
	case int:
		d = decimal.NewFromInt(int64(val))
	case int64:
		d = decimal.NewFromInt(val)
	case string:
		d = parseAmountString(val)
	default:
		return decimal.Zero
	}

	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func parseAmountString(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}

	// Locale detection: a comma after the last dot means "," is the decimal
	// separator and "." groups thousands ("1.234,50"). A comma with no dot
	// after it is also decimal ("1234,50"). Otherwise the string is already
	// machine-formatted.
	lastComma := strings.LastIndexByte(s, ',')
	lastDot := strings.LastIndexByte(s, '.')
	if lastComma > lastDot {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	} else if lastComma != -1 {
		// "1,234.50" style: commas group thousands.
		s = strings.ReplaceAll(s, ",", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
