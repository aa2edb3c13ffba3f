package parser

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Decimal is a fixed-point number: Unscaled × 10^-Scale.
type Decimal struct {
	Unscaled int64
	Scale    int
}

// ParseDecimal reads s as a decimal. Without an explicit point the value is
// taken to have impliedScale decimal places, so "0035" with scale 1 is 3.5.
func ParseDecimal(s string, impliedScale int) (Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Decimal{}, fmt.Errorf("empty decimal")
	}
	intPart, frac, hasPoint := strings.Cut(s, ".")
	if !hasPoint {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Decimal{}, err
		}
		return Decimal{Unscaled: n, Scale: impliedScale}, nil
	}
	if strings.ContainsAny(frac, "+- ") {
		return Decimal{}, fmt.Errorf("invalid decimal %q", s)
	}
	neg := strings.HasPrefix(intPart, "-")
	digits := strings.TrimLeft(intPart, "+-")
	if digits == "" {
		digits = "0"
	}
	n, err := strconv.ParseInt(digits+frac, 10, 64)
	if err != nil {
		return Decimal{}, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	if neg {
		n = -n
	}
	return Decimal{Unscaled: n, Scale: len(frac)}, nil
}

// Float64 converts to a float; exact for the magnitudes found in feed data.
func (d Decimal) Float64() float64 {
	return float64(d.Unscaled) / math.Pow10(d.Scale)
}

func (d Decimal) String() string {
	if d.Scale <= 0 {
		return strconv.FormatInt(d.Unscaled, 10)
	}
	neg := d.Unscaled < 0
	u := d.Unscaled
	if neg {
		u = -u
	}
	digits := strconv.FormatInt(u, 10)
	if len(digits) <= d.Scale {
		digits = strings.Repeat("0", d.Scale-len(digits)+1) + digits
	}
	cut := len(digits) - d.Scale
	out := digits[:cut] + "." + digits[cut:]
	if neg {
		out = "-" + out
	}
	return out
}

// Value stores decimals as text so NUMERIC columns keep every digit.
func (d Decimal) Value() (driver.Value, error) {
	return d.String(), nil
}

func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(d.String()), nil
}
