package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// TickScale is the fixed-point denominator for all monetary and odds values.
// The reward token displays 4 decimal places, so one tick is 0.0001.
const TickScale = 10_000

// Ticks is a fixed-point decimal amount with 4 fractional digits. Odds, entry
// fees, point totals, and payouts are all carried as Ticks so that summation
// over many picks never accumulates floating-point drift.
type Ticks int64

// TicksFromFloat converts a display value to Ticks, rounding half away from
// zero at the 4th decimal.
func TicksFromFloat(v float64) Ticks {
	if v >= 0 {
		return Ticks(v*TickScale + 0.5)
	}
	return Ticks(v*TickScale - 0.5)
}

// ParseTicks parses a decimal string such as "1.8500" into Ticks. It accepts
// up to 4 fractional digits and rejects anything finer.
func ParseTicks(s string) (Ticks, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("ticks: empty value")
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 4 {
		return 0, fmt.Errorf("ticks: %q exceeds 4 decimal places", s)
	}
	// Right-pad the fraction to exactly 4 digits.
	frac = frac + strings.Repeat("0", 4-len(frac))

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ticks: parse %q: %w", s, err)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ticks: parse %q: %w", s, err)
	}

	t := Ticks(w*TickScale + f)
	if neg {
		t = -t
	}
	return t, nil
}

// Float returns the display value. Use only at presentation boundaries; all
// arithmetic stays in Ticks.
func (t Ticks) Float() float64 {
	return float64(t) / TickScale
}

// String formats the value with exactly 4 decimal places, e.g. "3.9500".
func (t Ticks) String() string {
	v := int64(t)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%04d", sign, v/TickScale, v%TickScale)
}

// MulBps multiplies by a basis-point fraction (10000 bps = 1.0) using integer
// arithmetic with floor rounding. Used by the payout pool split.
func (t Ticks) MulBps(bps int64) Ticks {
	return Ticks(int64(t) * bps / 10_000)
}

// MarshalJSON encodes Ticks as a JSON string with 4 decimal places, matching
// the wire format the client renders ("entryOdds": "1.8500").
func (t Ticks) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON accepts either a quoted decimal string or a bare JSON number.
func (t *Ticks) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParseTicks(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
