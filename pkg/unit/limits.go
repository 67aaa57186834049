package unit

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNotAllowed indicates a command value outside the advertised limits.
// Commands failing this check produce no network traffic.
var ErrNotAllowed = errors.New("value outside advertised limits")

// Limits is the advertised constraint for one function: an enumerated
// set of legal values, with a numeric range derived when every member is
// numeric (e.g. SETPTEMP advertises [160,320] meaning 16.0-32.0°C).
//
// A missing Limits entry means "unconstrained, allow anything"; an
// advertisement with an empty list is treated the same way.
type Limits struct {
	// Values are the legal tokens, uppercase, in advertised order.
	Values []string

	// Numeric is set when every advertised value is an integer; Min and
	// Max then hold the derived range.
	Numeric  bool
	Min, Max int
}

// NewLimits derives Limits from an advertised value list.
func NewLimits(values []string) Limits {
	l := Limits{}
	for _, v := range values {
		v = strings.ToUpper(strings.TrimSpace(v))
		if v != "" {
			l.Values = append(l.Values, v)
		}
	}
	if len(l.Values) == 0 {
		return l
	}

	// Scan for numeric members; all-numeric advertisements define a range.
	numeric := true
	for i, v := range l.Values {
		n, err := strconv.Atoi(v)
		if err != nil {
			numeric = false
			break
		}
		if i == 0 || n < l.Min {
			l.Min = n
		}
		if i == 0 || n > l.Max {
			l.Max = n
		}
	}
	l.Numeric = numeric
	if !numeric {
		l.Min, l.Max = 0, 0
	}
	return l
}

// Unconstrained reports whether the limits allow anything.
func (l Limits) Unconstrained() bool {
	return len(l.Values) == 0
}

// Allows reports whether the value is legal. Enumerated checks are
// case-insensitive; numeric limits check the range.
func (l Limits) Allows(value string) bool {
	if l.Unconstrained() {
		return true
	}
	value = strings.ToUpper(strings.TrimSpace(value))

	if l.Numeric {
		n, err := strconv.Atoi(value)
		if err != nil {
			return false
		}
		return n >= l.Min && n <= l.Max
	}

	for _, v := range l.Values {
		if v == value {
			return true
		}
	}
	return false
}

// AllowsNumber reports whether a numeric value is in range. For
// enumerated limits the number's decimal form is matched against the
// set.
func (l Limits) AllowsNumber(n int) bool {
	if l.Unconstrained() {
		return true
	}
	if l.Numeric {
		return n >= l.Min && n <= l.Max
	}
	return l.Allows(strconv.Itoa(n))
}

// Check returns ErrNotAllowed with context when the value is illegal.
func (l Limits) Check(name, value string) error {
	if l.Allows(value) {
		return nil
	}
	if l.Numeric {
		return fmt.Errorf("%w: %s=%s not in [%d,%d]", ErrNotAllowed, name, value, l.Min, l.Max)
	}
	return fmt.Errorf("%w: %s=%s not in %v", ErrNotAllowed, name, value, l.Values)
}

// next steps through the advertised order from current by one position.
// Stepping past the far end rolls to the sweep/auto token when the
// device advertises one; stepping past the near end fails. An empty or
// unknown current value starts at the first position.
func (l Limits) next(current string, up bool, rollTokens ...string) (string, error) {
	if l.Unconstrained() {
		return "", fmt.Errorf("%w: no advertised positions", ErrNotAllowed)
	}
	current = strings.ToUpper(strings.TrimSpace(current))

	idx := -1
	for i, v := range l.Values {
		if v == current {
			idx = i
			break
		}
	}
	if idx < 0 {
		return l.Values[0], nil
	}

	step := 1
	if !up {
		step = -1
	}
	n := idx + step
	if n >= 0 && n < len(l.Values) {
		return l.Values[n], nil
	}

	// Past the far end: transition to sweep/auto if supported.
	if up {
		for _, roll := range rollTokens {
			for _, v := range l.Values {
				if v == roll && v != current {
					return v, nil
				}
			}
		}
	}
	return "", fmt.Errorf("%w: already at %s", ErrNotAllowed, current)
}
