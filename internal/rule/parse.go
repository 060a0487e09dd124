package rule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultRule is substituted by callers when a bar has no rule configured.
const DefaultRule = "year"

// ErrBadRule is wrapped by all Parse failures.
var ErrBadRule = errors.New("unrecognized rule")

// Parse converts a rule string into a Descriptor.
//
// Accepted forms (case-insensitive, surrounding whitespace ignored):
//
//   - "year", "month", "week" — calendar-derived cycles.
//   - "<value><unit>" with unit s/m/h/d — e.g. "30s", "90m", "16h", "365d".
//     s/m/h values are normalized to seconds; d stays a day count.
//   - "<value>h <value><unit>" — hour cycle with a start-of-day offset,
//     e.g. "16h 8h" is a 16-hour cycle starting at 08:00.
//
// A malformed offset token is ignored rather than rejected (the offset stays
// zero); extra tokens beyond the second are ignored as well. A first token
// that does not parse, or that yields a non-positive cycle length, fails.
func Parse(raw string) (Descriptor, error) {
	s := strings.ToLower(strings.TrimSpace(raw))

	switch s {
	case "":
		return Descriptor{}, fmt.Errorf("%w: empty string", ErrBadRule)
	case "year":
		return Descriptor{Unit: UnitYear}, nil
	case "month":
		return Descriptor{Unit: UnitMonth}, nil
	case "week":
		return Descriptor{Total: 7, Unit: UnitWeek}, nil
	}

	fields := strings.Fields(s)
	total, unit, err := parseToken(fields[0])
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %q: %v", ErrBadRule, raw, err)
	}
	if total <= 0 {
		return Descriptor{}, fmt.Errorf("%w: %q: cycle length must be positive", ErrBadRule, raw)
	}

	d := Descriptor{Total: total, Unit: unit}
	if len(fields) > 1 && unit == UnitHours {
		// The offset only makes sense for hour cycles; a token that fails to
		// parse is silently ignored to stay forgiving of hand-typed rules.
		if off, _, err := parseToken(fields[1]); err == nil && off >= 0 {
			d.Offset = off
		}
	}
	return d, nil
}

// parseToken splits a "<number><suffix>" token. s/m/h values are returned in
// seconds; d values are returned as a bare day count.
func parseToken(tok string) (float64, Unit, error) {
	if len(tok) < 2 {
		return 0, 0, fmt.Errorf("token %q too short", tok)
	}
	v, err := strconv.ParseFloat(tok[:len(tok)-1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("token %q: bad number", tok)
	}
	switch tok[len(tok)-1] {
	case 's':
		return v, UnitSeconds, nil
	case 'm':
		return v * 60, UnitMinutes, nil
	case 'h':
		return v * 3600, UnitHours, nil
	case 'd':
		return v, UnitDays, nil
	default:
		return 0, 0, fmt.Errorf("token %q: unknown unit suffix", tok)
	}
}
