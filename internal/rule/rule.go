// Package rule parses cycle-rule strings and evaluates their progress.
//
// A rule describes a repeating span of wall-clock time ("16h 8h", "30s",
// "week"). Parse turns a rule string into an immutable Descriptor; the
// Descriptor computes a 0..1 progress value for any instant and classifies
// the calendar granularity at which its value can change. The package is
// pure: no clocks, no timers, no I/O.
package rule

import "fmt"

// Unit identifies the calendar semantics of a cycle.
type Unit int

const (
	UnitSeconds Unit = iota
	UnitMinutes
	UnitHours
	UnitDays
	UnitWeek
	UnitMonth
	UnitYear
)

func (u Unit) String() string {
	switch u {
	case UnitSeconds:
		return "seconds"
	case UnitMinutes:
		return "minutes"
	case UnitHours:
		return "hours"
	case UnitDays:
		return "days"
	case UnitWeek:
		return "week"
	case UnitMonth:
		return "month"
	case UnitYear:
		return "year"
	default:
		return fmt.Sprintf("unit(%d)", int(u))
	}
}

// Granularity is the coarseness at which a rule's displayed value changes.
// Values are ordered: Second < Minute < Hour < Day.
type Granularity int

const (
	Second Granularity = iota
	Minute
	Hour
	Day
)

func (g Granularity) String() string {
	switch g {
	case Second:
		return "second"
	case Minute:
		return "minute"
	case Hour:
		return "hour"
	case Day:
		return "day"
	default:
		return fmt.Sprintf("granularity(%d)", int(g))
	}
}

// Interval is the fixed wake-up spacing for a granularity once aligned to a
// calendar boundary.
func (g Granularity) Interval() int {
	switch g {
	case Second:
		return 1
	case Minute:
		return 60
	case Hour:
		return 3600
	default:
		return 86400
	}
}

// Descriptor is the parsed, immutable form of a rule string.
//
// Total is the cycle length in seconds for second/minute/hour-unit rules and
// a bare day count for day-unit rules. Week/month/year rules derive their
// length from the calendar and leave Total unused (Week keeps 7 for
// introspection). Offset is seconds from local midnight and only affects
// hour-unit rules.
type Descriptor struct {
	Total  float64
	Offset float64
	Unit   Unit
}

// Granularity reports the coarsest calendar component that must be watched
// to notice a change in this rule's progress.
func (d Descriptor) Granularity() Granularity {
	switch d.Unit {
	case UnitSeconds:
		return Second
	case UnitMinutes:
		return Minute
	case UnitHours:
		return Hour
	default:
		return Day
	}
}
