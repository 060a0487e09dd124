package rule

import (
	"math"
	"time"
)

// Progress computes the rule's 0..1 completion at the given instant, using
// the instant's own location for all calendar fields. The result is clamped
// to [0,1] at exact boundaries; hour cycles that run past their stated
// length saturate at 1 rather than wrapping.
func (d Descriptor) Progress(at time.Time) float64 {
	switch d.Unit {
	case UnitSeconds:
		if d.Total <= 0 {
			return 0
		}
		s := float64(at.Second()) + float64(at.Nanosecond())/1e9
		return clamp(math.Mod(s, d.Total) / d.Total)

	case UnitMinutes:
		if d.Total <= 0 {
			return 0
		}
		t := float64(at.Minute()*60+at.Second()) + float64(at.Nanosecond())/1e9
		return clamp(math.Mod(t, d.Total) / d.Total)

	case UnitHours:
		if d.Total <= 0 {
			return 0
		}
		e := sinceMidnight(at) - d.Offset
		if e < 0 {
			// cycle has not started yet today
			return 0
		}
		return clamp(e / d.Total)

	case UnitDays:
		if d.Total <= 0 {
			return 0
		}
		return clamp(float64(at.YearDay()) / d.Total)

	case UnitWeek:
		return clamp(float64(isoWeekday(at)) / 7)

	case UnitMonth:
		return clamp(float64(at.Day()) / float64(daysInMonth(at)))

	case UnitYear:
		return clamp(float64(at.YearDay()) / float64(daysInYear(at)))
	}
	return 0
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func sinceMidnight(at time.Time) float64 {
	h, m, s := at.Clock()
	return float64(h*3600+m*60+s) + float64(at.Nanosecond())/1e9
}

// isoWeekday remaps Go's Sunday-based weekday to Monday=1 .. Sunday=7,
// independent of any locale first-day-of-week setting.
func isoWeekday(at time.Time) int {
	wd := int(at.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func daysInMonth(at time.Time) int {
	y, m, _ := at.Date()
	// day 0 of the next month normalizes to the last day of this one
	return time.Date(y, m+1, 0, 0, 0, 0, 0, at.Location()).Day()
}

func daysInYear(at time.Time) int {
	return time.Date(at.Year(), 12, 31, 0, 0, 0, 0, at.Location()).YearDay()
}
