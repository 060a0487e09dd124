package ticker

import (
	"strings"
	"time"

	"chronobar/internal/rule"
)

// TickFunc receives the wake-up instant and the set of granularities whose
// calendar component advanced since the previous wake-up.
type TickFunc func(at time.Time, changed GranSet)

// GranSet is a small set of granularities, reported per tick.
type GranSet uint8

func (s GranSet) Has(g rule.Granularity) bool { return s&(1<<uint(g)) != 0 }
func (s *GranSet) Add(g rule.Granularity)     { *s |= 1 << uint(g) }
func (s GranSet) Empty() bool                 { return s == 0 }

func (s GranSet) String() string {
	if s.Empty() {
		return "none"
	}
	parts := make([]string, 0, 4)
	for _, g := range []rule.Granularity{rule.Second, rule.Minute, rule.Hour, rule.Day} {
		if s.Has(g) {
			parts = append(parts, g.String())
		}
	}
	return strings.Join(parts, "|")
}

// Registration pairs an observer name with its required granularity.
type Registration struct {
	Name        string
	Granularity rule.Granularity
}

// Snapshot is a point-in-time view of the scheduler for introspection.
type Snapshot struct {
	Running       bool
	Active        bool
	Finest        rule.Granularity
	Registrations []Registration
	LastTick      time.Time
	Ticks         uint64
}
