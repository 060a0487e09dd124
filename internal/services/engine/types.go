package engine

import (
	"time"

	"chronobar/internal/rule"
)

// Update is one bar's re-evaluated progress, emitted when its granularity
// appeared in a tick's changed set.
type Update struct {
	Name     string
	Progress float64
	At       time.Time
}

// Recorder receives update batches for persistence. Implementations must not
// block: the engine calls Record on the tick path.
type Recorder interface {
	Record(updates []Update)
}

// Snapshot is a point-in-time view of the engine for introspection.
type Snapshot struct {
	Bars     int
	ByGran   map[string][]string // granularity name -> sorted bar names
	LastTick time.Time
	Ticks    uint64
}

// BarInfo describes one configured bar.
type BarInfo struct {
	Name        string
	Rule        rule.Descriptor
	Granularity rule.Granularity
}
