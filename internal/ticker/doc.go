// Package ticker wakes observers at calendar-boundary crossings.
//
// # Overview
//
// The Service keeps a registration table mapping observer names to the
// granularity (second/minute/hour/day) they need to be woken for. A single
// timer runs at the cadence of the finest registered granularity, aligned to
// real calendar boundaries; each fire reports the set of calendar components
// that actually advanced since the previous fire. A day-only table therefore
// wakes once per midnight, while adding one second-granularity observer
// shifts the whole table to per-second wake-ups.
//
// # State machine
//
// With an empty table the Service is idle and holds no timer. Any table
// update cancels the current timer, recaptures the baseline calendar
// components, and re-arms at the (possibly new) finest cadence, so stale
// baselines can never produce spurious change reports.
//
// # Clock discontinuities
//
// System sleep and manual clock changes are not special-cased: the next fire
// simply finds several components changed at once and reports them all.
// Consumers must treat "changed" as "re-derive the current value", never as
// "advanced by exactly one unit".
package ticker
