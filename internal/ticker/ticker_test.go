package ticker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"chronobar/internal/rule"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type tickEvent struct {
	at      time.Time
	changed GranSet
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func recvEvent(t *testing.T, ch <-chan tickEvent) tickEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tick")
		return tickEvent{}
	}
}

func expectNoEvent(t *testing.T, ch <-chan tickEvent) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected tick at %v (changed %s)", ev.at, ev.changed)
	case <-time.After(20 * time.Millisecond):
	}
}

func startService(t *testing.T, start time.Time, regs map[string]rule.Granularity) (*Service, *FakeClock, chan tickEvent) {
	t.Helper()
	clock := NewFakeClock(start)
	svc := New(testLogger(), clock)
	events := make(chan tickEvent, 64)
	svc.OnTick(func(at time.Time, changed GranSet) {
		events <- tickEvent{at: at, changed: changed}
	})
	svc.SetRegistrations(regs)

	ctx := context.Background()
	svc.Start(ctx)
	t.Cleanup(func() { svc.Stop(ctx) })
	if len(regs) > 0 {
		waitUntil(t, "initial arm", func() bool { return clock.PendingTimers() == 1 })
	}
	return svc, clock, events
}

func TestNextBoundary(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 3, 10, 15, 4, 5, 123_000_000, time.UTC)
	tests := []struct {
		g    rule.Granularity
		want time.Time
	}{
		{rule.Second, time.Date(2024, 3, 10, 15, 4, 6, 0, time.UTC)},
		{rule.Minute, time.Date(2024, 3, 10, 15, 5, 0, 0, time.UTC)},
		{rule.Hour, time.Date(2024, 3, 10, 16, 0, 0, 0, time.UTC)},
		{rule.Day, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := nextBoundary(tt.g, now); !got.Equal(tt.want) {
			t.Fatalf("nextBoundary(%v) = %v, want %v", tt.g, got, tt.want)
		}
	}

	// rollovers normalize across month and year ends
	eve := time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC)
	if got := nextBoundary(rule.Day, eve); !got.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("nextBoundary over year end = %v", got)
	}
}

func TestBaselineDiff(t *testing.T) {
	t.Parallel()
	var b baseline
	start := time.Date(2024, 3, 10, 23, 59, 59, 0, time.UTC)
	b.capture(start)

	if got := b.diff(start); !got.Empty() {
		t.Fatalf("no time passed, changed = %s", got)
	}

	mid := start.Add(time.Second)
	set := b.diff(mid)
	for _, g := range []rule.Granularity{rule.Second, rule.Minute, rule.Hour, rule.Day} {
		if !set.Has(g) {
			t.Fatalf("midnight crossing: missing %v in %s", g, set)
		}
	}

	// one year later, same day-of-year: still a day change
	b.capture(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	if set := b.diff(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)); !set.Has(rule.Day) {
		t.Fatalf("year gap not reported as day change: %s", set)
	}

	// unset baseline reports nothing
	var fresh baseline
	if set := fresh.diff(mid); !set.Empty() {
		t.Fatalf("unset baseline reported %s", set)
	}
}

func TestGranSet(t *testing.T) {
	t.Parallel()
	var s GranSet
	if !s.Empty() || s.String() != "none" {
		t.Fatalf("zero set: %s", s)
	}
	s.Add(rule.Second)
	s.Add(rule.Hour)
	if !s.Has(rule.Second) || !s.Has(rule.Hour) || s.Has(rule.Minute) || s.Has(rule.Day) {
		t.Fatalf("membership wrong: %s", s)
	}
	if s.String() != "second|hour" {
		t.Fatalf("String() = %q", s.String())
	}
}

func TestDayObserverDailyCadence(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, 3, 10, 15, 4, 5, 0, time.UTC)
	_, clock, events := startService(t, start, map[string]rule.Granularity{"year": rule.Day})

	// single timer, aligned to local midnight, no intermediate wake-ups
	next, ok := clock.NextDeadline()
	if !ok || !next.Equal(time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("armed for %v, want next midnight", next)
	}

	clock.Advance(8 * time.Hour)
	expectNoEvent(t, events)

	clock.Advance(56 * time.Minute) // crosses midnight at 00:00:05... total 8h56m -> 00:00:05
	ev := recvEvent(t, events)
	if !ev.changed.Has(rule.Day) {
		t.Fatalf("day boundary not reported: %s", ev.changed)
	}

	// re-armed for the following midnight
	next, ok = clock.NextDeadline()
	if !ok || !next.Equal(time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("re-armed for %v, want next midnight", next)
	}
}

func TestSecondObserverChangedSets(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, 3, 10, 23, 59, 58, 0, time.UTC)
	_, clock, events := startService(t, start, map[string]rule.Granularity{
		"seconds": rule.Second,
		"year":    rule.Day,
	})

	clock.Advance(time.Second) // 23:59:59
	ev := recvEvent(t, events)
	if !ev.changed.Has(rule.Second) || ev.changed.Has(rule.Minute) {
		t.Fatalf("plain second tick reported %s", ev.changed)
	}

	clock.Advance(time.Second) // midnight
	ev = recvEvent(t, events)
	for _, g := range []rule.Granularity{rule.Second, rule.Minute, rule.Hour, rule.Day} {
		if !ev.changed.Has(g) {
			t.Fatalf("midnight tick missing %v: %s", g, ev.changed)
		}
	}
}

func TestClockGapReportsEverything(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, 3, 10, 10, 30, 0, 0, time.UTC)
	_, clock, events := startService(t, start, map[string]rule.Granularity{"seconds": rule.Second})

	// host suspend: one fire finds hours and a day gone by
	clock.Advance(26 * time.Hour)
	ev := recvEvent(t, events)
	for _, g := range []rule.Granularity{rule.Hour, rule.Day} {
		if !ev.changed.Has(g) {
			t.Fatalf("gap tick missing %v: %s", g, ev.changed)
		}
	}

	// next arm is derived from the new now, not the stale schedule
	next, ok := clock.NextDeadline()
	if !ok || !next.Equal(time.Date(2024, 3, 11, 12, 30, 1, 0, time.UTC)) {
		t.Fatalf("re-armed for %v after gap", next)
	}
}

func TestReRegistrationDownshiftsCadence(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, 3, 10, 15, 4, 5, 0, time.UTC)
	svc, clock, events := startService(t, start, map[string]rule.Granularity{
		"seconds": rule.Second,
		"year":    rule.Day,
	})

	next, _ := clock.NextDeadline()
	if !next.Equal(start.Add(time.Second)) {
		t.Fatalf("expected per-second cadence, armed for %v", next)
	}

	// removing the second-granularity observer downshifts to daily
	svc.SetRegistrations(map[string]rule.Granularity{"year": rule.Day})
	midnight := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	waitUntil(t, "downshift re-arm", func() bool {
		next, ok := clock.NextDeadline()
		return ok && next.Equal(midnight) && clock.PendingTimers() == 1
	})

	clock.Advance(time.Second)
	expectNoEvent(t, events)
}

func TestEmptyTableGoesIdle(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, 3, 10, 15, 4, 5, 0, time.UTC)
	svc, clock, events := startService(t, start, map[string]rule.Granularity{"seconds": rule.Second})

	svc.SetRegistrations(nil)
	waitUntil(t, "idle", func() bool { return clock.PendingTimers() == 0 })

	clock.Advance(time.Hour)
	expectNoEvent(t, events)

	// first registration after idle re-activates
	svc.SetRegistrations(map[string]rule.Granularity{"minutes": rule.Minute})
	waitUntil(t, "re-activate", func() bool { return clock.PendingTimers() == 1 })
}

func TestBaselineResetOnReRegistration(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, 3, 10, 15, 4, 5, 0, time.UTC)
	svc, clock, events := startService(t, start, map[string]rule.Granularity{"minutes": rule.Minute})

	// time passes without any fire (cadence is per-minute)
	clock.Advance(20 * time.Second)
	expectNoEvent(t, events)

	// table update recaptures the baseline at 15:04:25; the next fire at
	// 15:05:00 must report a minute change, not a spurious second-only set
	svc.SetRegistrations(map[string]rule.Granularity{"minutes": rule.Minute, "seconds": rule.Second})
	waitUntil(t, "re-arm", func() bool {
		next, ok := clock.NextDeadline()
		return ok && next.Equal(time.Date(2024, 3, 10, 15, 4, 26, 0, time.UTC))
	})

	clock.Advance(time.Second)
	ev := recvEvent(t, events)
	if !ev.changed.Has(rule.Second) || ev.changed.Has(rule.Minute) {
		t.Fatalf("post-update tick reported %s", ev.changed)
	}
}

func TestStopHaltsWakeups(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, 3, 10, 15, 4, 5, 0, time.UTC)
	svc, clock, events := startService(t, start, map[string]rule.Granularity{"seconds": rule.Second})

	svc.Stop(context.Background())
	waitUntil(t, "teardown", func() bool { return clock.PendingTimers() == 0 })

	clock.Advance(time.Minute)
	expectNoEvent(t, events)
}

func TestNamesAndSnapshot(t *testing.T) {
	t.Parallel()
	svc := New(testLogger(), NewFakeClock(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)))
	svc.SetRegistrations(map[string]rule.Granularity{
		"year":    rule.Day,
		"month":   rule.Day,
		"seconds": rule.Second,
	})

	names := svc.Names(rule.Day)
	if len(names) != 2 || names[0] != "month" || names[1] != "year" {
		t.Fatalf("Names(Day) = %v", names)
	}
	if names := svc.Names(rule.Hour); len(names) != 0 {
		t.Fatalf("Names(Hour) = %v", names)
	}

	snap := svc.Snapshot()
	if snap.Running || !snap.Active || snap.Finest != rule.Second || len(snap.Registrations) != 3 {
		t.Fatalf("snapshot = %+v", snap)
	}
}
