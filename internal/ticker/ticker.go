package ticker

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"chronobar/internal/rule"
)

// Service is the calendar-boundary tick scheduler. One Service owns one
// timer; all baseline state is mutated only by its own run loop and API
// calls, never shared across instances.
type Service struct {
	mu sync.Mutex

	log   *slog.Logger
	clock Clock

	regs   map[string]rule.Granularity
	onTick TickFunc

	base     baseline
	lastTick time.Time
	ticks    uint64

	rearmCh chan struct{}
	stopCh  chan struct{}
	done    chan struct{}
}

func New(log *slog.Logger, clock Clock) *Service {
	if clock == nil {
		clock = SystemClock()
	}
	return &Service{
		log:     log,
		clock:   clock,
		regs:    map[string]rule.Granularity{},
		rearmCh: make(chan struct{}, 1),
	}
}

// OnTick installs the callback invoked on every boundary crossing. The
// callback runs on the Service's own goroutine and must not block.
func (s *Service) OnTick(fn TickFunc) {
	s.mu.Lock()
	s.onTick = fn
	s.mu.Unlock()
}

// SetRegistrations replaces the whole registration table. The baseline is
// recaptured and the timer re-armed at the new finest cadence; an empty
// table transitions the scheduler to idle. Safe to call whether or not the
// Service is started.
func (s *Service) SetRegistrations(regs map[string]rule.Granularity) {
	cp := make(map[string]rule.Granularity, len(regs))
	for name, g := range regs {
		cp[name] = g
	}
	now := s.clock.Now()

	s.mu.Lock()
	s.regs = cp
	// Fresh baseline on every table update so stale component values can
	// never surface as spurious "changed" reports.
	s.base.capture(now)
	s.mu.Unlock()

	select {
	case s.rearmCh <- struct{}{}:
	default:
	}
}

// Names returns the registered observer names for one granularity, sorted.
func (s *Service) Names(g rule.Granularity) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for name, rg := range s.regs {
		if rg == g {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	stopCh, done := s.stopCh, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in ticker loop", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			}
		}()
		s.run(ctx, stopCh)
	}()
	s.log.Info("ticker started")
}

// Stop deterministically halts the timer; no wake-ups are delivered after it
// returns (unless ctx expires first, in which case teardown finishes in the
// background).
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stopCh, done := s.stopCh, s.done
	s.stopCh, s.done = nil, nil
	s.mu.Unlock()

	close(stopCh)
	select {
	case <-done:
		s.log.Info("ticker stopped")
	case <-ctx.Done():
	}
}

func (s *Service) run(ctx context.Context, stopCh chan struct{}) {
	var tm Timer
	var tmC <-chan time.Time

	disarm := func() {
		if tm != nil {
			tm.Stop()
			tm, tmC = nil, nil
		}
	}
	// Re-arming is atomic with respect to this goroutine: the old timer is
	// stopped and its channel unreferenced before the new one exists, so a
	// stale fire can never be observed.
	arm := func() {
		disarm()
		g, active := s.finest()
		if !active {
			s.log.Debug("ticker idle")
			return
		}
		now := s.clock.Now()
		next := nextBoundary(g, now)
		tm = s.clock.NewTimer(next.Sub(now))
		tmC = tm.C()
		s.log.Debug("ticker armed", slog.String("granularity", g.String()), slog.Time("next", next))
	}

	// A rearm requested before Start is already covered by the initial arm.
	select {
	case <-s.rearmCh:
	default:
	}

	arm()
	for {
		select {
		case <-ctx.Done():
			disarm()
			return
		case <-stopCh:
			disarm()
			return
		case <-s.rearmCh:
			arm()
		case <-tmC:
			at, changed, cb := s.advance()
			// re-derive the next boundary before delivering, so the timer
			// stays calendar-aligned across DST shifts and host suspend
			arm()
			if cb != nil && !changed.Empty() {
				cb(at, changed)
			}
		}
	}
}

// advance recomputes the calendar components, updates the baseline, and
// returns what changed. An empty set (a misaligned fire) is a no-op for the
// caller, never an error.
func (s *Service) advance() (time.Time, GranSet, TickFunc) {
	now := s.clock.Now()
	s.mu.Lock()
	changed := s.base.diff(now)
	s.base.capture(now)
	cb := s.onTick
	s.lastTick = now
	s.ticks++
	s.mu.Unlock()
	return now, changed, cb
}

func (s *Service) finest() (rule.Granularity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.regs) == 0 {
		return 0, false
	}
	g := rule.Day
	for _, rg := range s.regs {
		if rg < g {
			g = rg
		}
	}
	return g, true
}

// nextBoundary returns the first calendar boundary of granularity g strictly
// after now, in now's location. Day boundaries are local midnight, not
// now+86400s, so DST transitions stay aligned.
func nextBoundary(g rule.Granularity, now time.Time) time.Time {
	y, mo, d := now.Date()
	h, mi, sec := now.Clock()
	loc := now.Location()
	switch g {
	case rule.Second:
		return time.Date(y, mo, d, h, mi, sec+1, 0, loc)
	case rule.Minute:
		return time.Date(y, mo, d, h, mi+1, 0, 0, loc)
	case rule.Hour:
		return time.Date(y, mo, d, h+1, 0, 0, 0, loc)
	default:
		return time.Date(y, mo, d+1, 0, 0, 0, 0, loc)
	}
}

// baseline holds the last-observed calendar components. The year rides along
// with the day-of-year so a wake-up after a very long gap still reports a
// day change.
type baseline struct {
	valid bool
	sec   int
	min   int
	hour  int
	yday  int
	year  int
}

func (b *baseline) capture(at time.Time) {
	b.valid = true
	b.sec = at.Second()
	b.min = at.Minute()
	b.hour = at.Hour()
	b.yday = at.YearDay()
	b.year = at.Year()
}

func (b baseline) diff(at time.Time) GranSet {
	var set GranSet
	if !b.valid {
		return set
	}
	if at.Second() != b.sec {
		set.Add(rule.Second)
	}
	if at.Minute() != b.min {
		set.Add(rule.Minute)
	}
	if at.Hour() != b.hour {
		set.Add(rule.Hour)
	}
	if at.YearDay() != b.yday || at.Year() != b.year {
		set.Add(rule.Day)
	}
	return set
}
