// Package engine re-evaluates named progress bars on calendar ticks.
//
// The engine owns the bar table (name -> parsed rule), registers the
// matching granularities on the ticker, and on every tick evaluates exactly
// the bars whose granularity advanced, publishing the batch to subscribers.
// Rule strings are validated at SetRules time; nothing unparseable ever
// reaches the ticker.
package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"chronobar/internal/rule"
	"chronobar/internal/ticker"
)

type Service struct {
	mu sync.Mutex

	log   *slog.Logger
	tick  *ticker.Service
	clock ticker.Clock

	bars map[string]rule.Descriptor

	subsMu sync.Mutex
	subs   []chan []Update

	recorder Recorder
	recLimit *rate.Limiter

	// throttles "subscriber slow" warnings so a stuck consumer cannot spam
	// the log at second cadence
	warnLimit *rate.Limiter
}

func New(log *slog.Logger, tick *ticker.Service, clock ticker.Clock) *Service {
	if clock == nil {
		clock = ticker.SystemClock()
	}
	s := &Service{
		log:       log,
		tick:      tick,
		clock:     clock,
		bars:      map[string]rule.Descriptor{},
		warnLimit: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
	tick.OnTick(s.handleTick)
	return s
}

// SetRecorder installs an optional persistence sink. perSec bounds how many
// tick batches per second are forwarded; second-granularity bars otherwise
// turn every wall-clock second into a disk write.
func (s *Service) SetRecorder(r Recorder, perSec int) {
	if perSec <= 0 {
		perSec = 1
	}
	s.mu.Lock()
	s.recorder = r
	s.recLimit = rate.NewLimiter(rate.Limit(perSec), perSec)
	s.mu.Unlock()
}

// SetRules replaces the whole bar table. Every rule string must parse; on
// the first failure the table is left untouched and the error names the bar.
func (s *Service) SetRules(rules map[string]string) error {
	parsed := make(map[string]rule.Descriptor, len(rules))
	regs := make(map[string]rule.Granularity, len(rules))
	for name, raw := range rules {
		d, err := rule.Parse(raw)
		if err != nil {
			return fmt.Errorf("bar %q: %w", name, err)
		}
		parsed[name] = d
		regs[name] = d.Granularity()
	}

	s.mu.Lock()
	s.bars = parsed
	s.mu.Unlock()

	s.tick.SetRegistrations(regs)
	s.log.Info("bars registered", slog.Int("bars", len(parsed)))
	return nil
}

// Bars lists the configured bars, sorted by name.
func (s *Service) Bars() []BarInfo {
	s.mu.Lock()
	out := make([]BarInfo, 0, len(s.bars))
	for name, d := range s.bars {
		out = append(out, BarInfo{Name: name, Rule: d, Granularity: d.Granularity()})
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Current evaluates every bar at "now". Used for the initial render and for
// introspection; ticks only ever deliver the changed subset.
func (s *Service) Current() []Update {
	now := s.clock.Now()
	s.mu.Lock()
	out := make([]Update, 0, len(s.bars))
	for name, d := range s.bars {
		out = append(out, Update{Name: name, Progress: d.Progress(now), At: now})
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Subscribe returns a channel receiving update batches. Slow subscribers get
// drop-oldest delivery, never blocking the tick path.
func (s *Service) Subscribe(buffer int) chan []Update {
	ch := make(chan []Update, buffer)
	s.subsMu.Lock()
	s.subs = append(s.subs, ch)
	s.subsMu.Unlock()
	return ch
}

func (s *Service) Unsubscribe(ch chan []Update) {
	if ch == nil {
		return
	}
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for i, sub := range s.subs {
		if sub == ch {
			last := len(s.subs) - 1
			s.subs[i] = s.subs[last]
			s.subs[last] = nil
			s.subs = s.subs[:last]
			close(ch)
			return
		}
	}
}

func (s *Service) handleTick(at time.Time, changed ticker.GranSet) {
	s.mu.Lock()
	updates := make([]Update, 0, len(s.bars))
	for name, d := range s.bars {
		if changed.Has(d.Granularity()) {
			updates = append(updates, Update{Name: name, Progress: d.Progress(at), At: at})
		}
	}
	rec := s.recorder
	recLimit := s.recLimit
	s.mu.Unlock()

	if len(updates) == 0 {
		return
	}
	sort.Slice(updates, func(i, j int) bool { return updates[i].Name < updates[j].Name })

	s.publish(updates)
	if rec != nil && recLimit.Allow() {
		rec.Record(updates)
	}
}

func (s *Service) publish(updates []Update) {
	// Hold subsMu while sending to avoid send-on-closed panics.
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		if ch == nil {
			continue
		}
		select {
		case ch <- updates:
		default:
			// drop oldest, then push the newest batch
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- updates:
			default:
				if s.warnLimit.Allow() {
					s.log.Warn("update batch dropped (subscriber slow)",
						slog.Int("queue_cap", cap(ch)))
				}
			}
		}
	}
}
