// Package jobs runs the daemon's housekeeping on cron schedules: history
// pruning, periodic stats lines. Bars never go through here; their cadence
// is owned by the ticker.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

type Service struct {
	mu sync.Mutex

	log    *slog.Logger
	parser cron.Parser
	c      *cron.Cron
	defs   []jobDef

	runCtx    context.Context
	runCancel context.CancelFunc
}

type jobDef struct {
	name string
	spec string // cron spec or @every descriptor
	job  func(ctx context.Context)
}

func New(log *slog.Logger) *Service {
	return &Service{
		log:    log,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Add registers a job. Definitions are stored, so registering before Start
// is supported; jobs added while running are scheduled immediately.
func (s *Service) Add(name, spec string, job func(ctx context.Context)) error {
	if _, err := s.parser.Parse(spec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d := jobDef{name: name, spec: spec, job: job}
	s.defs = append(s.defs, d)
	if s.c != nil {
		return s.addLocked(d)
	}
	return nil
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.c = cron.New(cron.WithParser(s.parser))
	for _, d := range s.defs {
		if err := s.addLocked(d); err != nil {
			s.log.Warn("job registration failed", slog.String("job", d.name), slog.Any("err", err))
		}
	}
	s.c.Start()
	s.log.Info("jobs started", slog.Int("jobs", len(s.defs)))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.c == nil {
		s.mu.Unlock()
		return
	}
	c := s.c
	cancel := s.runCancel
	s.c = nil
	s.runCancel = nil
	s.mu.Unlock()

	cancel()
	select {
	case <-c.Stop().Done():
		s.log.Info("jobs stopped")
	case <-ctx.Done():
	}
}

func (s *Service) addLocked(d jobDef) error {
	if s.c == nil {
		return errors.New("jobs not started")
	}
	runCtx := s.runCtx
	_, err := s.c.AddFunc(d.spec, func() {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in job", slog.String("job", d.name), slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			}
		}()
		d.job(runCtx)
		s.log.Debug("job ran", slog.String("job", d.name), slog.Duration("took", time.Since(start)))
	})
	return err
}
