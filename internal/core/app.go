// Package core wires the daemon together: config manager, logging, ticker,
// engine, history store, and housekeeping jobs, with hot reload of the
// config file.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"chronobar/internal/config"
	"chronobar/internal/rule"
	"chronobar/internal/services/engine"
	"chronobar/internal/services/history"
	"chronobar/internal/services/jobs"
	"chronobar/internal/services/logging"
	"chronobar/internal/ticker"
	"chronobar/pkg/logx"
)

type App struct {
	boot logx.Logger
	mgr  *config.Manager

	logSvc *logging.Service
	log    *slog.Logger

	tick *ticker.Service
	eng  *engine.Service
	hist *history.Service
	jobs *jobs.Service

	watchCancel context.CancelFunc
	wg          sync.WaitGroup
}

func NewApp(cfgPath string) (*App, error) {
	boot := logx.NewConsole("info")

	mgr := config.NewManager(cfgPath)
	mgr.SetLogger(boot)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := validate(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	mgr.SetValidator(validate)

	logSvc, log := logging.New(logging.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logging.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	tick := ticker.New(log.With(slog.String("svc", "ticker")), ticker.SystemClock())
	eng := engine.New(log.With(slog.String("svc", "engine")), tick, ticker.SystemClock())

	app := &App{
		boot:   boot,
		mgr:    mgr,
		logSvc: logSvc,
		log:    log,
		tick:   tick,
		eng:    eng,
		jobs:   jobs.New(log.With(slog.String("svc", "jobs"))),
	}

	if hc := cfg.History; hc != nil && hc.Enabled {
		busy, err := config.ParseDurationOrDefault("history.busy_timeout", hc.BusyTimeout, 5*time.Second)
		if err != nil {
			return nil, err
		}
		maxAge, err := config.ParseDurationField("history.max_age", hc.MaxAge)
		if err != nil {
			return nil, err
		}
		hist, err := history.New(history.Config{
			Enabled:     true,
			Path:        hc.Path,
			BusyTimeout: busy,
			MaxAge:      maxAge,
		}, log.With(slog.String("svc", "history")))
		if err != nil {
			return nil, fmt.Errorf("open history store: %w", err)
		}
		app.hist = hist
		eng.SetRecorder(hist, hc.RatePerSec)
	}

	return app, nil
}

func (a *App) Start(ctx context.Context) error {
	cfg := a.mgr.Get()

	if a.hist != nil {
		a.hist.Start(ctx)
		spec := "@daily"
		if cfg.History != nil && strings.TrimSpace(cfg.History.PruneSchedule) != "" {
			spec = strings.TrimSpace(cfg.History.PruneSchedule)
		}
		if err := a.jobs.Add("history:prune", spec, func(ctx context.Context) {
			n, err := a.hist.Prune(ctx)
			if err != nil {
				a.log.Warn("history prune failed", slog.Any("err", err))
				return
			}
			a.log.Info("history pruned", slog.Int64("deleted", n))
		}); err != nil {
			return fmt.Errorf("register prune job: %w", err)
		}
	}
	if err := a.jobs.Add("engine:stats", "0 * * * *", func(ctx context.Context) {
		snap := a.eng.Snapshot()
		a.log.Info("engine stats",
			slog.Int("bars", snap.Bars),
			slog.Uint64("ticks", snap.Ticks),
			slog.Time("last_tick", snap.LastTick))
	}); err != nil {
		return fmt.Errorf("register stats job: %w", err)
	}

	a.tick.Start(ctx)
	a.jobs.Start(ctx)

	if err := a.eng.SetRules(barRules(cfg)); err != nil {
		// validated at load time; a failure here is a programming error
		return fmt.Errorf("register bars: %w", err)
	}

	// log the initial values once so an operator can sanity-check rules
	for _, u := range a.eng.Current() {
		a.log.Info("bar", slog.String("name", u.Name), slog.Float64("progress", u.Progress))
	}

	watchCtx, cancel := context.WithCancel(ctx)
	a.watchCancel = cancel
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		_ = a.mgr.Watch(watchCtx)
	}()
	updates := a.mgr.Subscribe(2)
	go func() {
		defer a.wg.Done()
		defer a.mgr.Unsubscribe(updates)
		prev := cfg
		for {
			select {
			case <-watchCtx.Done():
				return
			case next, ok := <-updates:
				if !ok {
					return
				}
				a.applyConfig(prev, next)
				prev = next
			}
		}
	}()

	notifyReady()
	a.log.Info("chronobar started", slog.Int("bars", len(cfg.Engine.Bars)))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	notifyStopping()
	if a.watchCancel != nil {
		a.watchCancel()
	}
	a.jobs.Stop(ctx)
	a.tick.Stop(ctx)
	if a.hist != nil {
		a.hist.Stop(ctx)
	}
	a.wg.Wait()
	a.log.Info("chronobar stopped")
	return a.logSvc.Close()
}

// applyConfig pushes a committed config revision into the running services.
// History storage settings only apply on restart; everything else is live.
func (a *App) applyConfig(prev, next *config.Config) {
	changed, attrs, bars := config.SummarizeChange(prev, next)
	if len(changed) == 0 {
		return
	}
	a.boot.Info("applying config change", append(attrs, logx.Any("sections", changed))...)

	a.logSvc.Apply(logging.Config{
		Level:   next.Logging.Level,
		Console: next.Logging.Console,
		File: logging.FileConfig{
			Enabled: next.Logging.File.Enabled,
			Path:    next.Logging.File.Path,
		},
	})

	if err := a.eng.SetRules(barRules(next)); err != nil {
		a.log.Warn("bar update rejected", slog.Any("err", err))
		return
	}
	if len(bars) > 0 {
		a.log.Info("bars updated", slog.Any("bars", bars))
	}
}

// validate is the config gate: every configured rule string must parse, so
// nothing unparseable can ever reach the scheduler.
func validate(_ context.Context, cfg *config.Config) error {
	def := strings.TrimSpace(cfg.Engine.DefaultRule)
	if def != "" {
		if _, err := rule.Parse(def); err != nil {
			return fmt.Errorf("engine.default_rule: %w", err)
		}
	}
	for name, raw := range cfg.Engine.Bars {
		if strings.TrimSpace(raw) == "" {
			continue // falls back to the default rule
		}
		if _, err := rule.Parse(raw); err != nil {
			return fmt.Errorf("engine.bars[%s]: %w", name, err)
		}
	}
	if hc := cfg.History; hc != nil && hc.Enabled {
		if strings.TrimSpace(hc.Path) == "" {
			return fmt.Errorf("history.path is required when history is enabled")
		}
		if _, err := config.ParseDurationField("history.max_age", hc.MaxAge); err != nil {
			return err
		}
	}
	return nil
}

// barRules resolves the configured bar table: empty rules fall back to the
// default, and second-granularity bars are dropped when show_seconds is off
// so the scheduler never has to run at per-second cadence for them.
func barRules(cfg *config.Config) map[string]string {
	def := strings.TrimSpace(cfg.Engine.DefaultRule)
	if def == "" {
		def = rule.DefaultRule
	}

	out := make(map[string]string, len(cfg.Engine.Bars))
	for name, raw := range cfg.Engine.Bars {
		r := strings.TrimSpace(raw)
		if r == "" {
			r = def
		}
		if !cfg.Engine.ShowSeconds {
			if d, err := rule.Parse(r); err == nil && d.Granularity() == rule.Second {
				continue
			}
		}
		out[name] = r
	}
	return out
}
