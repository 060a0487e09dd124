// Package history persists boundary-crossing progress samples to SQLite so
// recent bar activity can be inspected after the fact. Writes go through an
// internal queue; the tick path never blocks on the database.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"
	_ "modernc.org/sqlite"

	"chronobar/internal/services/engine"
)

//go:embed migrations.sql
var migrationsFS embed.FS

var ErrDisabled = errors.New("history store disabled")

type Config struct {
	Enabled     bool
	Path        string
	BusyTimeout time.Duration
	MaxAge      time.Duration
}

// Sample is one persisted progress event.
type Sample struct {
	At       time.Time
	Name     string
	Progress float64
}

type Service struct {
	db  *sql.DB
	log *slog.Logger
	cfg Config

	queue  chan []engine.Update
	stopCh chan struct{}
	done   chan struct{}

	warnLimit *rate.Limiter
}

func New(cfg Config, log *slog.Logger) (*Service, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("history path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &Service{
		db:        db,
		log:       log,
		cfg:       cfg,
		queue:     make(chan []engine.Update, 64),
		warnLimit: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Service) Start(ctx context.Context) {
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	go s.writer(ctx)
	s.log.Info("history store started", slog.String("path", s.cfg.Path))
}

func (s *Service) Stop(ctx context.Context) {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	select {
	case <-s.done:
	case <-ctx.Done():
	}
	s.stopCh = nil
	_ = s.db.Close()
	s.log.Info("history store stopped")
}

// Record implements engine.Recorder: non-blocking enqueue, drop on overflow.
func (s *Service) Record(updates []engine.Update) {
	select {
	case s.queue <- updates:
	default:
		if s.warnLimit.Allow() {
			s.log.Warn("history queue full, dropping batch", slog.Int("batch", len(updates)))
		}
	}
}

func (s *Service) writer(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case batch := <-s.queue:
			if err := s.insert(ctx, batch); err != nil {
				s.log.Warn("history write failed", slog.Any("err", err))
			}
		}
	}
}

func (s *Service) insert(ctx context.Context, batch []engine.Update) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO progress_events(at, name, progress) VALUES(?,?,?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, u := range batch {
		if _, err := stmt.ExecContext(ctx, u.At.Format(time.RFC3339Nano), u.Name, u.Progress); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Prune removes samples older than the configured max age and reports how
// many rows were deleted.
func (s *Service) Prune(ctx context.Context) (int64, error) {
	if s.cfg.MaxAge <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-s.cfg.MaxAge).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `DELETE FROM progress_events WHERE at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Recent returns the newest samples for one bar, most recent first.
func (s *Service) Recent(ctx context.Context, name string, limit int) ([]Sample, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, name, progress FROM progress_events WHERE name = ? ORDER BY at DESC LIMIT ?`,
		name, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Sample
	for rows.Next() {
		var (
			at string
			sm Sample
		)
		if err := rows.Scan(&at, &sm.Name, &sm.Progress); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, at); err == nil {
			sm.At = ts
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}
