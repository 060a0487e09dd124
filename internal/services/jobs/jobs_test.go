package jobs

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestAddRejectsInvalidSpec(t *testing.T) {
	t.Parallel()
	s := New(testLogger())
	if err := s.Add("bad", "not-a-schedule", func(ctx context.Context) {}); err == nil {
		t.Fatal("expected error for invalid spec")
	}
	if err := s.Add("daily", "@daily", func(ctx context.Context) {}); err != nil {
		t.Fatalf("valid descriptor rejected: %v", err)
	}
	if err := s.Add("cron", "0 3 * * *", func(ctx context.Context) {}); err != nil {
		t.Fatalf("valid cron spec rejected: %v", err)
	}
}

func TestJobRunsOnInterval(t *testing.T) {
	t.Parallel()
	s := New(testLogger())
	var runs atomic.Int32
	if err := s.Add("tick", "@every 100ms", func(ctx context.Context) { runs.Add(1) }); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for runs.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("job never ran")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDoubleStartStopSafe(t *testing.T) {
	t.Parallel()
	s := New(testLogger())
	ctx := context.Background()
	s.Start(ctx)
	s.Start(ctx)
	s.Stop(ctx)
	s.Stop(ctx)
}
