package ticker

import "time"

// Clock abstracts wall-clock reads and timer creation so the Service can be
// driven by a fake clock in tests.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer is a one-shot timer owned by the Service. Stop must be safe to call
// more than once; a stopped timer never delivers on C.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// SystemClock returns the real-time clock.
func SystemClock() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) NewTimer(d time.Duration) Timer {
	return &systemTimer{t: time.NewTimer(d)}
}

type systemTimer struct{ t *time.Timer }

func (s *systemTimer) C() <-chan time.Time { return s.t.C }
func (s *systemTimer) Stop() bool          { return s.t.Stop() }
