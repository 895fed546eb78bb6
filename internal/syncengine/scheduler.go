package syncengine

import (
	"context"
	"sync"
	"time"
)

const DefaultFPS = 60

// FrameScheduler runs a callback once, on the next frame. Callbacks must be
// executed serially so frame handlers never race each other.
type FrameScheduler interface {
	RequestFrame(fn func())
}

// TickerScheduler delivers requested callbacks on a fixed-rate ticker from a
// single goroutine started by Run.
type TickerScheduler struct {
	frameQueue
	interval time.Duration
}

// pending callbacks shared by the ticker and manual schedulers
type frameQueue struct {
	mu      sync.Mutex
	pending []func()
}

func (q *frameQueue) RequestFrame(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, fn)
}

func (q *frameQueue) runPending() int {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
	return len(batch)
}

func NewTickerScheduler(fps int) *TickerScheduler {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &TickerScheduler{interval: time.Second / time.Duration(fps)}
}

func (s *TickerScheduler) Interval() time.Duration {
	return s.interval
}

// Run blocks until ctx is done. Callbacks requested during a frame run on the
// following tick.
func (s *TickerScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runPending()
		}
	}
}

// ManualScheduler only runs callbacks when Step is called. It has no Run
// method, so nothing drives it in the background.
type ManualScheduler struct {
	frameQueue
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Step runs everything requested so far and returns how many callbacks ran.
func (s *ManualScheduler) Step() int {
	return s.runPending()
}

func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
