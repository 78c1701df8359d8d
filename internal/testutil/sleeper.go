// Package testutil provides deterministic helpers for tests.
package testutil

import (
	"context"
	"sync"
	"time"
)

// ManualSleeper records requested waits without sleeping, so retry-loop
// tests run instantly while still asserting on backoff behavior.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type ManualSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

// NewManualSleeper creates a sleeper with no recorded waits.
func NewManualSleeper() *ManualSleeper {
	return &ManualSleeper{}
}

// Sleep records d and returns immediately. A done context is still
// honored, mirroring the production sleeper's cancellation semantics.
func (s *ManualSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return nil
}

// Waits returns a copy of the recorded wait durations, in request order.
func (s *ManualSleeper) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.waits))
	copy(out, s.waits)
	return out
}

// Reset clears the recorded waits for test reuse.
func (s *ManualSleeper) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = nil
}
