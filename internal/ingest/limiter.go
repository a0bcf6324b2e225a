package ingest

// limiter.go bounds how many partition workers execute at once.
//
// Every partition gets its own goroutine as soon as it is submitted; the
// goroutine then waits here for one of the P execution slots. Submission is
// never throttled, only execution.

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is the slot count used when a non-positive limit is given.
const DefaultConcurrency = 10

// SlotLimiter is a counting semaphore that also tracks how many slots are in
// use and the highest concurrency observed.
type SlotLimiter struct {
	sem  *semaphore.Weighted
	size int

	mu     sync.RWMutex
	active int
	peak   int
}

// NewSlotLimiter creates a limiter with maxConcurrent slots.
func NewSlotLimiter(maxConcurrent int) *SlotLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultConcurrency
	}
	return &SlotLimiter{
		sem:  semaphore.NewWeighted(int64(maxConcurrent)),
		size: maxConcurrent,
	}
}

// Acquire blocks until a slot is free or ctx is done.
// The caller MUST call Release after a successful Acquire.
func (l *SlotLimiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	l.mu.Lock()
	l.active++
	if l.active > l.peak {
		l.peak = l.active
	}
	l.mu.Unlock()
	return nil
}

// Release returns a slot acquired with Acquire.
func (l *SlotLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()
	l.sem.Release(1)
}

// SlotStatus is a snapshot of the limiter's state.
type SlotStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
	Peak          int `json:"peak"`
}

// Status returns the current limiter state.
func (l *SlotLimiter) Status() SlotStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return SlotStatus{
		Active:        l.active,
		Available:     l.size - l.active,
		MaxConcurrent: l.size,
		Peak:          l.peak,
	}
}
