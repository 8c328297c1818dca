// Package pace implements the shared request pacing primitive.
//
// A single Pacer is injected into every component that touches the network.
// With N concurrent workers, per-worker sleeps would multiply the effective
// request rate by N; the Pacer instead tail-chains a shared "next allowed
// instant" watermark so the minimum gap holds between any two requests
// process-wide.
package pace

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// Pacer assigns each caller a wall-clock slot at least one random delay
// after the previously assigned slot.
type Pacer struct {
	mu   sync.Mutex
	next time.Time

	min time.Duration
	max time.Duration
}

// New creates a Pacer with a random delay window of [min, max].
func New(min, max time.Duration) *Pacer {
	if min < 0 {
		min = 0
	}
	if max < min {
		max = min
	}
	return &Pacer{min: min, max: max}
}

// Wait blocks until the caller's assigned slot, or until the context ends.
// Advancing the watermark and reading it happen as one atomic step; the
// sleep itself happens outside the lock.
func (p *Pacer) Wait(ctx context.Context) error {
	delay := p.min
	if span := p.max - p.min; span > 0 {
		delay += time.Duration(rand.Int64N(int64(span)))
	}

	now := time.Now()
	p.mu.Lock()
	wake := now
	if p.next.After(now) {
		wake = p.next
	}
	p.next = wake.Add(delay)
	p.mu.Unlock()

	sleep := time.Until(wake)
	if sleep <= 0 {
		return nil
	}
	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pacing wait canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
