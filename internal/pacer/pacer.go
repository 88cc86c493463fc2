// Package pacer spaces sends out so traffic looks human.
package pacer

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Pacer produces uniformly distributed random delays in [Min, Max].
// The zero bounds are valid and mean "no delay".
type Pacer struct {
	min time.Duration
	max time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// New builds a Pacer for the given window. max below min is treated as
// a fixed delay of min.
func New(min, max time.Duration) *Pacer {
	if max < min {
		max = min
	}
	return &Pacer{
		min: min,
		max: max,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the delay to apply before the next send.
func (p *Pacer) Next() time.Duration {
	if p.max == p.min {
		return p.min
	}
	p.mu.Lock()
	d := p.min + time.Duration(p.rng.Int63n(int64(p.max-p.min)+1))
	p.mu.Unlock()
	return d
}

// Wait sleeps for Next(), returning early with ctx.Err() on cancellation.
func (p *Pacer) Wait(ctx context.Context) error {
	return Sleep(ctx, p.Next())
}

// Sleep blocks for d or until ctx is cancelled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	select {
	case <-ctx.Done():
		if !t.Stop() {
			<-t.C
		}
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
