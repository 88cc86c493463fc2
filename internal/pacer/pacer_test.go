package pacer

import (
	"context"
	"testing"
	"time"
)

func TestNextStaysInBounds(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		min  time.Duration
		max  time.Duration
	}{
		{name: "normal window", min: 2 * time.Second, max: 4 * time.Second},
		{name: "zero window", min: 0, max: 0},
		{name: "point window", min: time.Second, max: time.Second},
		{name: "inverted bounds clamp to min", min: 3 * time.Second, max: time.Second},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := New(tt.min, tt.max)
			lo, hi := tt.min, tt.max
			if hi < lo {
				hi = lo
			}
			for i := 0; i < 1000; i++ {
				d := p.Next()
				if d < lo || d > hi {
					t.Fatalf("Next() = %v, outside [%v, %v]", d, lo, hi)
				}
			}
		})
	}
}

func TestNextVaries(t *testing.T) {
	t.Parallel()
	p := New(0, time.Hour)
	first := p.Next()
	for i := 0; i < 50; i++ {
		if p.Next() != first {
			return
		}
	}
	t.Fatal("wide window produced 50 identical delays")
}

func TestSleepHonorsCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Sleep(ctx, time.Hour) }()
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Sleep returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Sleep did not return after cancellation")
	}
}
