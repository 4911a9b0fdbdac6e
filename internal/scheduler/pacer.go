package scheduler

import (
	"context"
	"math/rand"
	"time"

	"github.com/lvcoi/ytup/internal/httpx"
)

// Sleeper waits between uploads.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// ContextSleeper sleeps on a timer and wakes early when ctx is done.
type ContextSleeper struct{}

func (ContextSleeper) Sleep(ctx context.Context, d time.Duration) error {
	return httpx.SleepWithContext(ctx, d)
}

// Pacer draws the wait after an upload: a uniform whole number of seconds
// between Min and Max inclusive.
type Pacer struct {
	Min time.Duration
	Max time.Duration
	rng *rand.Rand
}

func NewPacer(min, max time.Duration, rng *rand.Rand) *Pacer {
	return &Pacer{Min: min, Max: max, rng: rng}
}

func (p *Pacer) Next() time.Duration {
	lo := int64(p.Min / time.Second)
	hi := int64(p.Max / time.Second)
	if hi <= lo {
		return time.Duration(lo) * time.Second
	}
	return time.Duration(lo+p.rng.Int63n(hi-lo+1)) * time.Second
}
