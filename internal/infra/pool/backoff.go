package pool

import (
	"context"
	"time"
)

// backoff yields the wait between reconnect attempts: base doubled per
// completed attempt, capped at max.
type backoff struct {
	base    time.Duration
	max     time.Duration
	attempt int
}

func newBackoff(base, maxDelay time.Duration) *backoff {
	if base <= 0 {
		base = time.Second
	}
	if maxDelay < base {
		maxDelay = base
	}
	return &backoff{base: base, max: maxDelay}
}

func (b *backoff) delay() time.Duration {
	d := b.base
	for i := 0; i < b.attempt; i++ {
		d *= 2
		if d >= b.max {
			return b.max
		}
	}
	return d
}

// Sleep waits for the current attempt's delay and advances to the next. It
// returns early when the context is canceled.
func (b *backoff) Sleep(ctx context.Context) {
	timer := time.NewTimer(b.delay())
	defer timer.Stop()
	b.attempt++

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
