package submit

import (
	"context"
	"time"
)

// backoff doubles the wait after every failed attempt, capped at max.
type backoff struct {
	base time.Duration
	max  time.Duration
}

func (b backoff) next(prev time.Duration) time.Duration {
	if prev <= 0 {
		return b.base
	}
	if prev*2 > b.max {
		return b.max
	}
	return prev * 2
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
