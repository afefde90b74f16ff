package main

import (
	"context"
	"math/rand/v2"
	"time"
)

const (
	maxBackoff   = 10 * time.Second
	jitterWindow = 250 * time.Millisecond
)

// poller paces the publish loop: a fixed interval while idle, doubling up to
// maxBackoff while batches keep failing.
type poller struct {
	base    time.Duration
	current time.Duration
}

func newPoller(base time.Duration) *poller {
	return &poller{base: base, current: base}
}

func (p *poller) reset() { p.current = p.base }

func (p *poller) idle(ctx context.Context) error {
	return sleep(ctx, withJitter(p.base))
}

func (p *poller) afterFailure(ctx context.Context) error {
	p.current = nextBackoff(p.current, p.base, maxBackoff)
	return sleep(ctx, withJitter(p.current))
}

func nextBackoff(current, base, limit time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	if next := current * 2; next < limit {
		return next
	}
	return limit
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
