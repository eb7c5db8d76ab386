// Package retry bounds calls to upstream ticket systems with exponential
// backoff. Only errors the taxonomy marks retryable earn another attempt.
package retry

import (
	"context"
	"math/rand"
	"time"

	ferrors "github.com/flowforge-ai/flowforge/internal/errors"
)

// Config bounds one retry loop.
type Config struct {
	Attempts int           // total tries, including the first
	Base     time.Duration // wait before the second try; doubles each round
	Cap      time.Duration // ceiling on any single wait
	Jitter   bool          // spread each wait over [wait/2, wait]
}

// DefaultConfig suits short HTTP calls to ticket systems.
func DefaultConfig() Config {
	return Config{
		Attempts: 3,
		Base:     500 * time.Millisecond,
		Cap:      10 * time.Second,
		Jitter:   true,
	}
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. The waits between tries honor ctx cancellation.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	wait := cfg.Base
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil || !ferrors.IsRetryable(err) || attempt >= cfg.Attempts {
			return err
		}

		d := wait
		if d > cfg.Cap {
			d = cfg.Cap
		}
		if cfg.Jitter && d > 0 {
			d = d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
		}

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait *= 2
	}
}
