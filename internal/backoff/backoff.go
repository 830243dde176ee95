// Package backoff provides jittered exponential backoff for retrying
// provider calls and browser state updates.
package backoff

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy defines the parameters for exponential backoff calculation.
type Policy struct {
	// Initial is the backoff for the first retry.
	Initial time.Duration
	// Max caps the computed backoff.
	Max time.Duration
	// Factor is the exponential factor applied per attempt.
	Factor float64
	// Jitter is the randomization factor (0.0 to 1.0).
	Jitter float64
}

// DefaultPolicy returns the policy used for provider retries.
// Initial: 500ms, Max: 10s, Factor: 2, Jitter: 20%.
func DefaultPolicy() Policy {
	return Policy{Initial: 500 * time.Millisecond, Max: 10 * time.Second, Factor: 2, Jitter: 0.2}
}

// Compute calculates the backoff for attempt n (attempts start at 1).
func (p Policy) Compute(attempt int) time.Duration {
	return p.computeWith(attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

func (p Policy) computeWith(attempt int, random float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := float64(p.Initial) * math.Pow(p.Factor, exp)
	jitter := base * p.Jitter * random
	total := math.Min(float64(p.Max), base+jitter)
	return time.Duration(total)
}

// Retry runs fn up to attempts times, sleeping the policy backoff between
// failures. The last error is returned when all attempts fail. Context
// cancellation aborts the wait and returns ctx.Err().
func Retry(ctx context.Context, attempts int, policy Policy, fn func() error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(policy.Compute(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
