package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeGrowsAndClamps(t *testing.T) {
	p := Policy{Initial: 100 * time.Millisecond, Max: 1 * time.Second, Factor: 2, Jitter: 0}

	assert.Equal(t, 100*time.Millisecond, p.computeWith(1, 0))
	assert.Equal(t, 200*time.Millisecond, p.computeWith(2, 0))
	assert.Equal(t, 400*time.Millisecond, p.computeWith(3, 0))
	// Clamped at Max.
	assert.Equal(t, 1*time.Second, p.computeWith(10, 0))
}

func TestComputeJitterBounded(t *testing.T) {
	p := Policy{Initial: 100 * time.Millisecond, Max: 10 * time.Second, Factor: 2, Jitter: 0.5}

	lo := p.computeWith(2, 0)
	hi := p.computeWith(2, 0.999)
	assert.Equal(t, 200*time.Millisecond, lo)
	assert.Less(t, hi, 300*time.Millisecond)
	assert.GreaterOrEqual(t, hi, lo)
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	p := Policy{Initial: time.Millisecond, Max: time.Millisecond, Factor: 1, Jitter: 0}

	calls := 0
	err := Retry(context.Background(), 3, p, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryReturnsLastError(t *testing.T) {
	p := Policy{Initial: time.Millisecond, Max: time.Millisecond, Factor: 1, Jitter: 0}

	want := errors.New("still broken")
	err := Retry(context.Background(), 2, p, func() error { return want })
	assert.ErrorIs(t, err, want)
}

func TestRetryHonorsContext(t *testing.T) {
	p := Policy{Initial: time.Hour, Max: time.Hour, Factor: 1, Jitter: 0}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, 3, p, func() error { return errors.New("transient") })
	assert.ErrorIs(t, err, context.Canceled)
}
