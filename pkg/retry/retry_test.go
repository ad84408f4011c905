package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "igprofiler/pkg/errors"
	"igprofiler/pkg/logger"
)

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   1 * time.Second,
		Multiplier: 2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second},
		{9, 1 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, backoff.NextDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponentialBackoffJitterBounds(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.3,
	}

	for i := 0; i < 50; i++ {
		d := backoff.NextDelay(2)
		assert.GreaterOrEqual(t, d, 140*time.Millisecond)
		assert.LessOrEqual(t, d, 260*time.Millisecond)
	}
}

func fastConfig(max int) *Config {
	return &Config{
		MaxAttempts: max,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		Logger:      logger.NewNopLogger(),
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	res := Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errs.TransientFetch(503, nil, "unavailable")
		}
		return nil
	}, fastConfig(5))

	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Attempts)
}

func TestDoStopsAtMaxAttempts(t *testing.T) {
	calls := 0
	res := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errs.TransientFetch(0, errors.New("reset"), "network")
	}, fastConfig(3))

	require.Error(t, res.Err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, res.Attempts)
	assert.True(t, errs.IsType(res.Err, errs.ErrorTypeTransientFetch))
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	calls := 0
	res := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errs.Decode(nil, "corrupt")
	}, fastConfig(5))

	require.Error(t, res.Err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, res.Attempts)
}

func TestDoUnclassifiedErrorsAreNotRetried(t *testing.T) {
	calls := 0
	res := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("plain")
	}, fastConfig(5))

	assert.Error(t, res.Err)
	assert.Equal(t, 1, calls)
}

func TestDoHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(10)
	cfg.Backoff = &ConstantBackoff{Delay: time.Hour}
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) { cancel() }

	start := time.Now()
	res := Do(ctx, func(ctx context.Context) error {
		return errs.TransientFetch(500, nil, "server")
	}, cfg)

	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	v, res := DoWithResult(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errs.Capacity("busy")
		}
		return "ok", nil
	}, fastConfig(3))

	require.NoError(t, res.Err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, res.Attempts)
}

func TestWait(t *testing.T) {
	assert.NoError(t, Wait(context.Background(), 0))
	assert.NoError(t, Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
}
