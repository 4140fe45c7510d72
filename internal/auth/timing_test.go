package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimingDelay_Target(t *testing.T) {
	td := NewTimingDelay(TimingConfig{BaseDelayMs: 100, RandomDelayMs: 50})

	for i := 0; i < 50; i++ {
		target := td.Target()
		assert.GreaterOrEqual(t, target, 100*time.Millisecond)
		assert.Less(t, target, 150*time.Millisecond)
	}
}

func TestTimingDelay_PadFrom_SleepsRemainder(t *testing.T) {
	td := NewTimingDelay(TimingConfig{BaseDelayMs: 100})
	var slept time.Duration
	td.sleep = func(_ context.Context, d time.Duration) { slept = d }

	td.PadFrom(context.Background(), time.Now().Add(-40*time.Millisecond))

	assert.Greater(t, slept, time.Duration(0))
	assert.LessOrEqual(t, slept, 60*time.Millisecond)
}

func TestTimingDelay_PadFrom_NoSleepWhenAlreadySlow(t *testing.T) {
	td := NewTimingDelay(TimingConfig{BaseDelayMs: 100})
	called := false
	td.sleep = func(context.Context, time.Duration) { called = true }

	td.PadFrom(context.Background(), time.Now().Add(-time.Second))

	assert.False(t, called)
}

func TestTimingDelay_PadFrom_RespectsContext(t *testing.T) {
	td := NewTimingDelay(TimingConfig{BaseDelayMs: 5000})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	td.PadFrom(ctx, start)

	assert.Less(t, time.Since(start), time.Second)
}

func TestTimingDelay_NilIsNoop(t *testing.T) {
	var td *TimingDelay
	assert.Equal(t, time.Duration(0), td.Target())
	td.PadFrom(context.Background(), time.Now())
}

func TestCryptoRandIntn(t *testing.T) {
	n, err := cryptoRandIntn(0)
	assert.NoError(t, err)
	assert.Equal(t, 0, n)

	for i := 0; i < 100; i++ {
		n, err := cryptoRandIntn(10)
		assert.NoError(t, err)
		assert.True(t, n >= 0 && n < 10)
	}
}
