package pacing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketAllowsUpToCapacity(t *testing.T) {
	tb := NewTokenBucket(3, time.Hour)

	for i := 0; i < 3; i++ {
		assert.True(t, tb.Allow(), "request %d within capacity", i+1)
	}
	assert.False(t, tb.Allow(), "fourth request exceeds capacity")
}

func TestTokenBucketRefillsAfterPeriod(t *testing.T) {
	tb := NewTokenBucket(1, 20*time.Millisecond)

	require.True(t, tb.Allow())
	require.False(t, tb.Allow())

	time.Sleep(30 * time.Millisecond)
	assert.True(t, tb.Allow(), "tokens restored after the refill period")
}

func TestTokenBucketReset(t *testing.T) {
	tb := NewTokenBucket(2, time.Hour)

	tb.Allow()
	tb.Allow()
	require.False(t, tb.Allow())

	tb.Reset()
	assert.True(t, tb.Allow())
}

func TestDelayerNextWithinWindow(t *testing.T) {
	d := NewDelayer(10*time.Millisecond, 50*time.Millisecond)

	for i := 0; i < 100; i++ {
		delay := d.Next()
		assert.GreaterOrEqual(t, delay, 10*time.Millisecond)
		assert.Less(t, delay, 50*time.Millisecond)
	}
}

func TestDelayerDegenerateWindow(t *testing.T) {
	d := NewDelayer(5*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, 5*time.Millisecond, d.Next())

	// max below min collapses to min
	d = NewDelayer(5*time.Millisecond, time.Millisecond)
	assert.Equal(t, 5*time.Millisecond, d.Next())
}

func TestDelayerSleepHonorsContext(t *testing.T) {
	d := NewDelayer(time.Minute, 2*time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.Sleep(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Sleep did not return after context cancellation")
	}
}

func TestDelayerSleepCompletes(t *testing.T) {
	d := NewDelayer(time.Millisecond, 2*time.Millisecond)
	assert.NoError(t, d.Sleep(context.Background()))
}
