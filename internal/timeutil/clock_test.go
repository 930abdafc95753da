package timeutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealClockSleepContext(t *testing.T) {
	var c RealClock
	start := c.Now()
	require.NoError(t, c.SleepContext(context.Background(), 5*time.Millisecond))
	assert.GreaterOrEqual(t, c.Since(start), 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.SleepContext(ctx, time.Hour), context.Canceled)
}

func TestMockClock(t *testing.T) {
	base := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(base)
	assert.Equal(t, base, c.Now())

	c.Advance(time.Minute)
	assert.Equal(t, time.Minute, c.Since(base))

	require.NoError(t, c.SleepContext(context.Background(), 2*time.Second))
	require.NoError(t, c.SleepContext(context.Background(), 4*time.Second))
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, c.Sleeps())
	assert.Equal(t, base.Add(time.Minute+6*time.Second), c.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, c.SleepContext(ctx, time.Second))
	assert.Len(t, c.Sleeps(), 2)

	c.Set(base)
	assert.Equal(t, base, c.Now())
}
