package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterUnlimitedByDefault(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	start := time.Now()
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://jobs.test/category/engineering"))
	}
	assert.Less(t, time.Since(start), time.Second)
}

func TestLimiterSpacesSameHost(t *testing.T) {
	t.Parallel()

	// 10 requests per second = 100ms interval
	l := New(Config{RequestsPerSecond: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://jobs.test/a"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://jobs.test/b"))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	// A different host has its own bucket.
	start = time.Now()
	require.NoError(t, l.Wait(ctx, "https://other.test/a"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterRespectsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{RequestsPerSecond: 0.001, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://jobs.test"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "https://jobs.test"))
}
