package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		perSecond float64
		burst     int
		unlimited bool
	}{
		{"standard rate", 100, 200, false},
		{"zero burst raised", 10, 0, false},
		{"unlimited", 0, 0, true},
		{"negative rate", -1, 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.perSecond, tt.burst)
			require.NotNil(t, l)
			assert.Equal(t, tt.unlimited, l.Unlimited())
		})
	}
}

func TestTryAdmit_EnforcesBurst(t *testing.T) {
	l := New(10, 10)

	for i := 0; i < 10; i++ {
		require.True(t, l.TryAdmit(), "admission %d should be within burst", i)
	}
	assert.False(t, l.TryAdmit(), "bucket should be empty after burst")

	// 10/s refills one token every 100ms.
	time.Sleep(110 * time.Millisecond)
	assert.True(t, l.TryAdmit())
}

func TestAdmit_Waits(t *testing.T) {
	l := New(10, 1)
	ctx := context.Background()

	require.NoError(t, l.Admit(ctx))

	start := time.Now()
	require.NoError(t, l.Admit(ctx))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.LessOrEqual(t, elapsed, 250*time.Millisecond)
}

func TestAdmit_ContextCancelled(t *testing.T) {
	l := New(1, 1)
	require.True(t, l.TryAdmit())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.Error(t, l.Admit(ctx))
}

func TestUnlimited_NeverBlocks(t *testing.T) {
	l := New(0, 0)
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		require.True(t, l.TryAdmit())
		require.NoError(t, l.Admit(ctx))
	}
}

func TestAvailable(t *testing.T) {
	l := New(10, 10)
	assert.InDelta(t, 10, l.Available(), 1)

	for i := 0; i < 5; i++ {
		l.TryAdmit()
	}
	assert.InDelta(t, 5, l.Available(), 1)
}

func BenchmarkTryAdmit(b *testing.B) {
	l := New(1_000_000, 1_000_000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.TryAdmit()
	}
}
