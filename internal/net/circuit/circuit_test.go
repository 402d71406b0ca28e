package circuit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream failure")

func failing(ctx context.Context) error { return errUpstream }
func passing(ctx context.Context) error { return nil }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker("google_trends", Config{FailureThreshold: 3, Cooldown: time.Hour})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := b.Call(ctx, failing)
		assert.ErrorIs(t, err, errUpstream)
	}
	assert.Equal(t, "open", b.State())

	err := b.Call(ctx, passing)
	assert.ErrorIs(t, err, ErrOpen, "open breaker must reject without attempting")
}

func TestBreakerSuccessResetsFailureRun(t *testing.T) {
	b := NewBreaker("youtube", Config{FailureThreshold: 3, Cooldown: time.Hour})
	ctx := context.Background()

	require.ErrorIs(t, b.Call(ctx, failing), errUpstream)
	require.ErrorIs(t, b.Call(ctx, failing), errUpstream)
	require.NoError(t, b.Call(ctx, passing))
	require.ErrorIs(t, b.Call(ctx, failing), errUpstream)
	require.ErrorIs(t, b.Call(ctx, failing), errUpstream)

	assert.Equal(t, "closed", b.State(), "non-consecutive failures must not trip")
}

func TestBreakerHalfOpenProbeCloses(t *testing.T) {
	b := NewBreaker("shopee", Config{FailureThreshold: 1, Cooldown: 30 * time.Millisecond})
	ctx := context.Background()

	require.ErrorIs(t, b.Call(ctx, failing), errUpstream)
	require.Equal(t, "open", b.State())

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, b.Call(ctx, passing), "probe after cooldown must run")
	assert.Equal(t, "closed", b.State())
}

func TestBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	b := NewBreaker("amazon_jp", Config{FailureThreshold: 1, Cooldown: 30 * time.Millisecond})
	ctx := context.Background()

	require.ErrorIs(t, b.Call(ctx, failing), errUpstream)
	time.Sleep(50 * time.Millisecond)
	require.ErrorIs(t, b.Call(ctx, failing), errUpstream)

	assert.Equal(t, "open", b.State())
}

func TestManagerIsolatesSources(t *testing.T) {
	m := NewManager(Config{FailureThreshold: 1, Cooldown: time.Hour})
	ctx := context.Background()

	require.ErrorIs(t, m.Call(ctx, "google_trends", failing), errUpstream)
	assert.Equal(t, "open", m.State("google_trends"))
	assert.Equal(t, "closed", m.State("youtube"))

	states := m.States()
	assert.Equal(t, "open", states["google_trends"])
}
