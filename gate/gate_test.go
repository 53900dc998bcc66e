package gate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduledDailyGate_SkipsWhenAlreadyRanToday(t *testing.T) {
	g := &ScheduledDailyGate{
		TimeOfDay:                 time.Date(0, 1, 1, 3, 0, 0, 0, time.UTC),
		StartupSkipIfAlreadyToday: true,
		AlreadyRanToday:           func() bool { return true },
	}
	start := time.Now()
	require.NoError(t, g.Wait(context.Background()))
	assert.Less(t, time.Since(start), 50*time.Millisecond, "should return immediately")
}

func TestScheduledDailyGate_WaitsUntilNextOccurrence(t *testing.T) {
	fixedNow := time.Date(2026, 7, 29, 8, 0, 0, 0, time.UTC)
	g := &ScheduledDailyGate{
		TimeOfDay: time.Date(0, 1, 1, 8, 0, 1, 0, time.UTC),
		Location:  time.UTC,
		now:       func() time.Time { return fixedNow },
	}
	// next occurrence should be ~1s after fixedNow
	start := time.Now()
	require.NoError(t, g.Wait(context.Background()))
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestScheduledDailyGate_CtxCanceled(t *testing.T) {
	fixedNow := time.Date(2026, 7, 29, 8, 0, 0, 0, time.UTC)
	g := &ScheduledDailyGate{
		TimeOfDay: time.Date(0, 1, 1, 20, 0, 0, 0, time.UTC),
		Location:  time.UTC,
		now:       func() time.Time { return fixedNow },
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := g.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOncePerIntervalGate_EnforcesMinimumSpacing(t *testing.T) {
	g := &OncePerIntervalGate{Interval: 100 * time.Millisecond}
	ctx := context.Background()

	require.NoError(t, g.Wait(ctx))
	start := time.Now()
	require.NoError(t, g.Wait(ctx))
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond)
}

func TestOncePerIntervalGate_FirstCallNeverBlocks(t *testing.T) {
	g := &OncePerIntervalGate{Interval: time.Hour}
	start := time.Now()
	require.NoError(t, g.Wait(context.Background()))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
