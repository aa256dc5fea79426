package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/scheduled-payments/clock"
	"github.com/warp/scheduled-payments/notify"
	"github.com/warp/scheduled-payments/payments"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// recordingReconciler remembers the instants it was asked to reconcile at.
type recordingReconciler struct {
	mu    sync.Mutex
	calls []time.Time
}

func (r *recordingReconciler) ProcessAll(_ context.Context, now time.Time) ([]payments.DueReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, now)
	return []payments.DueReport{{Wallet: "w", Now: now}}, nil
}

func (r *recordingReconciler) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// wallStart is both the real time the driver sees and the wall clock the
// fake clock is seeded from.
var wallStart = time.Date(2025, time.January, 1, 12, 0, 30, 0, time.UTC)

func newTestDriver(t *testing.T) (*Driver, *clock.Source, *recordingReconciler, <-chan notify.Event) {
	t.Helper()
	src := clock.NewSourceIn(clock.NewFake(wallStart), time.UTC)
	rec := &recordingReconciler{}
	bus := notify.New()
	events, unsub := bus.Subscribe(64)
	t.Cleanup(unsub)
	d := NewDriver(src, rec, bus, zerolog.Nop())
	d.Reset(wallStart)
	return d, src, rec, events
}

func after(d time.Duration) time.Time { return wallStart.Add(d) }

// =============================================================================
// SECOND BOUNDARY
// =============================================================================

func TestTick_BelowOneSecondDoesNothing(t *testing.T) {
	d, src, _, events := newTestDriver(t)
	require.NoError(t, src.SwitchToFake(clock.SpeedHour))

	res := d.Tick(context.Background(), after(900*time.Millisecond))

	assert.False(t, res.Stepped)
	assert.False(t, res.Reconciled)
	assert.Equal(t, wallStart, src.Now())
	assert.Empty(t, events)
}

func TestTick_AcceleratesFakeClock(t *testing.T) {
	// GIVEN: A fake clock seeded at wallStart running at one hour per second
	d, src, _, events := newTestDriver(t)
	require.NoError(t, src.SwitchToFake(clock.SpeedHour))

	// WHEN: One real second passes
	res := d.Tick(context.Background(), after(time.Second))

	// THEN: The fake clock moved one hour and observers were told
	assert.True(t, res.Stepped)
	assert.Equal(t, wallStart.Add(time.Hour), res.Now)
	assert.Equal(t, wallStart.Add(time.Hour), src.Now())

	e := <-events
	assert.Equal(t, notify.TypeClockTick, e.Type)
	tick := e.Data.(notify.ClockTick)
	assert.Equal(t, wallStart.Add(time.Hour), tick.Now)
	assert.Equal(t, clock.SpeedHour, tick.Multiplier)
	assert.False(t, tick.RealTime)
}

func TestTick_BoundaryAdvancesByFixedIncrement(t *testing.T) {
	// GIVEN: A tick that arrives 2.5s late
	d, src, _, _ := newTestDriver(t)
	require.NoError(t, src.SwitchToFake(clock.SpeedMinute))

	// THEN: Each tick catches up by one second only
	assert.True(t, d.Tick(context.Background(), after(2500*time.Millisecond)).Stepped)
	assert.True(t, d.Tick(context.Background(), after(2600*time.Millisecond)).Stepped)
	assert.False(t, d.Tick(context.Background(), after(2700*time.Millisecond)).Stepped)
	assert.True(t, d.Tick(context.Background(), after(3000*time.Millisecond)).Stepped)

	assert.Equal(t, wallStart.Add(3*time.Minute), src.Now())
}

func TestTick_RealClockIsNotAdvanced(t *testing.T) {
	d, src, _, events := newTestDriver(t)

	res := d.Tick(context.Background(), after(time.Second))

	assert.True(t, res.Stepped)
	assert.Equal(t, wallStart, res.Now)
	assert.True(t, src.IsRealTime())
	tick := (<-events).Data.(notify.ClockTick)
	assert.True(t, tick.RealTime)
	assert.Zero(t, tick.Multiplier)
}

func TestTick_PausedFakeClockHolds(t *testing.T) {
	d, src, _, _ := newTestDriver(t)
	require.NoError(t, src.SwitchToFake(clock.SpeedDay))
	require.NoError(t, src.Pause())

	d.Tick(context.Background(), after(time.Second))
	assert.Equal(t, wallStart, src.Now())

	require.NoError(t, src.Resume())
	d.Tick(context.Background(), after(2*time.Second))
	assert.Equal(t, wallStart.Add(24*time.Hour), src.Now())
}

// =============================================================================
// MINUTE BOUNDARY
// =============================================================================

func TestTick_ReconcilesOncePerRealMinute(t *testing.T) {
	// GIVEN: Real time 12:00:30, so the first minute boundary is 12:01:00
	d, src, rec, _ := newTestDriver(t)
	require.NoError(t, src.SwitchToFake(clock.SpeedHour))

	// WHEN: Ticking every second for 89 real seconds
	var reconciledAt []time.Time
	for i := 1; i <= 89; i++ {
		res := d.Tick(context.Background(), after(time.Duration(i)*time.Second))
		if res.Reconciled {
			reconciledAt = append(reconciledAt, res.Now)
			require.Len(t, res.Reports, 1)
		}
	}

	// THEN: One pass at 12:01:00 real, using the accelerated clock
	require.Len(t, reconciledAt, 1)
	assert.Equal(t, wallStart.Add(30*time.Hour), reconciledAt[0])
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, reconciledAt[0], rec.calls[0])
}

// =============================================================================
// BACKGROUND LOOP
// =============================================================================

func TestStartStop(t *testing.T) {
	d, src, _, events := newTestDriver(t)
	require.NoError(t, src.SwitchToFake(clock.SpeedSecond))

	var mu sync.Mutex
	wall := wallStart
	d.realNow = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		wall = wall.Add(500 * time.Millisecond)
		return wall
	}
	d.TickInterval = time.Millisecond

	d.Start(context.Background())
	d.Start(context.Background()) // no-op while running

	require.Eventually(t, func() bool { return len(events) >= 3 }, time.Second, time.Millisecond)
	d.Stop()
	d.Stop()

	assert.True(t, src.Now().After(wallStart))
}
