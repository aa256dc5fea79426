/*
driver.go - Accelerated time driver

PURPOSE:
  Moves the active fake clock forward in step with real time and runs the
  reconciliation pass over every open wallet once per real minute.

DESIGN:
  - A background goroutine calls Tick at TickInterval (default 100ms).
  - Tick compares real time against two boundaries:
      second boundary: when at least 1s has passed, step the clock by one
                       real second (fake clocks move 1s * multiplier) and
                       publish a clock.tick event
      minute boundary: when at least 60s have passed, reconcile every open
                       wallet at the active clock's instant
  - Boundaries advance by fixed increments, not to "now", so scheduling
    jitter does not accumulate into drift. After a stall, each Tick catches
    up by at most one increment.
  - The minute boundary uses real seconds even while a fake clock runs
    faster, so reconciliation does not get more frequent with acceleration.
    At SpeedDay one pass covers sixty simulated days.

USAGE:
  d := NewDriver(source, registry, bus, log)
  d.Start(ctx)
  // ... later
  d.Stop()

SEE ALSO:
  - clock/source.go: Source.Step
  - payments/registry.go: Registry.ProcessAll
*/
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/scheduled-payments/clock"
	"github.com/warp/scheduled-payments/notify"
	"github.com/warp/scheduled-payments/payments"
)

const (
	DefaultTickInterval = 100 * time.Millisecond

	secondStep = time.Second
	minuteStep = time.Minute
)

// Reconciler runs one reconciliation pass over every open wallet.
type Reconciler interface {
	ProcessAll(ctx context.Context, now time.Time) ([]payments.DueReport, error)
}

// TickResult reports what one Tick did.
type TickResult struct {
	Now        time.Time // active clock after the tick
	Stepped    bool      // second boundary crossed
	Reconciled bool      // minute boundary crossed
	Reports    []payments.DueReport
}

// Driver advances the clock and triggers reconciliation.
type Driver struct {
	Clock        *clock.Source
	Payments     Reconciler
	Bus          notify.Bus // optional
	TickInterval time.Duration

	log     zerolog.Logger
	realNow func() time.Time

	mu         sync.Mutex // guards the boundaries; serializes ticks
	lastSecond time.Time
	lastMinute time.Time

	runMu  sync.Mutex
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewDriver creates a driver reading real time from the system clock.
func NewDriver(src *clock.Source, rec Reconciler, bus notify.Bus, log zerolog.Logger) *Driver {
	return &Driver{
		Clock:        src,
		Payments:     rec,
		Bus:          bus,
		TickInterval: DefaultTickInterval,
		log:          log.With().Str("component", "scheduler").Logger(),
		realNow:      time.Now,
	}
}

// Reset sets both boundaries from realNow. The minute boundary is aligned
// to the start of the current minute. Tick calls it on first use.
func (d *Driver) Reset(realNow time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked(realNow)
}

func (d *Driver) resetLocked(realNow time.Time) {
	d.lastSecond = realNow
	d.lastMinute = realNow.Truncate(time.Minute)
}

// Tick processes the boundaries crossed by realNow.
func (d *Driver) Tick(ctx context.Context, realNow time.Time) TickResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lastSecond.IsZero() {
		d.resetLocked(realNow)
	}

	res := TickResult{Now: d.Clock.Now()}
	if realNow.Sub(d.lastSecond) >= secondStep {
		d.lastSecond = d.lastSecond.Add(secondStep)
		st, _ := d.Clock.StepStatus(secondStep)
		res.Now = st.Now
		res.Stepped = true
		d.publishTick(st)
	}

	if realNow.Sub(d.lastMinute) >= minuteStep {
		d.lastMinute = d.lastMinute.Add(minuteStep)
		res.Reconciled = true
		res.Reports = d.reconcile(ctx, res.Now)
	}
	return res
}

func (d *Driver) reconcile(ctx context.Context, now time.Time) []payments.DueReport {
	if d.Payments == nil {
		return nil
	}
	reports, err := d.Payments.ProcessAll(ctx, now)
	if err != nil {
		d.log.Error().Err(err).Time("now", now).Msg("reconciliation pass failed")
	}
	d.log.Debug().Time("now", now).Int("wallets_due", len(reports)).Msg("reconciliation pass")
	return reports
}

func (d *Driver) publishTick(st clock.Status) {
	if d.Bus == nil {
		return
	}
	d.Bus.Publish(notify.ClockEvent(notify.TypeClockTick, st))
}

// =============================================================================
// BACKGROUND LOOP
// =============================================================================

// Start begins ticking in a background goroutine until Stop or ctx ends.
func (d *Driver) Start(ctx context.Context) {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if d.ticker != nil {
		return
	}

	interval := d.TickInterval
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	d.Reset(d.realNow())
	d.ticker = time.NewTicker(interval)
	d.stop = make(chan struct{})
	d.wg.Add(1)
	go d.run(ctx, d.ticker, d.stop)

	d.log.Info().Dur("interval", interval).Msg("driver started")
}

// Stop stops the background loop and waits for it to exit.
func (d *Driver) Stop() {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if d.ticker == nil {
		return
	}
	d.ticker.Stop()
	close(d.stop)
	d.wg.Wait()
	d.ticker = nil
	d.log.Info().Msg("driver stopped")
}

func (d *Driver) run(ctx context.Context, ticker *time.Ticker, stop <-chan struct{}) {
	defer d.wg.Done()
	for {
		select {
		case <-ticker.C:
			d.Tick(ctx, d.realNow())
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}
