/*
Package clock provides the time sources read by the scheduler.

PURPOSE:
  Everything that asks "what time is it" for scheduled payments goes through
  a Clock. In normal operation that is the real wall clock; for testing
  schedules by hand a fake clock can replace it, either paused or running
  faster than real time.

KEY TYPES:
  Clock:   read-only capability (IsRealTime, Now)
  Real:    wall clock
  Fake:    stored instant, moved explicitly
  Source:  the single active clock of a process, with the controls a
           settings surface needs (switch real/fake, speed, pause, set time)

SEE ALSO:
  - scheduler/driver.go: advances the active fake clock once per real second
*/
package clock

import (
	"sync"
	"time"
)

// Clock exposes the current instant.
type Clock interface {
	IsRealTime() bool
	Now() time.Time
}

// Real reads the system wall clock.
type Real struct{}

func (Real) IsRealTime() bool { return true }
func (Real) Now() time.Time   { return time.Now() }

// Fake holds an explicit instant that only moves when told to.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a fake clock seeded at now.
func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

func (f *Fake) IsRealTime() bool { return false }

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set replaces the stored instant.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// Advance adds delta scaled by multiplier to the stored instant and returns
// the new value. One real second at multiplier 3600 moves the clock an hour.
func (f *Fake) Advance(delta time.Duration, multiplier float64) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(time.Duration(float64(delta) * multiplier))
	return f.now
}

var (
	_ Clock = Real{}
	_ Clock = (*Fake)(nil)
)
