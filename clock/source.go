package clock

import (
	"fmt"
	"sync"
	"time"
)

// Speed multipliers offered for the fake clock: how much simulated time
// passes per real second.
const (
	SpeedSecond float64 = 1
	SpeedMinute float64 = 60
	SpeedHour   float64 = 60 * 60
	SpeedDay    float64 = 24 * 60 * 60
)

// Speeds lists the supported multipliers, slowest first.
var Speeds = []float64{SpeedSecond, SpeedMinute, SpeedHour, SpeedDay}

// ValidSpeed reports whether m is one of Speeds.
func ValidSpeed(m float64) bool {
	for _, s := range Speeds {
		if s == m {
			return true
		}
	}
	return false
}

// Status is a consistent snapshot of a Source.
type Status struct {
	RealTime   bool
	Now        time.Time
	Multiplier float64 // 0 while the real clock is active
	Paused     bool
}

// Source is the one authoritative active clock of a process.
//
// Switching between real and fake replaces the active clock wholesale; every
// reader sees either the old or the new clock together with its multiplier,
// never a mix. A new fake clock is seeded from the wall clock at the moment
// of the switch.
//
// Every instant a Source hands out is in its calendar location, whichever
// clock produced it and however a fake time was set. Rule fields (weekday,
// hour, minute) are read in that location, so it must not change between
// reconciliation passes.
type Source struct {
	mu         sync.RWMutex
	loc        *time.Location
	wall       Clock
	active     Clock
	fake       *Fake
	multiplier float64
	paused     bool
}

// NewSource starts on the real clock with the calendar in time.Local. wall
// is the real time source; nil means the system clock.
func NewSource(wall Clock) *Source {
	return NewSourceIn(wall, time.Local)
}

// NewSourceIn is NewSource with an explicit calendar location.
func NewSourceIn(wall Clock, loc *time.Location) *Source {
	if wall == nil {
		wall = Real{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &Source{loc: loc, wall: wall, active: wall}
}

// Location is the calendar location of every instant the source returns.
func (s *Source) Location() *time.Location { return s.loc }

func (s *Source) IsRealTime() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fake == nil
}

func (s *Source) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active.Now().In(s.loc)
}

func (s *Source) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		RealTime:   s.fake == nil,
		Now:        s.active.Now().In(s.loc),
		Multiplier: s.multiplier,
		Paused:     s.paused,
	}
}

// SwitchToReal makes the wall clock active and drops all fake clock state.
func (s *Source) SwitchToReal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = s.wall
	s.fake = nil
	s.multiplier = 0
	s.paused = false
}

// SwitchToFake makes a fake clock active, running at multiplier. Switching
// from the real clock seeds a new fake clock from the wall clock; when a fake
// clock is already active it keeps its instant and only the speed changes.
func (s *Source) SwitchToFake(multiplier float64) error {
	if !ValidSpeed(multiplier) {
		return fmt.Errorf("%w: %v", ErrUnsupportedMultiplier, multiplier)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fake == nil {
		s.fake = NewFake(s.wall.Now().In(s.loc))
		s.active = s.fake
	}
	s.multiplier = multiplier
	s.paused = false
	return nil
}

// SetMultiplier changes the speed of the active fake clock.
func (s *Source) SetMultiplier(multiplier float64) error {
	if !ValidSpeed(multiplier) {
		return fmt.Errorf("%w: %v", ErrUnsupportedMultiplier, multiplier)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fake == nil {
		return ErrRealClock
	}
	s.multiplier = multiplier
	return nil
}

// Pause stops the fake clock from advancing; Resume lets it run again.
func (s *Source) Pause() error  { return s.setPaused(true) }
func (s *Source) Resume() error { return s.setPaused(false) }

func (s *Source) setPaused(p bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fake == nil {
		return ErrRealClock
	}
	s.paused = p
	return nil
}

// SetFakeTime moves the active fake clock to t.
func (s *Source) SetFakeTime(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fake == nil {
		return ErrRealClock
	}
	s.fake.Set(t.In(s.loc))
	return nil
}

// AdvanceFake moves the active fake clock by realDelta times the current
// multiplier. It fails on the real clock; a paused fake clock does not move.
func (s *Source) AdvanceFake(realDelta time.Duration) (time.Time, error) {
	now, _, isReal := s.Step(realDelta)
	if isReal {
		return now, ErrRealClock
	}
	return now, nil
}

// Step is the driver's per-second hook. It advances a running fake clock by
// realDelta times the multiplier, and reports the resulting instant, whether
// the clock moved, and whether the real clock is active.
func (s *Source) Step(realDelta time.Duration) (now time.Time, advanced, isReal bool) {
	st, advanced := s.StepStatus(realDelta)
	return st.Now, advanced, st.RealTime
}

// StepStatus is Step returning the full snapshot taken under the same lock,
// so the multiplier always belongs to the clock that was stepped.
func (s *Source) StepStatus(realDelta time.Duration) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{RealTime: s.fake == nil, Multiplier: s.multiplier, Paused: s.paused}
	switch {
	case s.fake == nil:
		st.Now = s.active.Now().In(s.loc)
		return st, false
	case s.paused || s.multiplier == 0:
		st.Now = s.fake.Now().In(s.loc)
		return st, false
	}
	st.Now = s.fake.Advance(realDelta, s.multiplier).In(s.loc)
	return st, true
}

var _ Clock = (*Source)(nil)
