/*
Package notify carries scheduler notifications to host observers.

PURPOSE:
  The driver tells the host when the clock moved and when payments became
  due, without knowing who listens. Observers subscribe to a Bus; a LogSink
  is the built-in observer.

CONTRACT:
  - Publish never blocks.
  - Subscribers get buffered channels; a slow subscriber drops events.

EVENT TYPES:
  clock.tick     Data: ClockTick, once per advanced second
  clock.changed  Data: ClockTick, after a clock control action
  payments.due   Data: PaymentsDue, after a pass found due payments
*/
package notify

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	TypeClockTick    = "clock.tick"
	TypeClockChanged = "clock.changed"
	TypePaymentsDue  = "payments.due"
)

// Event is a lightweight in-memory signal.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// ClockTick reports the active clock after it moved or changed mode.
type ClockTick struct {
	Now        time.Time
	RealTime   bool
	Multiplier float64
	Paused     bool
}

// PaymentsDue reports one reconciliation pass that found due payments.
type PaymentsDue struct {
	Wallet      string
	Payments    int
	Occurrences int
	Message     string
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// unsubscribe may close ch concurrently
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}
