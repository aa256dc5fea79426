package notify

import (
	"github.com/warp/scheduled-payments/clock"
	"github.com/warp/scheduled-payments/payments"
)

// ClockEvent builds a clock.tick or clock.changed event from a snapshot.
func ClockEvent(typ string, st clock.Status) Event {
	return Event{
		Type: typ,
		Data: ClockTick{Now: st.Now, RealTime: st.RealTime, Multiplier: st.Multiplier, Paused: st.Paused},
	}
}

// DueEvent builds a payments.due event from a reconciliation report.
func DueEvent(r payments.DueReport) Event {
	return Event{
		Type: TypePaymentsDue,
		Time: r.Now,
		Data: PaymentsDue{
			Wallet:      r.Wallet,
			Payments:    len(r.Payments),
			Occurrences: r.NewOccurrences,
			Message:     r.Message(),
		},
	}
}

// PublishDue returns a payments.Registry OnDue hook publishing to bus.
func PublishDue(bus Bus) func(payments.DueReport) {
	return func(r payments.DueReport) { bus.Publish(DueEvent(r)) }
}
