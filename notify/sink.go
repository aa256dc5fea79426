package notify

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// LogSink logs bus events. Due payments are always logged; clock ticks are
// logged at debug level and throttled, since an accelerated clock ticks
// every second.
type LogSink struct {
	log     zerolog.Logger
	limiter *rate.Limiter
}

// NewLogSink logs at most ticksPerMinute clock ticks per minute. Zero or
// less means one per minute.
func NewLogSink(log zerolog.Logger, ticksPerMinute int) *LogSink {
	if ticksPerMinute <= 0 {
		ticksPerMinute = 1
	}
	every := rate.Limit(float64(ticksPerMinute) / 60)
	return &LogSink{log: log, limiter: rate.NewLimiter(every, 1)}
}

// Run consumes bus events until ctx ends or the subscription closes.
func (s *LogSink) Run(ctx context.Context, bus Bus) {
	ch, unsubscribe := bus.Subscribe(64)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			s.Handle(e)
		}
	}
}

// Handle logs one event.
func (s *LogSink) Handle(e Event) {
	switch data := e.Data.(type) {
	case PaymentsDue:
		s.log.Info().
			Str("wallet", data.Wallet).
			Int("payments", data.Payments).
			Int("occurrences", data.Occurrences).
			Msg(data.Message)
	case ClockTick:
		if e.Type == TypeClockChanged {
			s.log.Info().Time("now", data.Now).Bool("real_time", data.RealTime).
				Float64("multiplier", data.Multiplier).Bool("paused", data.Paused).
				Msg("clock changed")
			return
		}
		if !s.limiter.Allow() {
			return
		}
		s.log.Debug().Time("now", data.Now).Bool("real_time", data.RealTime).
			Float64("multiplier", data.Multiplier).Msg("clock tick")
	default:
		s.log.Debug().Str("type", e.Type).Msg("event")
	}
}
