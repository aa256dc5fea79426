package payments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/scheduled-payments/clock"
)

// DueReport summarizes one reconciliation pass over a wallet.
type DueReport struct {
	Wallet         string
	Now            time.Time
	Payments       []Payment // payments that were due in this pass
	NewOccurrences int
}

func (r DueReport) Empty() bool { return len(r.Payments) == 0 }

// Message is the user-facing notification text for the pass.
func (r DueReport) Message() string {
	if r.Empty() {
		return ""
	}
	s := r.Wallet + ": "
	if len(r.Payments) == 1 {
		s += "1 scheduled payment became due."
	} else {
		s += fmt.Sprintf("%d scheduled payments became due.", len(r.Payments))
	}
	return s + " Check the scheduled payments tab."
}

// Registry tracks the open payment sets of a process.
type Registry struct {
	store Store
	clock clock.Clock
	opts  Options
	log   zerolog.Logger

	// OnDue, when set, is called after every pass that found due payments.
	OnDue func(DueReport)

	mu   sync.RWMutex
	sets map[string]*Set
}

func NewRegistry(store Store, clk clock.Clock, opts Options) *Registry {
	return &Registry{
		store: store,
		clock: clk,
		opts:  opts,
		log:   opts.Logger,
		sets:  make(map[string]*Set),
	}
}

// Open loads a wallet's payments and immediately reconciles them at the
// clock's current instant, catching up on occurrences that fell due while
// the wallet was not open. Opening an open wallet returns the existing set.
func (r *Registry) Open(ctx context.Context, wallet string) (*Set, DueReport, error) {
	r.mu.Lock()
	if s, ok := r.sets[wallet]; ok {
		r.mu.Unlock()
		return s, DueReport{Wallet: wallet}, nil
	}
	s, err := LoadSet(ctx, wallet, r.store, r.opts)
	if err != nil {
		r.mu.Unlock()
		return nil, DueReport{}, err
	}
	r.sets[wallet] = s
	r.mu.Unlock()

	r.log.Info().Str("wallet", wallet).Int("payments", len(s.List())).Msg("wallet opened")
	report, err := r.process(ctx, s, r.clock.Now())
	return s, report, err
}

// Close forgets an open wallet. Its payments stay in the store.
func (r *Registry) Close(wallet string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sets[wallet]; !ok {
		return fmt.Errorf("%w: %s", ErrWalletNotOpen, wallet)
	}
	delete(r.sets, wallet)
	r.log.Info().Str("wallet", wallet).Msg("wallet closed")
	return nil
}

func (r *Registry) Get(wallet string) (*Set, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sets[wallet]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrWalletNotOpen, wallet)
}

// Wallets returns the open wallet names, sorted.
func (r *Registry) Wallets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sets))
	for w := range r.sets {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// ProcessAll reconciles every open wallet at now.
func (r *Registry) ProcessAll(ctx context.Context, now time.Time) ([]DueReport, error) {
	var reports []DueReport
	var errs []error
	for _, w := range r.Wallets() {
		s, err := r.Get(w)
		if err != nil {
			continue // closed meanwhile
		}
		report, err := r.process(ctx, s, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("wallet %s: %w", w, err))
		}
		if !report.Empty() {
			reports = append(reports, report)
		}
	}
	return reports, errors.Join(errs...)
}

// Process reconciles one open wallet at now.
func (r *Registry) Process(ctx context.Context, wallet string, now time.Time) (DueReport, error) {
	s, err := r.Get(wallet)
	if err != nil {
		return DueReport{}, err
	}
	return r.process(ctx, s, now)
}

func (r *Registry) process(ctx context.Context, s *Set, now time.Time) (DueReport, error) {
	report, err := s.Process(ctx, now)
	if !report.Empty() && r.OnDue != nil {
		r.OnDue(report)
	}
	return report, err
}
