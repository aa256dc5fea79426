package payments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/scheduled-payments/schedule"
)

// Options configure the sets of a Registry.
type Options struct {
	// Settler, when set, receives the new occurrences of auto-pay payments.
	Settler Settler

	// MaxOverduePerPass overrides the per-payment cap of one pass.
	MaxOverduePerPass int

	// Location is the calendar rule fields are read in; nil means
	// time.Local. It should match the clock source's location.
	Location *time.Location

	Logger zerolog.Logger
}

// Set holds the payments of one wallet. All methods are safe for concurrent
// use; one mutex serializes every change to the set.
type Set struct {
	wallet     string
	store      Store
	reconciler Reconciler
	settler    Settler
	log        zerolog.Logger

	mu       sync.Mutex
	payments []*Payment
}

// LoadSet reads a wallet's payments from the store.
func LoadSet(ctx context.Context, wallet string, store Store, opts Options) (*Set, error) {
	stored, err := store.LoadPayments(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("load payments of %s: %w", wallet, err)
	}
	s := &Set{
		wallet:     wallet,
		store:      store,
		reconciler: Reconciler{MaxMatches: opts.MaxOverduePerPass, Location: opts.Location},
		settler:    opts.Settler,
		log:        opts.Logger.With().Str("wallet", wallet).Logger(),
	}
	for i := range stored {
		p := stored[i].Clone()
		s.payments = append(s.payments, &p)
	}
	return s, nil
}

func (s *Set) Wallet() string { return s.wallet }

// =============================================================================
// RECORD MANAGEMENT
// =============================================================================

// Save creates or updates a payment.
//
// A payment without an ID is new: it gets a fresh ID, CreatedAt = now and no
// overdue occurrences. An update keeps CreatedAt, LastPaidAt and the overdue
// occurrences of the stored record. Both restart reconciliation at now and
// recompute the next due instant.
func (s *Set) Save(ctx context.Context, p Payment, now time.Time) (Payment, error) {
	if err := validate(p); err != nil {
		return Payment{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now = now.In(s.reconciler.location())
	p = p.Clone()
	idx := -1
	if p.ID == "" {
		p.ID = newID()
		p.CreatedAt = now
		p.LastPaidAt = time.Time{}
		p.Overdue = nil
	} else {
		idx = s.indexLocked(p.ID)
		if idx < 0 {
			return Payment{}, fmt.Errorf("%w: %s", ErrPaymentNotFound, p.ID)
		}
		old := s.payments[idx]
		p.CreatedAt = old.CreatedAt
		p.LastPaidAt = old.LastPaidAt
		p.Overdue = old.Overdue.Clone()
	}

	p.LastReconciledAt = now
	p.NextDueAt = time.Time{}
	if next, ok, err := schedule.Next(p.When, now); err != nil {
		return Payment{}, err
	} else if ok {
		p.NextDueAt = next
	}

	if err := s.store.SavePayment(ctx, s.wallet, p); err != nil {
		return Payment{}, fmt.Errorf("save payment %s: %w", p.ID, err)
	}
	if idx < 0 {
		s.payments = append(s.payments, &p)
	} else {
		s.payments[idx] = &p
	}
	return p.Clone(), nil
}

// Delete removes payments by ID and returns how many were removed.
func (s *Set) Delete(ctx context.Context, ids ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := make([]*Payment, 0, len(s.payments))
	removed := 0
	for _, p := range s.payments {
		if drop[p.ID] {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.store.DeletePayments(ctx, s.wallet, ids); err != nil {
		return 0, fmt.Errorf("delete payments: %w", err)
	}
	s.payments = kept
	return removed, nil
}

func (s *Set) Get(id string) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.payments[i].Clone(), nil
	}
	return Payment{}, fmt.Errorf("%w: %s", ErrPaymentNotFound, id)
}

// List returns all payments in creation order.
func (s *Set) List() []Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Payment, len(s.payments))
	for i, p := range s.payments {
		out[i] = p.Clone()
	}
	return out
}

// Due returns the payments whose next due instant has been reached.
func (s *Set) Due(now time.Time) []Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Payment
	for _, p := range s.payments {
		if p.IsDue(now) {
			out = append(out, p.Clone())
		}
	}
	return out
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// Process reconciles every due payment at now. Payments that are not due
// are left alone. Errors of single payments do not stop the pass; a payment
// whose save fails keeps its previous state and is retried next pass.
func (s *Set) Process(ctx context.Context, now time.Time) (DueReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now = now.In(s.reconciler.location())
	report := DueReport{Wallet: s.wallet, Now: now}
	var errs []error
	for _, p := range s.payments {
		if !p.IsDue(now) {
			continue
		}
		st, res, err := s.reconciler.Reconcile(p.State, p.When, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("payment %s: %w", p.ID, err))
			continue
		}
		next := p.Clone()
		next.State = st
		if len(res.Added) > 0 && next.Flags.Has(FlagAutoPay) && s.settler != nil {
			s.settleLocked(ctx, &next, res.Added)
		}
		if err := s.store.SavePayment(ctx, s.wallet, next); err != nil {
			errs = append(errs, fmt.Errorf("save payment %s: %w", p.ID, err))
			continue
		}
		*p = next
		report.Payments = append(report.Payments, p.Clone())
		report.NewOccurrences += len(res.Added)
	}

	if len(report.Payments) > 0 {
		s.log.Info().
			Int("payments", len(report.Payments)).
			Int("occurrences", report.NewOccurrences).
			Time("now", now).
			Msg("scheduled payments became due")
	}
	return report, errors.Join(errs...)
}

func (s *Set) settleLocked(ctx context.Context, p *Payment, due []time.Time) {
	if err := s.settler.Settle(ctx, s.wallet, p.Clone(), due); err != nil {
		s.log.Warn().Err(err).Str("payment", p.ID).Int("occurrences", len(due)).
			Msg("auto-pay failed, occurrences left overdue")
		return
	}
	for _, at := range due {
		p.Overdue.Remove(at)
	}
	if last := due[len(due)-1]; last.After(p.LastPaidAt) {
		p.LastPaidAt = last
	}
	s.log.Info().Str("payment", p.ID).Int("occurrences", len(due)).Msg("auto-paid")
}

// =============================================================================
// PAY / FORGET
// =============================================================================

// Overdue lists every pending occurrence, oldest first.
func (s *Set) Overdue() []Occurrence {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Occurrence
	for _, p := range s.payments {
		for _, at := range p.Overdue {
			out = append(out, Occurrence{Payment: p.Clone(), At: at})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// HasOverdue reports whether any of the given payments has pending
// occurrences.
func (s *Set) HasOverdue(ids ...string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if i := s.indexLocked(id); i >= 0 && s.payments[i].Overdue.Len() > 0 {
			return true
		}
	}
	return false
}

// Forget drops overdue occurrences without paying them.
func (s *Set) Forget(ctx context.Context, keys []OccurrenceKey) ([]Resolution, error) {
	return s.resolve(ctx, keys, false)
}

// Pay drops overdue occurrences, marks them paid, and returns what the host
// should send: the summed amount, the payees and a message.
func (s *Set) Pay(ctx context.Context, keys []OccurrenceKey) (PayRequest, error) {
	resolutions, err := s.resolve(ctx, keys, true)
	if err != nil || len(resolutions) == 0 {
		return PayRequest{}, err
	}

	req := PayRequest{Total: decimal.Zero, Resolutions: resolutions}
	for _, r := range resolutions {
		req.Total = req.Total.Add(r.Payment.Amount.Mul(decimal.NewFromInt(int64(r.Count()))))
		req.Payees = append(req.Payees, r.Payment.Address)
	}
	if len(resolutions) == 1 {
		req.Message = strings.TrimSpace(resolutions[0].Payment.Description)
		if req.Message == "" {
			req.Message = "Scheduled payment"
		}
	} else {
		req.Message = "Scheduled payments"
	}
	return req, nil
}

func (s *Set) resolve(ctx context.Context, keys []OccurrenceKey, markPaid bool) ([]Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byPayment := make(map[string][]time.Time)
	for _, k := range keys {
		byPayment[k.PaymentID] = append(byPayment[k.PaymentID], k.At)
	}

	var out []Resolution
	var errs []error
	for _, p := range s.payments {
		next := p.Clone()
		var resolved []time.Time
		for _, at := range byPayment[p.ID] {
			if next.Overdue.Remove(at) {
				resolved = append(resolved, at)
			}
		}
		if len(resolved) == 0 {
			continue
		}
		sort.Slice(resolved, func(i, j int) bool { return resolved[i].Before(resolved[j]) })
		if markPaid {
			next.LastPaidAt = resolved[len(resolved)-1]
		}
		if err := s.store.SavePayment(ctx, s.wallet, next); err != nil {
			errs = append(errs, fmt.Errorf("save payment %s: %w", p.ID, err))
			continue
		}
		*p = next
		out = append(out, Resolution{Payment: p.Clone(), Resolved: resolved})
	}
	return out, errors.Join(errs...)
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Set) indexLocked(id string) int {
	for i, p := range s.payments {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func validate(p Payment) error {
	if strings.TrimSpace(p.Address) == "" {
		return &InvalidPaymentError{Field: "address", Reason: "required"}
	}
	if !p.Amount.IsPositive() {
		return &InvalidPaymentError{Field: "amount", Reason: "must be positive"}
	}
	if err := p.When.Validate(); err != nil {
		return &InvalidPaymentError{Field: "when", Reason: err.Error()}
	}
	return nil
}

// newID returns 32 lowercase hex characters.
func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
