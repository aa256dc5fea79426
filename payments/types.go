/*
Package payments keeps the bookkeeping of scheduled payments.

PURPOSE:
  A scheduled payment pays an address a fixed amount whenever its schedule
  fires. This package records which of those firings are due and not yet
  resolved, and lets the owner pay or forget them. It never builds or sends
  transactions; paying produces a request for the host's send form.

KEY CONCEPTS:
  - Payment:     address, amount, description, schedule rule, flags
  - State:       last paid, last reconciled, next due, overdue instants
  - Reconciler:  finds occurrences that fell due since the last pass
  - Set:         the payments of one wallet, guarded by one mutex
  - Registry:    all open sets; the driver reconciles them every minute

OVERDUE INVARIANT:
  The overdue set only grows through reconciliation and only shrinks
  through pay/forget. Instants are compared by value, so re-running a pass
  over the same window inserts nothing new.

SEE ALSO:
  - schedule/estimator.go: occurrence estimation
  - scheduler/driver.go: calls Registry.ProcessAll
  - store/sqlite/sqlite.go: persistence
*/
package payments

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/scheduled-payments/schedule"
)

// =============================================================================
// PAYMENT
// =============================================================================

// Flags hold per-payment policy bits.
type Flags uint32

const (
	// FlagAutoPay asks for newly due occurrences to be settled by the host
	// instead of left pending.
	FlagAutoPay Flags = 1 << iota
)

func (f Flags) Has(flag Flags) bool { return f&flag == flag }

// Payment is one scheduled payment of a wallet.
type Payment struct {
	ID          string
	Address     string
	Amount      decimal.Decimal
	Description string
	When        schedule.Rule
	Flags       Flags
	CreatedAt   time.Time
	State
}

// Clone returns a copy that shares no memory with p.
func (p Payment) Clone() Payment {
	p.Overdue = p.Overdue.Clone()
	return p
}

// State is the schedule bookkeeping of a payment.
type State struct {
	LastPaidAt       time.Time // zero if never paid
	LastReconciledAt time.Time
	NextDueAt        time.Time // zero if the rule never fires
	Overdue          OverdueSet
}

// Anchor is where the next reconciliation starts: the later of the last
// payment and the last pass.
func (s State) Anchor() time.Time {
	if s.LastPaidAt.After(s.LastReconciledAt) {
		return s.LastPaidAt
	}
	return s.LastReconciledAt
}

// IsDue reports whether the cached next due instant has been reached.
func (s State) IsDue(now time.Time) bool {
	return !s.NextDueAt.IsZero() && !s.NextDueAt.After(now)
}

// =============================================================================
// OVERDUE SET - Sorted, duplicate-free instants
// =============================================================================

// OverdueSet holds unresolved occurrence instants in ascending order.
type OverdueSet []time.Time

// Add inserts t unless an equal instant is present. Reports whether it
// was inserted.
func (s *OverdueSet) Add(t time.Time) bool {
	i := sort.Search(len(*s), func(i int) bool { return !(*s)[i].Before(t) })
	if i < len(*s) && (*s)[i].Equal(t) {
		return false
	}
	*s = append(*s, time.Time{})
	copy((*s)[i+1:], (*s)[i:])
	(*s)[i] = t
	return true
}

// Remove deletes t if present and reports whether it was.
func (s *OverdueSet) Remove(t time.Time) bool {
	i := sort.Search(len(*s), func(i int) bool { return !(*s)[i].Before(t) })
	if i == len(*s) || !(*s)[i].Equal(t) {
		return false
	}
	*s = append((*s)[:i], (*s)[i+1:]...)
	return true
}

func (s OverdueSet) Len() int { return len(s) }

func (s OverdueSet) Clone() OverdueSet {
	if s == nil {
		return nil
	}
	return append(OverdueSet(nil), s...)
}

// =============================================================================
// OCCURRENCES AND RESOLUTION
// =============================================================================

// OccurrenceKey names one overdue occurrence of one payment.
type OccurrenceKey struct {
	PaymentID string
	At        time.Time
}

// Occurrence is a pending occurrence together with its payment.
type Occurrence struct {
	Payment Payment
	At      time.Time
}

// Resolution is what pay/forget removed from one payment.
type Resolution struct {
	Payment  Payment // after the change
	Resolved []time.Time
}

func (r Resolution) Count() int { return len(r.Resolved) }

// PayRequest is what the host needs to fill its send form.
type PayRequest struct {
	Total       decimal.Decimal
	Payees      []string
	Message     string
	Resolutions []Resolution
}
