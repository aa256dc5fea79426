/*
reconcile.go - Due occurrence reconciliation

PURPOSE:
  Scans the time elapsed since a payment was last looked at and records the
  occurrences that fell due in it.

STEPS:
  1. anchor = max(LastPaidAt, LastReconciledAt)
  2. occurrences in (anchor, now], at most MaxOverduePerPass of them
  3. insert each into the overdue set (duplicates are ignored)
  4. LastReconciledAt = now
  5. NextDueAt = first occurrence after now

CALENDAR:
  Rule fields are read in the Reconciler's Location (time.Local when
  unset), never in the location an instant happens to carry. Two passes
  that see the same moment through differently zoned values therefore
  record the same occurrence once.

CAP:
  LastReconciledAt moves to now even when the cap cut the scan short, so
  occurrences beyond the first MaxOverduePerPass in one window are never
  recorded. This bounds the cost of a pass after a long absence and is
  accepted behavior.

SEE ALSO:
  - set.go: runs this for every due payment of a wallet
*/
package payments

import (
	"fmt"
	"time"

	"github.com/warp/scheduled-payments/schedule"
)

// MaxOverduePerPass caps the occurrences one pass records per payment.
const MaxOverduePerPass = 100

// Reconciler computes due occurrences. The zero value uses MaxOverduePerPass
// and time.Local.
type Reconciler struct {
	MaxMatches int
	Location   *time.Location
}

func (r Reconciler) location() *time.Location {
	if r.Location == nil {
		return time.Local
	}
	return r.Location
}

// Result describes one reconciliation pass over one payment.
type Result struct {
	Due       []time.Time // occurrences in (anchor, now]
	Added     []time.Time // the subset not already overdue
	NextDueAt time.Time
}

// Reconcile returns st updated for now. st itself is not modified.
func (r Reconciler) Reconcile(st State, rule schedule.Rule, now time.Time) (State, Result, error) {
	limit := r.MaxMatches
	if limit <= 0 {
		limit = MaxOverduePerPass
	}

	loc := r.location()
	now = now.In(loc)

	var res Result
	anchor := st.Anchor()
	if !anchor.IsZero() && anchor.Before(now) {
		due, err := schedule.Between(rule, anchor.In(loc), now, limit)
		if err != nil {
			return st, res, fmt.Errorf("estimate overdue: %w", err)
		}
		res.Due = due
	}

	next := st
	next.Overdue = st.Overdue.Clone()
	for _, at := range res.Due {
		if next.Overdue.Add(at) {
			res.Added = append(res.Added, at)
		}
	}
	next.LastReconciledAt = now

	upcoming, ok, err := schedule.Next(rule, now)
	if err != nil {
		return st, res, fmt.Errorf("estimate next due: %w", err)
	}
	if ok {
		next.NextDueAt = upcoming
	} else {
		next.NextDueAt = time.Time{}
	}
	res.NextDueAt = next.NextDueAt
	return next, res, nil
}
