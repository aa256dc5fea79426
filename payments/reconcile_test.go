package payments_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/scheduled-payments/payments"
	"github.com/warp/scheduled-payments/schedule"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func at(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

var mondayNine = schedule.Weekly(time.Monday, 9, 0)

var utc = payments.Reconciler{Location: time.UTC}

// =============================================================================
// RECONCILE
// =============================================================================

func TestReconcile_ThreeMondaysElapsed(t *testing.T) {
	// GIVEN: Reconciled at 2025-01-01 00:00 (Wednesday), rule Monday 09:00
	// WHEN: Reconciling at 2025-01-22 00:00
	// THEN: Jan 6, 13 and 20 become overdue, next due is Jan 27 09:00
	st := payments.State{LastReconciledAt: at(2025, time.January, 1, 0, 0)}
	now := at(2025, time.January, 22, 0, 0)

	got, res, err := utc.Reconcile(st, mondayNine, now)

	require.NoError(t, err)
	want := []time.Time{
		at(2025, time.January, 6, 9, 0),
		at(2025, time.January, 13, 9, 0),
		at(2025, time.January, 20, 9, 0),
	}
	assert.Equal(t, want, res.Added)
	assert.Equal(t, payments.OverdueSet(want), got.Overdue)
	assert.Equal(t, now, got.LastReconciledAt)
	assert.Equal(t, at(2025, time.January, 27, 9, 0), got.NextDueAt)
	assert.Equal(t, got.NextDueAt, res.NextDueAt)
}

func TestReconcile_IsIdempotent(t *testing.T) {
	// GIVEN: A state already reconciled at now
	// WHEN: Reconciling again at the same instant
	// THEN: Nothing new is added
	st := payments.State{LastReconciledAt: at(2025, time.January, 1, 0, 0)}
	now := at(2025, time.January, 22, 0, 0)
	first, _, err := utc.Reconcile(st, mondayNine, now)
	require.NoError(t, err)

	second, res, err := utc.Reconcile(first, mondayNine, now)

	require.NoError(t, err)
	assert.Empty(t, res.Added)
	assert.Equal(t, first.Overdue, second.Overdue)
	assert.Equal(t, now, second.LastReconciledAt)
}

func TestReconcile_DoesNotDuplicateExistingInstants(t *testing.T) {
	// GIVEN: An overdue set that already holds Jan 13 09:00 and an older
	// anchor that covers it again
	st := payments.State{
		LastReconciledAt: at(2025, time.January, 1, 0, 0),
		Overdue:          payments.OverdueSet{at(2025, time.January, 13, 9, 0)},
	}

	got, res, err := utc.Reconcile(st, mondayNine, at(2025, time.January, 22, 0, 0))

	require.NoError(t, err)
	assert.Len(t, res.Due, 3)
	assert.Len(t, res.Added, 2)
	assert.Equal(t, 3, got.Overdue.Len())
}

func TestReconcile_DoesNotModifyInput(t *testing.T) {
	st := payments.State{
		LastReconciledAt: at(2025, time.January, 1, 0, 0),
		Overdue:          payments.OverdueSet{at(2024, time.December, 30, 9, 0)},
	}

	_, _, err := utc.Reconcile(st, mondayNine, at(2025, time.January, 22, 0, 0))

	require.NoError(t, err)
	assert.Equal(t, 1, st.Overdue.Len())
	assert.Equal(t, at(2025, time.January, 1, 0, 0), st.LastReconciledAt)
}

func TestReconcile_AnchorsAtLastPaid(t *testing.T) {
	// GIVEN: Paid up to Jan 13 09:00, reconciled earlier
	// THEN: Only Jan 20 is new
	st := payments.State{
		LastPaidAt:       at(2025, time.January, 13, 9, 0),
		LastReconciledAt: at(2025, time.January, 1, 0, 0),
	}

	_, res, err := utc.Reconcile(st, mondayNine, at(2025, time.January, 22, 0, 0))

	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(2025, time.January, 20, 9, 0)}, res.Added)
}

func TestReconcile_OccurrenceAtNowIsDue(t *testing.T) {
	st := payments.State{LastReconciledAt: at(2025, time.January, 13, 0, 0)}
	now := at(2025, time.January, 13, 9, 0)

	got, res, err := utc.Reconcile(st, mondayNine, now)

	require.NoError(t, err)
	assert.Equal(t, []time.Time{now}, res.Added)
	assert.Equal(t, at(2025, time.January, 20, 9, 0), got.NextDueAt)
}

func TestReconcile_CapsOccurrencesPerPass(t *testing.T) {
	// GIVEN: Five years without a pass (about 260 Mondays)
	// WHEN: Reconciling
	// THEN: Only the first 100 are recorded and the anchor still moves to now
	st := payments.State{LastReconciledAt: at(2020, time.January, 1, 0, 0)}
	now := at(2025, time.January, 1, 0, 0)

	got, res, err := utc.Reconcile(st, mondayNine, now)

	require.NoError(t, err)
	assert.Len(t, res.Added, payments.MaxOverduePerPass)
	assert.Equal(t, at(2020, time.January, 6, 9, 0), got.Overdue[0])
	assert.Equal(t, now, got.LastReconciledAt)
}

func TestReconcile_CustomCap(t *testing.T) {
	st := payments.State{LastReconciledAt: at(2025, time.January, 1, 0, 0)}

	_, res, err := payments.Reconciler{MaxMatches: 2, Location: time.UTC}.Reconcile(st, mondayNine, at(2025, time.January, 22, 0, 0))

	require.NoError(t, err)
	assert.Len(t, res.Added, 2)
}

func TestReconcile_ZeroAnchorOnlyComputesNextDue(t *testing.T) {
	got, res, err := utc.Reconcile(payments.State{}, mondayNine, at(2025, time.January, 22, 0, 0))

	require.NoError(t, err)
	assert.Empty(t, res.Added)
	assert.Equal(t, at(2025, time.January, 27, 9, 0), got.NextDueAt)
}

func TestReconcile_RuleThatNeverFires(t *testing.T) {
	// WEEKDAY-9 parses but never matches
	rule := schedule.FromText("WEEKDAY-9 TIME-09:00")
	st := payments.State{LastReconciledAt: at(2025, time.January, 1, 0, 0)}

	got, res, err := utc.Reconcile(st, rule, at(2025, time.January, 22, 0, 0))

	require.NoError(t, err)
	assert.Empty(t, res.Added)
	assert.True(t, got.NextDueAt.IsZero())
}

func TestReconcile_ReadsRuleInReconcilerLocation(t *testing.T) {
	// GIVEN: A reconciler whose calendar is EST, anchored at 08:00Z Monday
	est := time.FixedZone("EST", -5*60*60)
	r := payments.Reconciler{Location: est}
	st := payments.State{LastReconciledAt: at(2025, time.January, 6, 8, 0)}

	// WHEN: One pass sees a UTC instant (05:00 EST), the next an EST one
	first, res, err := r.Reconcile(st, mondayNine, at(2025, time.January, 6, 10, 0))
	require.NoError(t, err)
	assert.Empty(t, res.Added)
	assert.Same(t, est, first.LastReconciledAt.Location())

	second, res, err := r.Reconcile(first, mondayNine, time.Date(2025, time.January, 6, 10, 0, 0, 0, est))

	// THEN: Only 09:00 EST is overdue
	require.NoError(t, err)
	require.Len(t, res.Added, 1)
	require.Equal(t, 1, second.Overdue.Len())
	assert.True(t, second.Overdue[0].Equal(time.Date(2025, time.January, 6, 9, 0, 0, 0, est)))
	assert.True(t, second.NextDueAt.Equal(time.Date(2025, time.January, 13, 9, 0, 0, 0, est)))
}

func TestReconcile_EmptyRuleFails(t *testing.T) {
	st := payments.State{LastReconciledAt: at(2025, time.January, 1, 0, 0)}

	_, _, err := utc.Reconcile(st, schedule.Rule{}, at(2025, time.January, 22, 0, 0))

	assert.ErrorIs(t, err, schedule.ErrEmptyRule)
}

// =============================================================================
// STATE AND OVERDUE SET
// =============================================================================

func TestState_AnchorAndIsDue(t *testing.T) {
	st := payments.State{
		LastPaidAt:       at(2025, time.January, 10, 0, 0),
		LastReconciledAt: at(2025, time.January, 5, 0, 0),
		NextDueAt:        at(2025, time.January, 13, 9, 0),
	}

	assert.Equal(t, st.LastPaidAt, st.Anchor())
	assert.False(t, st.IsDue(at(2025, time.January, 13, 8, 59)))
	assert.True(t, st.IsDue(at(2025, time.January, 13, 9, 0)))
	assert.False(t, payments.State{}.IsDue(at(2025, time.January, 13, 9, 0)))
}

func TestOverdueSet_KeepsOrderWithoutDuplicates(t *testing.T) {
	var s payments.OverdueSet
	assert.True(t, s.Add(at(2025, time.January, 20, 9, 0)))
	assert.True(t, s.Add(at(2025, time.January, 6, 9, 0)))
	assert.True(t, s.Add(at(2025, time.January, 13, 9, 0)))
	assert.False(t, s.Add(at(2025, time.January, 13, 9, 0)))

	assert.Equal(t, payments.OverdueSet{
		at(2025, time.January, 6, 9, 0),
		at(2025, time.January, 13, 9, 0),
		at(2025, time.January, 20, 9, 0),
	}, s)

	assert.True(t, s.Remove(at(2025, time.January, 13, 9, 0)))
	assert.False(t, s.Remove(at(2025, time.January, 13, 9, 0)))
	assert.Equal(t, payments.OverdueSet{
		at(2025, time.January, 6, 9, 0),
		at(2025, time.January, 20, 9, 0),
	}, s)
	assert.Equal(t, 2, s.Len())
}

func TestOverdueSet_ComparesInstantsAcrossLocations(t *testing.T) {
	var s payments.OverdueSet
	nine := at(2025, time.January, 6, 9, 0)
	s.Add(nine)

	assert.False(t, s.Add(nine.In(time.FixedZone("X", 3600))))
	assert.True(t, s.Remove(nine.In(time.FixedZone("Y", -7200))))
	assert.Zero(t, s.Len())
}
