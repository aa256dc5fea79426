/*
Package schedule provides the recurrence engine for scheduled payments.

PURPOSE:
  A scheduled payment says "pay X, amount Y, on this recurring schedule".
  This package owns the "when" part: the recurrence Rule, its compact text
  encoding, and the estimator that turns a rule plus a time window into the
  concrete instants at which the rule fires.

KEY CONCEPTS:
  - Rule:       weekly (ISO day-of-week) or monthly (day-of-month) trigger
                plus a time of day
  - Date:       a naive calendar day, no zone, no time of day
  - Estimate:   the ordered occurrences of a rule after a start instant

CALENDAR:
  All calendar fields are read in the Location of the start instant handed
  to Estimate. There is no timezone conversion anywhere in this package.

SEE ALSO:
  - text.go: ToText / FromText encoding
  - estimator.go: occurrence estimation
  - payments/reconcile.go: uses Estimate to find overdue occurrences
*/
package schedule

import (
	"fmt"
	"time"
)

// =============================================================================
// RULE - The "when" of a scheduled payment
// =============================================================================

// Rule is a weekly or monthly trigger with a time of day.
//
// WeekDay and MonthDay are mutually exclusive; zero means unset. A rule with
// neither set is empty and never fires. Rules are values: once handed to the
// estimator they are not mutated.
type Rule struct {
	WeekDay  int // ISO day of week, Monday=1 .. Sunday=7
	MonthDay int // day of month, 1..31
	Hour     int
	Minute   int
}

// Weekly returns a rule firing every week on the given day at hour:minute.
func Weekly(day time.Weekday, hour, minute int) Rule {
	return Rule{WeekDay: isoWeekday(day), Hour: hour, Minute: minute}
}

// Monthly returns a rule firing every month on the given day at hour:minute.
// Months without that day are skipped.
func Monthly(day, hour, minute int) Rule {
	return Rule{MonthDay: day, Hour: hour, Minute: minute}
}

func (r Rule) IsEmpty() bool   { return r.WeekDay == 0 && r.MonthDay == 0 }
func (r Rule) IsWeekly() bool  { return r.WeekDay != 0 }
func (r Rule) IsMonthly() bool { return r.WeekDay == 0 && r.MonthDay != 0 }

// Validate checks field ranges. FromText does not call it: parsing is
// lenient and out-of-range rules simply never match.
func (r Rule) Validate() error {
	switch {
	case r.IsEmpty():
		return ErrEmptyRule
	case r.WeekDay != 0 && r.MonthDay != 0:
		return &RuleError{Field: "day", Reason: "weekday and monthday are mutually exclusive"}
	case r.WeekDay < 0 || r.WeekDay > 7:
		return &RuleError{Field: "weekday", Reason: fmt.Sprintf("%d not in 1..7", r.WeekDay)}
	case r.MonthDay < 0 || r.MonthDay > 31:
		return &RuleError{Field: "monthday", Reason: fmt.Sprintf("%d not in 1..31", r.MonthDay)}
	case r.Hour < 0 || r.Hour > 23:
		return &RuleError{Field: "hour", Reason: fmt.Sprintf("%d not in 0..23", r.Hour)}
	case r.Minute < 0 || r.Minute > 59:
		return &RuleError{Field: "minute", Reason: fmt.Sprintf("%d not in 0..59", r.Minute)}
	}
	return nil
}

func (r Rule) String() string {
	switch {
	case r.IsWeekly():
		return fmt.Sprintf("weekly on %s at %02d:%02d", weekdayName(r.WeekDay), r.Hour, r.Minute)
	case r.IsMonthly():
		return fmt.Sprintf("monthly on day %d at %02d:%02d", r.MonthDay, r.Hour, r.Minute)
	default:
		return "never"
	}
}

// matches reports whether the rule's day field selects d.
func (r Rule) matches(d Date) bool {
	if r.IsWeekly() {
		return d.ISOWeekday() == r.WeekDay
	}
	return d.Day() == r.MonthDay
}

// roll advances d by one full period of the rule.
func (r Rule) roll(d Date) Date {
	if r.IsWeekly() {
		return d.AddDays(7)
	}
	return d.AddMonths(1)
}

// laterThan reports whether the rule's time of day is strictly after t's.
func (r Rule) laterThan(t time.Time) bool {
	if r.Hour != t.Hour() {
		return r.Hour > t.Hour()
	}
	return r.Minute > t.Minute()
}

func isoWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}

func weekdayName(iso int) string {
	if iso < 1 || iso > 7 {
		return fmt.Sprintf("day %d", iso)
	}
	return time.Weekday(iso % 7).String()
}
