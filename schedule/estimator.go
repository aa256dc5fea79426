/*
estimator.go - Occurrence estimation for recurrence rules

PURPOSE:
  Given a Rule and a start instant, produce the ordered instants at which
  the rule fires after that start. Used by reconciliation (what fell due
  between two instants) and by next-due computation (what fires next).

ALGORITHM:
  1. Take the calendar day and time of day of the start instant.
  2. Walk forward one day at a time until the rule's day field matches.
  3. Same-day tie-break: if the first match is the start day itself and the
     rule's time of day is not strictly after the start's, that occurrence
     already elapsed; roll one period and search again.
  4. Each following occurrence is found by rolling one period from the
     previous occurrence's day and searching again.
  5. Stop after MaxMatches results, or at the first candidate after Until
     (that candidate is not returned).

  Month rolls clamp to the month end and the day walk then skips forward, so
  a monthday that a month does not have (31 in April) is never produced for
  that month.

PROPERTIES:
  - Pure: no state kept between calls.
  - Strictly increasing output.
  - Seconds of every occurrence are :00.

SEE ALSO:
  - rule.go: matches / roll
  - calendar.go: Date arithmetic
*/
package schedule

import "time"

// searchLimit bounds the day-by-day walk. Any in-range rule matches well
// within it (monthday 31 never waits more than 61 days); out-of-range rules
// such as WEEKDAY-9 never match and end the sequence here instead of looping.
const searchLimit = 400

// Bounds terminate an estimate. At least one must be set.
type Bounds struct {
	MaxMatches int       // <= 0 means no count limit
	Until      time.Time // zero means no time limit; inclusive
}

// Estimate returns the occurrences of rule after start, in start's Location.
func Estimate(rule Rule, start time.Time, b Bounds) ([]time.Time, error) {
	if b.MaxMatches <= 0 && b.Until.IsZero() {
		return nil, ErrUnbounded
	}
	if rule.IsEmpty() {
		return nil, ErrEmptyRule
	}

	loc := start.Location()
	date := DateOf(start)
	var out []time.Time

	for {
		// The time of day only matters on the start day; afterwards date is
		// always the previous occurrence and must move on a full period.
		if rule.matches(date) && (len(out) > 0 || !rule.laterThan(start)) {
			date = rule.roll(date)
		}

		next, ok := seek(rule, date)
		if !ok {
			return out, nil
		}
		at := next.At(rule.Hour, rule.Minute, loc)
		if !b.Until.IsZero() && at.After(b.Until) {
			return out, nil
		}
		out = append(out, at)
		if b.MaxMatches > 0 && len(out) >= b.MaxMatches {
			return out, nil
		}
		date = next
	}
}

// Next returns the first occurrence of rule after start.
func Next(rule Rule, start time.Time) (time.Time, bool, error) {
	got, err := Estimate(rule, start, Bounds{MaxMatches: 1})
	if err != nil || len(got) == 0 {
		return time.Time{}, false, err
	}
	return got[0], true, nil
}

// Between returns the occurrences in (from, to], capped at limit.
func Between(rule Rule, from, to time.Time, limit int) ([]time.Time, error) {
	return Estimate(rule, from, Bounds{MaxMatches: limit, Until: to})
}

func seek(rule Rule, d Date) (Date, bool) {
	for i := 0; i < searchLimit; i++ {
		if rule.matches(d) {
			return d, true
		}
		d = d.AddDays(1)
	}
	return Date{}, false
}
