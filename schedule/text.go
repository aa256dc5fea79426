package schedule

import (
	"fmt"
	"strconv"
	"strings"
)

// Text tokens. A rule encodes as "WEEKDAY-<n> TIME-<HH>:<MM>" or
// "MONTHDAY-<n> TIME-<HH>:<MM>"; an empty rule encodes as "".
const (
	tokenWeekDay  = "WEEKDAY-"
	tokenMonthDay = "MONTHDAY-"
	tokenTime     = "TIME-"
)

// ToText encodes the rule in its persisted text form.
func (r Rule) ToText() string {
	var day string
	switch {
	case r.WeekDay != 0:
		day = tokenWeekDay + strconv.Itoa(r.WeekDay)
	case r.MonthDay != 0:
		day = tokenMonthDay + strconv.Itoa(r.MonthDay)
	default:
		return ""
	}
	return fmt.Sprintf("%s %s%02d:%02d", day, tokenTime, r.Hour, r.Minute)
}

// FromText decodes a persisted rule.
//
// Decoding never fails. Tokens are order-independent; unknown or malformed
// tokens are skipped so that text written by newer or older versions still
// loads with whatever fields it can. Values are not range checked. When
// both day tokens are present the weekday wins, as it does in ToText.
func FromText(text string) Rule {
	var r Rule
	for _, tok := range strings.Split(text, " ") {
		switch {
		case strings.HasPrefix(tok, tokenWeekDay):
			if n, err := strconv.Atoi(tok[len(tokenWeekDay):]); err == nil {
				r.WeekDay = n
			}
		case strings.HasPrefix(tok, tokenMonthDay):
			if n, err := strconv.Atoi(tok[len(tokenMonthDay):]); err == nil {
				r.MonthDay = n
			}
		case strings.HasPrefix(tok, tokenTime):
			parts := strings.Split(tok[len(tokenTime):], ":")
			if len(parts) != 2 {
				continue
			}
			h, herr := strconv.Atoi(parts[0])
			m, merr := strconv.Atoi(parts[1])
			if herr == nil && merr == nil {
				r.Hour, r.Minute = h, m
			}
		}
	}
	if r.WeekDay != 0 {
		r.MonthDay = 0
	}
	return r
}
