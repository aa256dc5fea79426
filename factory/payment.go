/*
Package factory provides JSON to Go payment conversion.

PURPOSE:
  Converts JSON payment definitions, as sent by a control surface or kept
  in a file, into validated payments.Payment values, and back.

JSON SCHEMA:
  {
    "id": "3f2a...",                  // omit to create
    "address": "bc1q...",
    "amount": "0.015",                // string or number, decimal
    "description": "rent",
    "when": "WEEKDAY-1 TIME-09:00",   // rule text form
    "auto_pay": false
  }

  Instead of "when", a structured schedule may be given:

    "schedule": {"weekday": "monday", "time": "09:00"}
    "schedule": {"monthday": 31, "time": "23:59"}

KEY FEATURES:
  - Decimal amounts, no float rounding
  - Weekday by name ("mon", "monday") or ISO number (1 = Monday)
  - Every rejection is a payments.ErrInvalidPayment, so callers can
    report it as a client error

USAGE:
  f := NewPaymentFactory()
  p, err := f.ParsePayment(jsonString)
  saved, err := set.Save(ctx, p, source.Now())

SEE ALSO:
  - payments/types.go: Payment type definition
  - schedule/text.go: rule text form
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/scheduled-payments/payments"
	"github.com/warp/scheduled-payments/schedule"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PaymentJSON is the JSON representation of a payment definition.
type PaymentJSON struct {
	ID          string          `json:"id,omitempty"`
	Address     string          `json:"address"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	When        string          `json:"when,omitempty"`
	Schedule    *ScheduleJSON   `json:"schedule,omitempty"`
	AutoPay     bool            `json:"auto_pay,omitempty"`
}

// ScheduleJSON is the structured form of a recurrence rule.
type ScheduleJSON struct {
	WeekDay  string `json:"weekday,omitempty"` // name or ISO number
	MonthDay int    `json:"monthday,omitempty"`
	Time     string `json:"time"` // HH:MM
}

// =============================================================================
// PAYMENT FACTORY
// =============================================================================

// PaymentFactory converts JSON payment definitions to Go structs.
type PaymentFactory struct{}

// NewPaymentFactory creates a new payment factory.
func NewPaymentFactory() *PaymentFactory {
	return &PaymentFactory{}
}

// ParsePayment parses a JSON string into a Payment.
func (f *PaymentFactory) ParsePayment(jsonStr string) (payments.Payment, error) {
	var pj PaymentJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return payments.Payment{}, fmt.Errorf("%w: failed to parse payment JSON: %v", payments.ErrInvalidPayment, err)
	}
	return f.FromJSON(pj)
}

// FromJSON converts PaymentJSON to a validated Payment. Schedule state is
// left zero; payments.Set.Save fills it in.
func (f *PaymentFactory) FromJSON(pj PaymentJSON) (payments.Payment, error) {
	rule, err := f.parseRule(pj)
	if err != nil {
		return payments.Payment{}, err
	}

	p := payments.Payment{
		ID:          strings.TrimSpace(pj.ID),
		Address:     strings.TrimSpace(pj.Address),
		Amount:      pj.Amount,
		Description: pj.Description,
		When:        rule,
	}
	if pj.AutoPay {
		p.Flags |= payments.FlagAutoPay
	}

	switch {
	case p.Address == "":
		return payments.Payment{}, &payments.InvalidPaymentError{Field: "address", Reason: "required"}
	case !p.Amount.IsPositive():
		return payments.Payment{}, &payments.InvalidPaymentError{Field: "amount", Reason: "must be positive"}
	}
	return p, nil
}

// ToJSON converts a Payment to PaymentJSON using the text schedule form.
func (f *PaymentFactory) ToJSON(p payments.Payment) PaymentJSON {
	return PaymentJSON{
		ID:          p.ID,
		Address:     p.Address,
		Amount:      p.Amount,
		Description: p.Description,
		When:        p.When.ToText(),
		AutoPay:     p.Flags.Has(payments.FlagAutoPay),
	}
}

// ParseRule parses a rule given either as text or in structured form and
// validates it. Use schedule.FromText directly for lenient decoding.
func (f *PaymentFactory) ParseRule(when string, sj *ScheduleJSON) (schedule.Rule, error) {
	return f.parseRule(PaymentJSON{When: when, Schedule: sj})
}

func (f *PaymentFactory) parseRule(pj PaymentJSON) (schedule.Rule, error) {
	var rule schedule.Rule
	switch {
	case pj.Schedule != nil && pj.When != "":
		return rule, &payments.InvalidPaymentError{Field: "when", Reason: "give either when or schedule"}
	case pj.Schedule != nil:
		var err error
		if rule, err = parseSchedule(*pj.Schedule); err != nil {
			return rule, err
		}
	default:
		rule = schedule.FromText(pj.When)
	}

	if err := rule.Validate(); err != nil {
		return rule, &payments.InvalidPaymentError{Field: "when", Reason: err.Error()}
	}
	return rule, nil
}

func parseSchedule(sj ScheduleJSON) (schedule.Rule, error) {
	var rule schedule.Rule
	hour, minute, err := parseClock(sj.Time)
	if err != nil {
		return rule, &payments.InvalidPaymentError{Field: "schedule.time", Reason: err.Error()}
	}
	rule.Hour, rule.Minute = hour, minute

	if sj.WeekDay != "" {
		day, err := parseWeekDay(sj.WeekDay)
		if err != nil {
			return rule, &payments.InvalidPaymentError{Field: "schedule.weekday", Reason: err.Error()}
		}
		rule.WeekDay = day
	}
	rule.MonthDay = sj.MonthDay
	return rule, nil
}

// parseClock parses "HH:MM".
func parseClock(s string) (int, int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("%q is not HH:MM", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil {
		return 0, 0, fmt.Errorf("%q is not HH:MM", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil {
		return 0, 0, fmt.Errorf("%q is not HH:MM", s)
	}
	return hour, minute, nil
}

var weekDays = map[string]int{
	"mon": 1, "monday": 1,
	"tue": 2, "tuesday": 2,
	"wed": 3, "wednesday": 3,
	"thu": 4, "thursday": 4,
	"fri": 5, "friday": 5,
	"sat": 6, "saturday": 6,
	"sun": 7, "sunday": 7,
}

func parseWeekDay(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, ok := weekDays[s]; ok {
		return n, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}
