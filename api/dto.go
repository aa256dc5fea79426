/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the
  payments model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

INSTANTS:
  Every instant is rendered as {"at": RFC 3339, "display": "2006-01-02 15:04"}
  in the active clock's location. An unset instant has "at": null and
  "display": "-".

SEE ALSO:
  - handlers.go: Uses these types
  - factory/payment.go: payment definition JSON (request bodies)
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/scheduled-payments/clock"
	"github.com/warp/scheduled-payments/payments"
)

const displayLayout = "2006-01-02 15:04"

// =============================================================================
// INSTANTS
// =============================================================================

// InstantDTO is one instant in machine and display form.
type InstantDTO struct {
	At      *time.Time `json:"at"`
	Display string     `json:"display"`
}

func toInstant(t time.Time, loc *time.Location) InstantDTO {
	if t.IsZero() {
		return InstantDTO{Display: "-"}
	}
	t = t.In(loc)
	return InstantDTO{At: &t, Display: t.Format(displayLayout)}
}

// =============================================================================
// CLOCK
// =============================================================================

// ClockDTO is the state of the active clock.
type ClockDTO struct {
	RealTime   bool       `json:"real_time"`
	Now        InstantDTO `json:"now"`
	Multiplier float64    `json:"multiplier"`
	Paused     bool       `json:"paused"`
	Speeds     []float64  `json:"speeds"`
}

func toClockDTO(st clock.Status) ClockDTO {
	return ClockDTO{
		RealTime:   st.RealTime,
		Now:        toInstant(st.Now, st.Now.Location()),
		Multiplier: st.Multiplier,
		Paused:     st.Paused,
		Speeds:     clock.Speeds,
	}
}

// SpeedRequest selects a fake clock speed (1, 60, 3600 or 86400).
type SpeedRequest struct {
	Speed float64 `json:"speed"`
}

// SetTimeRequest moves the fake clock.
type SetTimeRequest struct {
	Now time.Time `json:"now"`
}

// PreviewDTO lists the upcoming occurrences of a schedule.
type PreviewDTO struct {
	When        string       `json:"when"`
	Schedule    string       `json:"schedule"`
	From        InstantDTO   `json:"from"`
	Occurrences []InstantDTO `json:"occurrences"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentDTO represents a scheduled payment in API responses.
type PaymentDTO struct {
	ID               string          `json:"id"`
	Address          string          `json:"address"`
	Amount           decimal.Decimal `json:"amount"`
	Description      string          `json:"description"`
	When             string          `json:"when"`
	Schedule         string          `json:"schedule"`
	AutoPay          bool            `json:"auto_pay"`
	CreatedAt        InstantDTO      `json:"created_at"`
	LastPaidAt       InstantDTO      `json:"last_paid_at"`
	LastReconciledAt InstantDTO      `json:"last_reconciled_at"`
	NextDueAt        InstantDTO      `json:"next_due_at"`
	Overdue          []InstantDTO    `json:"overdue"`
}

func toPaymentDTO(p payments.Payment, loc *time.Location) PaymentDTO {
	dto := PaymentDTO{
		ID:               p.ID,
		Address:          p.Address,
		Amount:           p.Amount,
		Description:      p.Description,
		When:             p.When.ToText(),
		Schedule:         p.When.String(),
		AutoPay:          p.Flags.Has(payments.FlagAutoPay),
		CreatedAt:        toInstant(p.CreatedAt, loc),
		LastPaidAt:       toInstant(p.LastPaidAt, loc),
		LastReconciledAt: toInstant(p.LastReconciledAt, loc),
		NextDueAt:        toInstant(p.NextDueAt, loc),
		Overdue:          make([]InstantDTO, len(p.Overdue)),
	}
	for i, at := range p.Overdue {
		dto.Overdue[i] = toInstant(at, loc)
	}
	return dto
}

// WalletDTO summarizes an open wallet.
type WalletDTO struct {
	Wallet   string `json:"wallet"`
	Payments int    `json:"payments"`
	Overdue  int    `json:"overdue"`
}

func toWalletDTO(s *payments.Set) WalletDTO {
	return WalletDTO{Wallet: s.Wallet(), Payments: len(s.List()), Overdue: len(s.Overdue())}
}

// OpenWalletResponse is returned when a wallet is opened.
type OpenWalletResponse struct {
	WalletDTO
	Report DueReportDTO `json:"report"`
}

// DueReportDTO describes one reconciliation pass.
type DueReportDTO struct {
	Wallet         string     `json:"wallet"`
	Now            InstantDTO `json:"now"`
	Payments       []string   `json:"payments"`
	NewOccurrences int        `json:"new_occurrences"`
	Message        string     `json:"message,omitempty"`
}

func toDueReportDTO(r payments.DueReport, loc *time.Location) DueReportDTO {
	dto := DueReportDTO{
		Wallet:         r.Wallet,
		Now:            toInstant(r.Now, loc),
		Payments:       make([]string, len(r.Payments)),
		NewOccurrences: r.NewOccurrences,
		Message:        r.Message(),
	}
	for i, p := range r.Payments {
		dto.Payments[i] = p.ID
	}
	return dto
}

// =============================================================================
// OVERDUE OCCURRENCES
// =============================================================================

// OccurrenceDTO is one pending occurrence.
type OccurrenceDTO struct {
	PaymentID   string          `json:"payment_id"`
	Address     string          `json:"address"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	At          InstantDTO      `json:"at"`
}

// OccurrenceKeyDTO names one occurrence in pay/forget requests.
type OccurrenceKeyDTO struct {
	PaymentID string    `json:"payment_id"`
	At        time.Time `json:"at"`
}

// ResolveRequest is the body of pay and forget.
type ResolveRequest struct {
	Occurrences []OccurrenceKeyDTO `json:"occurrences"`
}

func (r ResolveRequest) keys() []payments.OccurrenceKey {
	out := make([]payments.OccurrenceKey, len(r.Occurrences))
	for i, o := range r.Occurrences {
		out[i] = payments.OccurrenceKey{PaymentID: o.PaymentID, At: o.At}
	}
	return out
}

// ResolvedDTO reports what pay/forget removed from one payment.
type ResolvedDTO struct {
	PaymentID string `json:"payment_id"`
	Count     int    `json:"count"`
}

func toResolvedDTOs(rs []payments.Resolution) []ResolvedDTO {
	out := make([]ResolvedDTO, len(rs))
	for i, r := range rs {
		out[i] = ResolvedDTO{PaymentID: r.Payment.ID, Count: r.Count()}
	}
	return out
}

// PayResponse carries what the host's send form needs.
type PayResponse struct {
	Total    decimal.Decimal `json:"total"`
	Payees   []string        `json:"payees"`
	Message  string          `json:"message"`
	Resolved []ResolvedDTO   `json:"resolved"`
}

// ForgetResponse lists forgotten occurrences per payment.
type ForgetResponse struct {
	Resolved []ResolvedDTO `json:"resolved"`
}

// ErrorResponse is returned for failed requests.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
