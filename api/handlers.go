/*
handlers.go - HTTP API handlers for scheduled payments

PURPOSE:
  Exposes the clock controls, the payment sets of open wallets and the
  reconciliation trigger via REST API. Handles HTTP request/response and
  JSON serialization, and delegates to the clock and payments packages.

ENDPOINTS:
  Clock:
    GET    /api/clock                          Active clock state
    POST   /api/clock/real                     Switch to the real clock
    POST   /api/clock/fake                     Switch to a fake clock {speed}
    PUT    /api/clock/speed                    Change fake clock speed {speed}
    PUT    /api/clock/time                     Move the fake clock {now}
    POST   /api/clock/pause                    Hold the fake clock
    POST   /api/clock/resume                   Let the fake clock run

  Schedule:
    GET    /api/schedule/preview?when=&count=  Upcoming occurrences

  Wallets:
    GET    /api/wallets                        Open wallets
    POST   /api/wallets/{wallet}/open          Open and catch up
    DELETE /api/wallets/{wallet}               Close
    POST   /api/wallets/{wallet}/reconcile     Reconcile now

  Payments:
    GET    /api/wallets/{wallet}/payments      List
    POST   /api/wallets/{wallet}/payments      Create (factory JSON)
    GET    /api/wallets/{wallet}/payments/{id} Get
    PUT    /api/wallets/{wallet}/payments/{id} Update (factory JSON)
    DELETE /api/wallets/{wallet}/payments/{id} Delete

  Overdue:
    GET    /api/wallets/{wallet}/overdue        Pending occurrences
    POST   /api/wallets/{wallet}/overdue/pay    Pay occurrences
    POST   /api/wallets/{wallet}/overdue/forget Forget occurrences

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, unsupported speed
  - 404: Unknown payment or wallet not open
  - 409: Fake clock operation while the real clock is active
  - 500: Internal errors

SECURITY NOTE:
  No authentication. Bind to localhost or put it behind a proxy.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/warp/scheduled-payments/clock"
	"github.com/warp/scheduled-payments/factory"
	"github.com/warp/scheduled-payments/notify"
	"github.com/warp/scheduled-payments/payments"
	"github.com/warp/scheduled-payments/schedule"
)

const (
	defaultPreviewCount = 5
	maxPreviewCount     = 100
	maxBodyBytes        = 1 << 20
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Clock          *clock.Source
	Registry       *payments.Registry
	PaymentFactory *factory.PaymentFactory
	Bus            notify.Bus // optional; receives clock.changed events

	log zerolog.Logger
}

// NewHandler creates a new handler.
func NewHandler(src *clock.Source, reg *payments.Registry, bus notify.Bus, log zerolog.Logger) *Handler {
	return &Handler{
		Clock:          src,
		Registry:       reg,
		PaymentFactory: factory.NewPaymentFactory(),
		Bus:            bus,
		log:            log.With().Str("component", "api").Logger(),
	}
}

// location is where instants are displayed: the active clock's.
func (h *Handler) location() *time.Location {
	return h.Clock.Now().Location()
}

// =============================================================================
// CLOCK ENDPOINTS
// =============================================================================

// GetClock returns the active clock.
// GET /api/clock
func (h *Handler) GetClock(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toClockDTO(h.Clock.Status()))
}

// SwitchToReal makes the real clock active.
// POST /api/clock/real
func (h *Handler) SwitchToReal(w http.ResponseWriter, r *http.Request) {
	h.Clock.SwitchToReal()
	h.clockChanged(w)
}

// SwitchToFake makes a fake clock active at the requested speed.
// POST /api/clock/fake
func (h *Handler) SwitchToFake(w http.ResponseWriter, r *http.Request) {
	req := SpeedRequest{Speed: clock.SpeedSecond}
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	if err := h.Clock.SwitchToFake(req.Speed); err != nil {
		writeDomainError(w, err)
		return
	}
	h.clockChanged(w)
}

// SetSpeed changes the speed of the fake clock.
// PUT /api/clock/speed
func (h *Handler) SetSpeed(w http.ResponseWriter, r *http.Request) {
	var req SpeedRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.Clock.SetMultiplier(req.Speed); err != nil {
		writeDomainError(w, err)
		return
	}
	h.clockChanged(w)
}

// SetTime moves the fake clock.
// PUT /api/clock/time
func (h *Handler) SetTime(w http.ResponseWriter, r *http.Request) {
	var req SetTimeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Now.IsZero() {
		writeError(w, http.StatusBadRequest, "now is required", nil)
		return
	}
	if err := h.Clock.SetFakeTime(req.Now); err != nil {
		writeDomainError(w, err)
		return
	}
	h.clockChanged(w)
}

// PauseClock holds the fake clock.
// POST /api/clock/pause
func (h *Handler) PauseClock(w http.ResponseWriter, r *http.Request) {
	if err := h.Clock.Pause(); err != nil {
		writeDomainError(w, err)
		return
	}
	h.clockChanged(w)
}

// ResumeClock lets the fake clock run.
// POST /api/clock/resume
func (h *Handler) ResumeClock(w http.ResponseWriter, r *http.Request) {
	if err := h.Clock.Resume(); err != nil {
		writeDomainError(w, err)
		return
	}
	h.clockChanged(w)
}

func (h *Handler) clockChanged(w http.ResponseWriter) {
	st := h.Clock.Status()
	h.log.Info().Bool("real_time", st.RealTime).Float64("multiplier", st.Multiplier).
		Bool("paused", st.Paused).Time("now", st.Now).Msg("clock changed")
	if h.Bus != nil {
		h.Bus.Publish(notify.ClockEvent(notify.TypeClockChanged, st))
	}
	writeJSON(w, http.StatusOK, toClockDTO(st))
}

// =============================================================================
// SCHEDULE PREVIEW
// =============================================================================

// PreviewSchedule lists the next occurrences of a rule from the clock's now.
// GET /api/schedule/preview?when=WEEKDAY-1%20TIME-09:00&count=5
func (h *Handler) PreviewSchedule(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rule := schedule.FromText(q.Get("when"))
	if err := rule.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid schedule", err)
		return
	}

	count := defaultPreviewCount
	if raw := q.Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxPreviewCount {
			writeError(w, http.StatusBadRequest, "count must be between 1 and 100", err)
			return
		}
		count = n
	}

	from := h.Clock.Now()
	got, err := schedule.Estimate(rule, from, schedule.Bounds{MaxMatches: count})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dto := PreviewDTO{
		When:        rule.ToText(),
		Schedule:    rule.String(),
		From:        toInstant(from, from.Location()),
		Occurrences: make([]InstantDTO, len(got)),
	}
	for i, at := range got {
		dto.Occurrences[i] = toInstant(at, from.Location())
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// WALLET ENDPOINTS
// =============================================================================

// ListWallets returns the open wallets.
// GET /api/wallets
func (h *Handler) ListWallets(w http.ResponseWriter, r *http.Request) {
	dtos := []WalletDTO{}
	for _, name := range h.Registry.Wallets() {
		set, err := h.Registry.Get(name)
		if err != nil {
			continue // closed meanwhile
		}
		dtos = append(dtos, toWalletDTO(set))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// OpenWallet loads a wallet and reconciles it at the clock's now.
// POST /api/wallets/{wallet}/open
func (h *Handler) OpenWallet(w http.ResponseWriter, r *http.Request) {
	set, report, err := h.Registry.Open(r.Context(), chi.URLParam(r, "wallet"))
	if err != nil && set == nil {
		writeDomainError(w, err)
		return
	}
	if err != nil {
		h.log.Warn().Err(err).Str("wallet", set.Wallet()).Msg("catch-up reconciliation incomplete")
	}
	writeJSON(w, http.StatusOK, OpenWalletResponse{
		WalletDTO: toWalletDTO(set),
		Report:    toDueReportDTO(report, h.location()),
	})
}

// CloseWallet stops monitoring a wallet.
// DELETE /api/wallets/{wallet}
func (h *Handler) CloseWallet(w http.ResponseWriter, r *http.Request) {
	if err := h.Registry.Close(chi.URLParam(r, "wallet")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReconcileWallet runs a reconciliation pass now.
// POST /api/wallets/{wallet}/reconcile
func (h *Handler) ReconcileWallet(w http.ResponseWriter, r *http.Request) {
	now := h.Clock.Now()
	report, err := h.Registry.Process(r.Context(), chi.URLParam(r, "wallet"), now)
	if err != nil && report.Wallet == "" {
		writeDomainError(w, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Reconciliation incomplete", err)
		return
	}
	writeJSON(w, http.StatusOK, toDueReportDTO(report, now.Location()))
}

// =============================================================================
// PAYMENT ENDPOINTS
// =============================================================================

// ListPayments returns a wallet's payments in creation order.
// GET /api/wallets/{wallet}/payments
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	set, ok := h.openSet(w, r)
	if !ok {
		return
	}
	loc := h.location()
	list := set.List()
	dtos := make([]PaymentDTO, len(list))
	for i, p := range list {
		dtos[i] = toPaymentDTO(p, loc)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPayment returns one payment.
// GET /api/wallets/{wallet}/payments/{id}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	set, ok := h.openSet(w, r)
	if !ok {
		return
	}
	p, err := set.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(p, h.location()))
}

// CreatePayment adds a payment from a factory JSON definition.
// POST /api/wallets/{wallet}/payments
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	h.savePayment(w, r, "", http.StatusCreated)
}

// UpdatePayment replaces a payment's definition; its history is kept.
// PUT /api/wallets/{wallet}/payments/{id}
func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	h.savePayment(w, r, chi.URLParam(r, "id"), http.StatusOK)
}

func (h *Handler) savePayment(w http.ResponseWriter, r *http.Request, id string, status int) {
	set, ok := h.openSet(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	p, err := h.PaymentFactory.ParsePayment(string(body))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	p.ID = id

	now := h.Clock.Now()
	saved, err := set.Save(r.Context(), p, now)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.log.Info().Str("wallet", set.Wallet()).Str("payment", saved.ID).
		Str("when", saved.When.ToText()).Bool("created", id == "").Msg("payment saved")
	writeJSON(w, status, toPaymentDTO(saved, now.Location()))
}

// DeletePayment removes a payment and its pending occurrences.
// DELETE /api/wallets/{wallet}/payments/{id}
func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	set, ok := h.openSet(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	n, err := set.Delete(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "Payment not found", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// OVERDUE ENDPOINTS
// =============================================================================

// ListOverdue returns pending occurrences, oldest first.
// GET /api/wallets/{wallet}/overdue
func (h *Handler) ListOverdue(w http.ResponseWriter, r *http.Request) {
	set, ok := h.openSet(w, r)
	if !ok {
		return
	}
	loc := h.location()
	occ := set.Overdue()
	dtos := make([]OccurrenceDTO, len(occ))
	for i, o := range occ {
		dtos[i] = OccurrenceDTO{
			PaymentID:   o.Payment.ID,
			Address:     o.Payment.Address,
			Amount:      o.Payment.Amount,
			Description: o.Payment.Description,
			At:          toInstant(o.At, loc),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PayOverdue resolves occurrences as paid and returns the send form data.
// POST /api/wallets/{wallet}/overdue/pay
func (h *Handler) PayOverdue(w http.ResponseWriter, r *http.Request) {
	set, req, ok := h.resolveRequest(w, r)
	if !ok {
		return
	}
	pay, err := set.Pay(r.Context(), req.keys())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if len(pay.Resolutions) == 0 {
		writeError(w, http.StatusNotFound, "No matching overdue occurrences", nil)
		return
	}
	resp := PayResponse{
		Total:    pay.Total,
		Payees:   pay.Payees,
		Message:  pay.Message,
		Resolved: toResolvedDTOs(pay.Resolutions),
	}
	writeJSON(w, http.StatusOK, resp)
}

// ForgetOverdue drops occurrences without paying them.
// POST /api/wallets/{wallet}/overdue/forget
func (h *Handler) ForgetOverdue(w http.ResponseWriter, r *http.Request) {
	set, req, ok := h.resolveRequest(w, r)
	if !ok {
		return
	}
	resolved, err := set.Forget(r.Context(), req.keys())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ForgetResponse{Resolved: toResolvedDTOs(resolved)})
}

func (h *Handler) resolveRequest(w http.ResponseWriter, r *http.Request) (*payments.Set, ResolveRequest, bool) {
	var req ResolveRequest
	set, ok := h.openSet(w, r)
	if !ok {
		return nil, req, false
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return nil, req, false
	}
	if len(req.Occurrences) == 0 {
		writeError(w, http.StatusBadRequest, "At least one occurrence is required", nil)
		return nil, req, false
	}
	return set, req, true
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) openSet(w http.ResponseWriter, r *http.Request) (*payments.Set, bool) {
	set, err := h.Registry.Get(chi.URLParam(r, "wallet"))
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	return set, true
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps package errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case payments.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid payment", err)
	case payments.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, clock.ErrUnsupportedMultiplier):
		writeError(w, http.StatusBadRequest, "Unsupported speed", err)
	case errors.Is(err, clock.ErrRealClock):
		writeError(w, http.StatusConflict, "Real clock is active", err)
	case errors.Is(err, schedule.ErrInvalidRule), errors.Is(err, schedule.ErrEmptyRule):
		writeError(w, http.StatusBadRequest, "Invalid schedule", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
