/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     zerolog request log (method, path, status, duration, id)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for a browser control surface

ROUTE GROUPS:
  /api/clock/*       Clock control
  /api/schedule/*    Schedule preview
  /api/wallets/*     Open wallets, payments, overdue occurrences

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// DefaultCORSOrigins are allowed when no origins are configured.
var DefaultCORSOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, origins []string) *chi.Mux {
	if len(origins) == 0 {
		origins = DefaultCORSOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Clock routes
		r.Route("/clock", func(r chi.Router) {
			r.Get("/", h.GetClock)
			r.Post("/real", h.SwitchToReal)
			r.Post("/fake", h.SwitchToFake)
			r.Put("/speed", h.SetSpeed)
			r.Put("/time", h.SetTime)
			r.Post("/pause", h.PauseClock)
			r.Post("/resume", h.ResumeClock)
		})

		r.Get("/schedule/preview", h.PreviewSchedule)

		// Wallet routes
		r.Route("/wallets", func(r chi.Router) {
			r.Get("/", h.ListWallets)
			r.Route("/{wallet}", func(r chi.Router) {
				r.Post("/open", h.OpenWallet)
				r.Delete("/", h.CloseWallet)
				r.Post("/reconcile", h.ReconcileWallet)

				r.Route("/payments", func(r chi.Router) {
					r.Get("/", h.ListPayments)
					r.Post("/", h.CreatePayment)
					r.Get("/{id}", h.GetPayment)
					r.Put("/{id}", h.UpdatePayment)
					r.Delete("/{id}", h.DeletePayment)
				})

				r.Route("/overdue", func(r chi.Router) {
					r.Get("/", h.ListOverdue)
					r.Post("/pay", h.PayOverdue)
					r.Post("/forget", h.ForgetOverdue)
				})
			})
		})
	})

	return r
}

// requestLogger logs one line per request.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				ev := log.Info()
				if status >= http.StatusInternalServerError {
					ev = log.Error()
				}
				ev.Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", status).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Str("request_id", middleware.GetReqID(r.Context())).
					Msg("http request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
