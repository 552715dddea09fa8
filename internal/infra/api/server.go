package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"sme-compliance/internal/domain/model"
	"sme-compliance/internal/usecase"
)

// ReminderRunner triggers one reminder sweep.
type ReminderRunner interface {
	RunOnce(ctx context.Context) (usecase.ReminderStats, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Options struct {
	CallbackSecretHeader string
	CronSecret           string
	AllowedOrigins       []string
	RequestTimeout       time.Duration
	Dev                  bool
}

type Server struct {
	payments     usecase.PaymentUseCase
	reconcile    usecase.ReconcileUseCase
	verifier     *usecase.CallbackVerifier
	credits      usecase.CreditUseCase
	entitlements usecase.EntitlementUseCase
	reminders    ReminderRunner
	audit        *usecase.Auditor
	auth         *Authenticator
	health       map[string]HealthCheck
	opts         Options
	log          *zerolog.Logger
}

type Deps struct {
	Payments     usecase.PaymentUseCase
	Reconcile    usecase.ReconcileUseCase
	Verifier     *usecase.CallbackVerifier
	Credits      usecase.CreditUseCase
	Entitlements usecase.EntitlementUseCase
	Reminders    ReminderRunner
	Audit        *usecase.Auditor
	Auth         *Authenticator
	Health       map[string]HealthCheck
}

func NewServer(d Deps, opts Options, logger *zerolog.Logger) *Server {
	if opts.CallbackSecretHeader == "" {
		opts.CallbackSecretHeader = "X-Mpesa-Callback-Secret"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	l := logger.With().Str("component", "api").Logger()
	return &Server{
		payments:     d.Payments,
		reconcile:    d.Reconcile,
		verifier:     d.Verifier,
		credits:      d.Credits,
		entitlements: d.Entitlements,
		reminders:    d.Reminders,
		audit:        d.Audit,
		auth:         d.Auth,
		health:       d.Health,
		opts:         opts,
		log:          &l,
	}
}

// Router builds the full route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(TraceID())
	r.Use(RequestLog(s.log))
	r.Use(Recover(s.log))
	r.Use(Timeout(s.opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(v1 chi.Router) {
		// gateway-facing; trust comes from the callback verifier, not a session
		v1.Post("/payments/mpesa/callback", s.handleCallback)
		v1.Post("/cron/reminders", s.handleCronReminders)

		v1.Group(func(u chi.Router) {
			u.Use(s.auth.RequireUser)
			u.Post("/payments/mpesa/stk-push", s.handleSTKPush)
			u.Get("/payments/{id}", s.handleGetPayment)
			u.Get("/credits", s.handleGetCredits)
			u.Post("/credits", s.handlePostCredits)
			u.Get("/entitlements", s.handleEntitlements)

			u.Route("/payroll", func(p chi.Router) {
				p.Use(s.requireFeature(model.FeaturePayroll))
				p.Post("/calculate", s.handlePayrollCalculate)
				p.Post("/verify", s.handlePayrollVerify)
			})
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.health))
	for name, check := range s.health {
		if err := check(ctx); err != nil {
			checks[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	body := map[string]any{"status": "ok", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	writeJSON(w, status, body)
}
