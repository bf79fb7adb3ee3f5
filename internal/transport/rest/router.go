package rest

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/sacco-management/internal/auth"
	"github.com/frahmantamala/sacco-management/internal/eligibility"
	"github.com/frahmantamala/sacco-management/internal/loan"
	"github.com/frahmantamala/sacco-management/internal/payment"
	"github.com/frahmantamala/sacco-management/internal/savings"
	"github.com/frahmantamala/sacco-management/internal/transport"
	"github.com/frahmantamala/sacco-management/internal/transport/middleware"
	"github.com/frahmantamala/sacco-management/internal/transport/swagger"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/jmoiron/sqlx"
)

const (
	APIPrefix    = "/api/v1"
	CallbackPath = APIPrefix + "/payments/callback"
)

// Handlers groups everything the router mounts. Nil handlers leave their
// routes unmounted.
type Handlers struct {
	Auth        *auth.Middleware
	Payment     *payment.Handler
	Webhook     *payment.WebhookHandler
	Loan        *loan.Handler
	Savings     *savings.Handler
	Eligibility *eligibility.Handler
}

type RouterOptions struct {
	AllowedOrigins string
	OpenAPI        *openapi3.T
	OpenAPISpec    []byte
}

func RegisterAllRoutes(router *chi.Mux, db *sqlx.DB, h Handlers, opts RouterOptions, logger *slog.Logger) error {
	base := transport.NewBaseHandler(logger)
	health := NewHealthHandler(base, db)

	router.Use(middleware.CORS(opts.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.Recovery(base))
	router.Use(middleware.Logging)

	if opts.OpenAPISpec != nil {
		router.Get(swagger.SpecPath, swagger.SpecHandler(opts.OpenAPISpec))
		router.Handle("/swagger/*", swagger.Handler())
	}

	var validate func(next http.Handler) http.Handler
	if opts.OpenAPI != nil {
		v, err := middleware.RequestValidator(base, opts.OpenAPI, CallbackPath)
		if err != nil {
			return err
		}
		validate = v
	}

	router.Route(APIPrefix, func(r chi.Router) {
		r.Get("/ping", health.Ping)
		r.Get("/health", health.Health)

		// The gateway authenticates with the callback token, never a bearer.
		if h.Webhook != nil {
			r.Post("/payments/callback", h.Webhook.HandleCallback)
		}

		if h.Auth == nil {
			return
		}

		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.Authenticate)
			if validate != nil {
				pr.Use(validate)
			}

			ownsVehicle := h.Auth.RequireVehicleAccess(db, "vehicle_id")
			operatorOnly := h.Auth.RequireRole(auth.RoleOperator)
			memberOnly := h.Auth.RequireRole(auth.RoleMember)

			if h.Payment != nil {
				pr.With(memberOnly).Post("/payments/stk-push", h.Payment.InitiatePayment)
				pr.Get("/payments/transactions/{correlation_id}", h.Payment.GetTransaction)
				pr.With(operatorOnly).Post("/payments/transactions/{correlation_id}/reconcile", h.Payment.Reconcile)
				pr.With(ownsVehicle).Get("/vehicles/{vehicle_id}/payments", h.Payment.ListByVehicle)
			}

			if h.Savings != nil {
				pr.With(ownsVehicle).Get("/vehicles/{vehicle_id}/savings", h.Savings.ListByVehicle)
			}

			if h.Loan != nil {
				pr.With(ownsVehicle).Get("/vehicles/{vehicle_id}/loans", h.Loan.ListByVehicle)
				pr.With(memberOnly).Post("/loans", h.Loan.Apply)
				pr.With(operatorOnly).Patch("/loans/{loan_id}/approve", h.Loan.Approve)
			}

			if h.Eligibility != nil {
				pr.With(h.Auth.RequireMemberAccess("member_id")).
					Get("/members/{member_id}/vehicles/{vehicle_id}/eligibility", h.Eligibility.GetEligibility)
			}
		})
	})

	return nil
}
