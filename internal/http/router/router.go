package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/health"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/http/handler"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/http/middleware"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/http/response"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/security"
)

type Dependencies struct {
	QRHandler          *handler.QRHandler
	InviteHandler      *handler.InviteHandler
	RoleBindingHandler *handler.RoleBindingHandler
	UserHandler        *handler.UserHandler
	JWTManager         *security.JWTManager
	Logger             *slog.Logger
	APIRateLimitRPM    int
	QRRateLimitRPM     int
	RedeemRateLimitRPM int
	Readiness          *health.ProbeRunner
	EnableOTelHTTP     bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger(dep.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.BodyLimit(1 << 20))
	r.Use(middleware.RateLimit("api", dep.APIRateLimitRPM))

	qrLimiter := middleware.RateLimit("qr", dep.QRRateLimitRPM)
	redeemLimiter := middleware.RateLimit("redeem", dep.RedeemRateLimitRPM)
	requireAuth := middleware.AuthMiddleware(dep.JWTManager)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth/qr", func(r chi.Router) {
			r.Use(qrLimiter)
			r.With(middleware.OptionalAuthMiddleware(dep.JWTManager)).Post("/init", dep.QRHandler.Init)
			r.Get("/{session_id}/status", dep.QRHandler.Status)
			r.With(requireAuth).Post("/parse", dep.QRHandler.Parse)
			r.With(requireAuth).Post("/approve", dep.QRHandler.Approve)
			r.Post("/consume", dep.QRHandler.Consume)
		})

		r.Route("/invites", func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/", dep.InviteHandler.Create)
			r.Get("/", dep.InviteHandler.List)
			r.With(redeemLimiter).Post("/redeem", dep.InviteHandler.Redeem)
			r.Post("/{invite_id}/revoke", dep.InviteHandler.Revoke)
			r.Get("/{invite_id}/image", dep.InviteHandler.Image)
		})

		r.Route("/role-bindings", func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/", dep.RoleBindingHandler.Add)
			r.Get("/", dep.RoleBindingHandler.List)
			r.Post("/{binding_id}/revoke", dep.RoleBindingHandler.Revoke)
		})

		r.With(requireAuth).Get("/me", dep.UserHandler.Me)
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
