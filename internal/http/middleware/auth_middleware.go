package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/http/response"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/observability"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/security"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/service"
)

type contextKey string

const (
	ClaimsContextKey contextKey = "claims"
)

// AuthMiddleware rejects requests without a valid bearer access token.
func AuthMiddleware(jwtMgr *security.JWTManager) func(http.Handler) http.Handler {
	return authenticate(jwtMgr, true)
}

// OptionalAuthMiddleware attaches claims when a valid bearer token is
// present and lets anonymous requests through. A token that is present but
// invalid is still rejected.
func OptionalAuthMiddleware(jwtMgr *security.JWTManager) func(http.Handler) http.Handler {
	return authenticate(jwtMgr, false)
}

func authenticate(jwtMgr *security.JWTManager, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				if !required {
					next.ServeHTTP(w, r)
					return
				}
				observability.RecordAccessTokenValidation(r.Context(), "missing", "none")
				response.Error(w, r, http.StatusUnauthorized, string(service.CodeUnauthorized), "missing access token", nil)
				return
			}
			claims, err := jwtMgr.ParseAccessToken(raw)
			if err != nil || claims.Subject == "" {
				observability.RecordAccessTokenValidation(r.Context(), "invalid", "bearer")
				response.Error(w, r, http.StatusUnauthorized, string(service.CodeUnauthorized), "invalid access token", nil)
				return
			}
			observability.RecordAccessTokenValidation(r.Context(), "valid", "bearer")
			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	c, ok := ctx.Value(ClaimsContextKey).(*security.Claims)
	return c, ok
}

// CallerFromContext returns the authenticated principal, or an anonymous
// caller when the request carried no token.
func CallerFromContext(ctx context.Context) service.Caller {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return service.Caller{}
	}
	return service.Caller{PrincipalID: claims.Subject}
}
