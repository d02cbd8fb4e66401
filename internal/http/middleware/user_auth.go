package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/wolfman30/clinicops/internal/auth"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// TokenVerifier resolves a bearer token to a principal.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (auth.Principal, error)
}

// RequireUser rejects requests without a valid bearer token and stores the
// principal in the request context. Websocket upgrades may pass the token as
// the access_token query parameter.
func RequireUser(verifier TokenVerifier, logger *logging.Logger) func(http.Handler) http.Handler {
	if verifier == nil {
		panic("middleware: token verifier required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				http.Error(w, `{"error": "missing authorization header"}`, http.StatusUnauthorized)
				return
			}
			principal, err := verifier.Verify(r.Context(), token)
			if err != nil {
				logger.Debug("rejected bearer token", "path", r.URL.Path, "error", err)
				http.Error(w, `{"error": "invalid token"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
		})
	}
}

// BearerToken extracts the token from the Authorization header or, for
// websocket upgrades, the access_token query parameter.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("access_token")
	}
	return ""
}
