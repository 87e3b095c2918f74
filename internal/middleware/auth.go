package middleware

import (
	"net/http"
	"strings"

	"github.com/darkden-lab/relay/internal/auth"
	"github.com/darkden-lab/relay/internal/httputil"
)

// BearerToken extracts the session token from the Authorization header, or
// from the `token` query parameter when allowQuery is set (browsers cannot
// set headers on WebSocket upgrades).
func BearerToken(r *http.Request, allowQuery bool) (string, bool) {
	if allowQuery {
		if token := r.URL.Query().Get("token"); token != "" {
			return token, true
		}
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// AuthMiddleware validates the session token and stores the viewer in the
// request context. WebSocket routes may pass the token as a query parameter.
func AuthMiddleware(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r, isWebSocketUpgrade(r))
			if !ok {
				httputil.WriteError(w, http.StatusUnauthorized, "missing or malformed authorization")
				return
			}

			claims, err := jwtService.ValidateToken(token)
			if err != nil {
				httputil.WriteError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := auth.ContextWithViewer(r.Context(), claims.Viewer())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
