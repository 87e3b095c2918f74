package ws

import (
	"net/http"
	"strings"
)

// DefaultAllowedOrigin is used when no origins are configured.
const DefaultAllowedOrigin = "http://localhost:3000"

// NewOriginChecker returns a CheckOrigin function for a gorilla/websocket
// Upgrader that accepts the given origins, compared case-insensitively.
// Requests without an Origin header (non-browser clients) are accepted.
func NewOriginChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		allowed = []string{DefaultAllowedOrigin}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if strings.EqualFold(origin, a) {
				return true
			}
		}
		return false
	}
}
