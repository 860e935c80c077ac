package gateway

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/livecap/livecap/internal/token"
)

type contextKey int

const claimsKey contextKey = iota

// sessionClaims returns the verified token claims stored by authMiddleware.
func sessionClaims(ctx context.Context) (token.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(token.Claims)
	return claims, ok
}

// authMiddleware enforces Bearer authentication on session endpoints.
// Verified claims are stored in the request context.
func (g *Gateway) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")

		// Browsers cannot set headers on websocket upgrades; accept the
		// token as a query parameter there.
		if !ok && r.URL.Path == "/live/ws" {
			if q := r.URL.Query().Get("token"); q != "" {
				raw, ok = q, true
			}
		}
		if !ok {
			writeError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}

		claims, err := g.signer.Verify(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

// adminMiddleware enforces the X-Admin-Key header on key management
// endpoints. Comparison is constant time.
func (g *Gateway) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.config.AdminKey == "" {
			writeError(w, http.StatusServiceUnavailable, "Admin API not configured")
			return
		}

		provided := r.Header.Get("X-Admin-Key")
		if provided == "" {
			writeError(w, http.StatusUnauthorized, "X-Admin-Key header required")
			return
		}

		if subtle.ConstantTimeCompare([]byte(g.config.AdminKey), []byte(provided)) != 1 {
			writeError(w, http.StatusForbidden, "Invalid admin key")
			return
		}

		next.ServeHTTP(w, r)
	})
}
