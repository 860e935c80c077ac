package gateway

import (
	"net/http"
	"strings"
)

const (
	allowedMethods        = "GET, POST, DELETE, PATCH, OPTIONS"
	allowedHeaders        = "Content-Type, Authorization, X-Admin-Key"
	allowedSessionHeaders = "Content-Type, Authorization"
)

// corsMiddleware applies session-aware CORS:
//
//   - /keys endpoints never get CORS headers; they are server-side only.
//   - POST /live and GET /health are open to any origin, so a page can
//     register before any session exists.
//   - Everything else allows an origin only while it has an active session.
//
// Unmatched origins get no CORS headers at all and the browser blocks
// the response.
func (g *Gateway) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		path := r.URL.Path

		if strings.HasPrefix(path, "/keys") {
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		if r.Method == http.MethodOptions {
			g.handlePreflight(w, r, origin, path)
			return
		}

		if origin != "" {
			if isPermissiveRoute(r.Method, path) {
				setCORSHeaders(w, origin, allowedHeaders)
			} else if len(g.sessions.GetByDomain(origin)) > 0 {
				setCORSHeaders(w, origin, allowedSessionHeaders)
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) handlePreflight(w http.ResponseWriter, r *http.Request, origin, path string) {
	if origin != "" {
		// The preflight asks permission for the real method, not OPTIONS.
		requested := r.Header.Get("Access-Control-Request-Method")
		if isPermissiveRoute(requested, path) || len(g.sessions.GetByDomain(origin)) > 0 {
			setCORSHeaders(w, origin, allowedHeaders)
		} else {
			w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
			w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func setCORSHeaders(w http.ResponseWriter, origin, headers string) {
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
	w.Header().Set("Access-Control-Allow-Headers", headers)
	w.Header().Set("Access-Control-Allow-Credentials", "true")
}

func isPermissiveRoute(method, path string) bool {
	return (method == http.MethodPost && path == "/live") ||
		(method == http.MethodGet && path == "/health")
}
