package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(g.tracingMiddleware)
	r.Use(g.loggingMiddleware)
	r.Use(g.corsMiddleware)

	// Public.
	r.Get("/health", g.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(g.metrics.registry, promhttp.HandlerOpts{}))
	r.Post("/live", g.handleRegister)

	// Session endpoints, bearer token required.
	r.Group(func(r chi.Router) {
		r.Use(g.authMiddleware)
		r.Get("/live", g.handleSessionStatus)
		r.Delete("/live", g.handleRemoveSession)
		r.Get("/live/ws", g.handleCaptionSocket)
		r.Post("/captions", g.handleCaptions)
		r.Post("/sync", g.handleSync)
	})

	// Admin key management, X-Admin-Key required, never CORS-exposed.
	r.Route("/keys", func(r chi.Router) {
		r.Use(g.adminMiddleware)
		r.Get("/", g.handleListKeys)
		r.Post("/", g.handleCreateKey)
		r.Get("/{key}", g.handleGetKey)
		r.Patch("/{key}", g.handleUpdateKey)
		r.Delete("/{key}", g.handleDeleteKey)
	})

	return r
}

// statusRecorder captures the response code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the hijacker for the
// websocket upgrade.
func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (g *Gateway) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		g.metrics.observeRequest(r.Method, routePattern(r), rec.status)
		g.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

func (g *Gateway) tracingMiddleware(next http.Handler) http.Handler {
	tracer := otel.Tracer("livecap/gateway")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			))
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", rec.status))
	})
}

// routePattern returns the chi route pattern so metrics are not exploded
// by per-key paths.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
