package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ev119/erlocator/internal/metrics"
	"github.com/ev119/erlocator/internal/observability"
)

// statusRecorder remembers the status and body size written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int64
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	n, err := s.ResponseWriter.Write(b)
	s.size += int64(n)
	return n, err
}

// endpointLabel returns the chi route pattern for r. Unmatched requests fold
// into a few fixed labels to keep series cardinality bounded.
func endpointLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	path := r.URL.Path
	switch {
	case path == "/health" || strings.HasPrefix(path, "/health/"):
		return "/health/*"
	case strings.HasPrefix(path, "/api/emergency/"):
		return "/api/emergency/*"
	case path == "/version", path == "/metrics", path == "/":
		return path
	default:
		return "/unknown"
	}
}

// RequestMetrics records per-request telemetry and writes one access log
// line per request.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if observability.TelemetrySystem == nil && observability.ServerLogger == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		endpoint := endpointLabel(r)
		metrics.RecordHTTPRequest(metrics.HTTPRequest{
			Method:       r.Method,
			Endpoint:     endpoint,
			Status:       rec.status,
			Duration:     elapsed,
			ResponseSize: rec.size,
		})

		logger := observability.ServerLogger
		if logger == nil {
			return
		}
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("endpoint", endpoint),
			zap.Int("status", rec.status),
			zap.Duration("duration", elapsed),
			zap.Int64("response_size", rec.size),
			zap.String("request_id", GetRequestID(r.Context())),
		}
		if enrichment := rec.Header().Get("X-Capacity-Enrichment"); enrichment != "" {
			fields = append(fields, zap.String("enrichment", enrichment))
		}
		if strings.HasPrefix(endpoint, "/health") {
			logger.Debug("request served", fields...)
			return
		}
		logger.Info("request served", fields...)
	})
}
