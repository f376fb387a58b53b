package metrics

import (
	"strconv"
	"time"
)

// HTTP metric names
const (
	HTTPRequestsTotal   = "http_requests_total"
	HTTPRequestDuration = "http_request_duration_ms"
	HTTPResponseSize    = "http_response_size_bytes"
	HTTPErrorsTotal     = "http_errors_total"
)

// HTTPRequest is one completed request as seen by the metrics middleware.
type HTTPRequest struct {
	Method       string
	Endpoint     string
	Status       int
	Duration     time.Duration
	ResponseSize int64
}

// RecordHTTPRequest emits the per-request series. Endpoint must already be a
// low-cardinality route pattern.
func RecordHTTPRequest(req HTTPRequest) {
	labels := map[string]string{
		"method":   req.Method,
		"endpoint": req.Endpoint,
		"status":   strconv.Itoa(req.Status),
	}
	counter(HTTPRequestsTotal, labels)
	histogram(HTTPRequestDuration, req.Duration, labels)
	gauge(HTTPResponseSize, float64(req.ResponseSize), map[string]string{
		"method":   req.Method,
		"endpoint": req.Endpoint,
	})

	if req.Status < 400 {
		return
	}
	class := "client_error"
	if req.Status >= 500 {
		class = "server_error"
	}
	counter(HTTPErrorsTotal, map[string]string{
		"method":     req.Method,
		"endpoint":   req.Endpoint,
		"status":     labels["status"],
		"error_type": class,
	})
}
