package metrics

import "time"

// Application-level metric names
const (
	// Upstream latency, labelled by upstream (location, realtime)
	UpstreamRequestDuration = "upstream_request_duration_ms"

	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	ServerStartTime = "app_server_start_time_seconds"
)

// RecordUpstreamDuration records how long one public-data call took,
// including failed calls.
func RecordUpstreamDuration(upstream string, duration time.Duration) {
	histogram(UpstreamRequestDuration, duration, map[string]string{"upstream": upstream})
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	counter(HealthCheckTotal, map[string]string{"check": checkName, "status": status})
	histogram(HealthCheckDuration, duration, map[string]string{"check": checkName})
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	gauge(ServerStartTime, float64(timestamp), nil)
}
