// Package metrics emits the service's counters, histograms and gauges through
// the global gofulmen telemetry system. Every helper is a no-op until
// observability.InitMetrics has run.
package metrics

import (
	"time"

	"github.com/ev119/erlocator/internal/observability"
)

func counter(name string, labels map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Counter(name, 1, labels)
	}
}

func histogram(name string, d time.Duration, labels map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Histogram(name, d, labels)
	}
}

func gauge(name string, value float64, labels map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Gauge(name, value, labels)
	}
}
