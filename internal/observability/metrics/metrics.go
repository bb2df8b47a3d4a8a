// Package metrics provides Prometheus instrumentation for contradeploy.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled  bool
	register sync.Once

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Deployment metrics
	deploymentsTotal     *prometheus.CounterVec
	confirmationDuration *prometheus.HistogramVec

	// Verification metrics
	verificationsTotal *prometheus.CounterVec

	// History metrics
	historyRecordTotal *prometheus.CounterVec
)

// Init initializes the metrics system. Collectors are registered once per
// process with svcName as their service label; later calls only toggle
// collection.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag

	if !enabled {
		return
	}

	register.Do(func() {
		service := prometheus.Labels{"service": svcName}

		// HTTP request counter
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: service,
			},
			[]string{"method", "path", "status"},
		)

		// HTTP request duration histogram
		httpDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: service,
			},
			[]string{"method", "path"},
		)

		deploymentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "contradeploy_deployments_total",
				Help:        "Total number of contract deployments by outcome",
				ConstLabels: service,
			},
			[]string{"network", "status"},
		)

		// Confirmations take from a few seconds on L2s to minutes on congested L1s
		confirmationDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "contradeploy_confirmation_duration_seconds",
				Help:        "Time from submission to confirmation of deployment transactions",
				Buckets:     []float64{1, 2, 5, 10, 15, 30, 60, 120, 300, 600},
				ConstLabels: service,
			},
			[]string{"network"},
		)

		verificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "contradeploy_verifications_total",
				Help:        "Total number of source verification attempts by outcome",
				ConstLabels: service,
			},
			[]string{"provider", "status"},
		)

		historyRecordTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "contradeploy_history_record_total",
				Help:        "Total number of deployment history writes",
				ConstLabels: service,
			},
			[]string{"operation", "status"},
		)
	})
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}
