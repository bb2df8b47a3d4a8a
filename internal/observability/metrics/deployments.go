package metrics

import "time"

// Deployment records the outcome of a deployment on a network.
func Deployment(network, status string) {
	if !enabled {
		return
	}
	deploymentsTotal.WithLabelValues(network, status).Inc()
}

// Confirmation records how long a deployment took to confirm.
func Confirmation(network string, d time.Duration) {
	if !enabled {
		return
	}
	confirmationDuration.WithLabelValues(network).Observe(d.Seconds())
}

// Verification records the outcome of a verification attempt.
func Verification(provider, status string) {
	if !enabled {
		return
	}
	verificationsTotal.WithLabelValues(provider, status).Inc()
}

// HistoryRecord records a write to the deployment history.
func HistoryRecord(operation, status string) {
	if !enabled {
		return
	}
	historyRecordTotal.WithLabelValues(operation, status).Inc()
}
