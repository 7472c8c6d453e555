// Package degraded decides whether upstream lookups are failing often enough
// to report the service as degraded.
package degraded

import (
	"time"

	"github.com/kjstillabower/weather-lookup-service/internal/traffic"
)

// RecordSuccess records a lookup whose upstream calls completed.
func RecordSuccess() {
	traffic.Record(traffic.OutcomeSuccess)
}

// RecordError records a lookup that failed on the network or upstream status.
func RecordError() {
	traffic.Record(traffic.OutcomeError)
}

// ErrorRate returns (errorCount, totalCount) within the window. totalCount = successes + errors.
func ErrorRate(window time.Duration) (errors, total int) {
	return traffic.ErrorRate(window)
}

// Breached reports whether the error percentage within window reaches thresholdPct.
// A zero window or threshold disables the check; an empty window is never breached.
func Breached(window time.Duration, thresholdPct int) bool {
	if window <= 0 || thresholdPct <= 0 {
		return false
	}
	errs, total := ErrorRate(window)
	if total == 0 {
		return false
	}
	return float64(errs)*100/float64(total) >= float64(thresholdPct)
}

// Reset clears all recorded data. For tests only.
func Reset() {
	traffic.Reset()
}
