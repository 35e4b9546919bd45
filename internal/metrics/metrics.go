// Package metrics exposes Prometheus counters for the poller, the refresh
// pipeline and upstream tracker requests.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Poll results
const (
	PollOK       = "ok"
	PollSkipped  = "skipped"
	PollFailed   = "failed"
	PollOverlap  = "overlap"
	RefreshOK    = "ok"
	RefreshStale = "stale"
	RefreshError = "error"
)

var (
	// pollsTotal counts poll cycles by outcome.
	// Labels: result (ok, skipped, failed, overlap)
	pollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stepview",
		Subsystem: "alerts",
		Name:      "polls_total",
		Help:      "Total poll cycles by result",
	}, []string{"result"})

	newItemsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stepview",
		Subsystem: "alerts",
		Name:      "new_items_total",
		Help:      "Total alert items created by polling",
	})

	pollSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "stepview",
		Subsystem: "alerts",
		Name:      "poll_seconds",
		Help:      "Duration of completed poll cycles",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	// refreshTotal counts related-issue refreshes.
	// Labels: result (ok, stale, error)
	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stepview",
		Name:      "refresh_total",
		Help:      "Total related-issue refreshes by result",
	}, []string{"result"})

	// upstreamRequestsTotal counts tracker requests.
	// Labels: op (issue, search), code (HTTP status, 0 for transport errors)
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stepview",
		Name:      "upstream_requests_total",
		Help:      "Total tracker requests by operation and status code",
	}, []string{"op", "code"})
)

// RecordPoll records one poll cycle.
func RecordPoll(result string, newItems int, durationSec float64) {
	pollsTotal.WithLabelValues(result).Inc()
	if newItems > 0 {
		newItemsTotal.Add(float64(newItems))
	}
	if result == PollOK {
		pollSeconds.Observe(durationSec)
	}
}

// RecordRefresh records one refresh outcome
func RecordRefresh(result string) {
	refreshTotal.WithLabelValues(result).Inc()
}

// RecordUpstream records a tracker request
func RecordUpstream(op string, statusCode int) {
	upstreamRequestsTotal.WithLabelValues(op, strconv.Itoa(statusCode)).Inc()
}
