package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	importRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "institution",
		Subsystem: "import",
		Name:      "rows_total",
		Help:      "Total number of imported CSV rows broken down by outcome.",
	}, []string{"outcome"})

	importMatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "institution",
		Subsystem: "import",
		Name:      "matches_total",
		Help:      "Total number of matching decisions broken down by match type.",
	}, []string{"match_type"})

	importDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "institution",
		Subsystem: "import",
		Name:      "duration_seconds",
		Help:      "Wall time of whole import runs.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"mode"})

	referenceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "institution",
		Subsystem: "import",
		Name:      "reference_failures_total",
		Help:      "Total number of failed external reference lookups broken down by operation.",
	}, []string{"operation"})
)

func recordRowOutcome(status RowStatus) {
	importRows.WithLabelValues(string(status)).Inc()
}

func recordMatch(t MatchType) {
	if t == "" {
		t = MatchNone
	}
	importMatches.WithLabelValues(string(t)).Inc()
}

func recordImportDuration(validateOnly bool, d time.Duration) {
	mode := "import"
	if validateOnly {
		mode = "validate"
	}
	importDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func recordReferenceFailure(operation string) {
	referenceFailures.WithLabelValues(operation).Inc()
}
