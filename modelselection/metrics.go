package modelselection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for Grid Search
// =============================================================================

// Fit outcome label values.
const (
	outcomeOK       = "ok"
	outcomeFailed   = "failed"
	outcomeCanceled = "canceled"
)

var (
	// searchFits counts individual cross-validation and refit fits.
	// Labels: outcome (ok, failed, canceled)
	searchFits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridtrack",
		Subsystem: "search",
		Name:      "fits_total",
		Help:      "Total estimator fits performed by grid search",
	}, []string{"outcome"})

	// searchFitDuration measures the time to fit and score one fold.
	searchFitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gridtrack",
		Subsystem: "search",
		Name:      "fit_duration_seconds",
		Help:      "Time to fit and score one candidate on one fold",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	// searchCandidates records the size of the last grid searched.
	searchCandidates = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gridtrack",
		Subsystem: "search",
		Name:      "candidates",
		Help:      "Number of hyperparameter combinations in the last grid search",
	})

	// searchBestScore records the best mean cross-validation score of the last search.
	searchBestScore = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gridtrack",
		Subsystem: "search",
		Name:      "best_score",
		Help:      "Best mean cross-validation score of the last grid search",
	})
)
