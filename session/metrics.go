package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	logins          *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	restores        *prometheus.CounterVec
	logouts         *prometheus.CounterVec
	authenticated   prometheus.Gauge
	refreshDuration prometheus.Histogram
}

// newMetrics builds the collectors. A nil registerer leaves them unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		logins: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_session_logins_total",
				Help: "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
		refreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_session_refreshes_total",
				Help: "Token refreshes by outcome",
			},
			[]string{"outcome"},
		),
		restores: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_session_restores_total",
				Help: "Session restores at startup by outcome",
			},
			[]string{"outcome"},
		),
		logouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_session_logouts_total",
				Help: "Ended sessions by reason",
			},
			[]string{"reason"},
		),
		authenticated: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "portal_session_authenticated",
				Help: "1 while the session holds a token pair",
			},
		),
		refreshDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "portal_session_refresh_duration_seconds",
				Help:    "Latency of refresh round trips",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15},
			},
		),
	}
}

// Refresh outcomes.
const (
	outcomeSuccess   = "success"
	outcomeAdopted   = "adopted"
	outcomeTransient = "transient_failure"
	outcomeFailure   = "failure"
	outcomeSkipped   = "skipped"
	outcomeStale     = "stale"
)
