package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Entity metrics
	ClustersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "corral_clusters_total",
			Help: "Total number of clusters by status",
		},
		[]string{"status"},
	)

	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "corral_nodes_total",
			Help: "Total number of nodes by status",
		},
		[]string{"status"},
	)

	// Action metrics
	ActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corral_actions_total",
			Help: "Total number of actions executed by verb and terminal status",
		},
		[]string{"verb", "status"},
	)

	ActionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "corral_action_duration_seconds",
			Help:    "Action execution duration in seconds by verb",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"verb"},
	)

	ActionsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "corral_actions_in_flight",
			Help: "Number of actions currently executing",
		},
	)

	// Lock metrics
	LockFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corral_lock_failures_total",
			Help: "Total number of failed lock acquisitions by scope",
		},
		[]string{"scope"},
	)

	LockEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "corral_lock_evictions_total",
			Help: "Total number of forced lock takeovers",
		},
	)

	// Policy metrics
	PolicyCheckFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corral_policy_check_failures_total",
			Help: "Total number of CHECK_FAILED policy results by phase",
		},
		[]string{"phase"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ClustersTotal)
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(ActionsTotal)
	prometheus.MustRegister(ActionDuration)
	prometheus.MustRegister(ActionsInFlight)
	prometheus.MustRegister(LockFailures)
	prometheus.MustRegister(LockEvictions)
	prometheus.MustRegister(PolicyCheckFailures)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
