package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GatewayCallsTotal counts remote calls by resource, operation and outcome.
	GatewayCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casesync_gateway_calls_total",
			Help: "Total number of remote gateway calls",
		},
		[]string{"resource", "op", "outcome"},
	)

	// GatewayCallDuration observes remote call latency.
	GatewayCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "casesync_gateway_call_duration_seconds",
			Help:    "Duration of remote gateway calls",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"resource", "op"},
	)

	// LocalWritesTotal counts local mutations applied by the pipeline.
	LocalWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casesync_local_writes_total",
			Help: "Total number of local create/update/delete operations",
		},
		[]string{"resource", "op"},
	)

	// MergesTotal counts merge attempts by outcome.
	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casesync_merges_total",
			Help: "Total number of remote snapshot merges",
		},
		[]string{"resource", "outcome"},
	)

	// ActiveSessions tracks activated owners per resource.
	ActiveSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "casesync_active_sessions",
			Help: "Current number of active owner sessions",
		},
		[]string{"resource"},
	)
)
