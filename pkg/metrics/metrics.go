package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Placement metrics
	PlacementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_placements_total",
			Help: "Total number of namespace placements by phase and result",
		},
		[]string{"phase", "result"},
	)

	PlacementDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_placement_duration_seconds",
			Help:    "Time taken to plan and create a namespace in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	BackendsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_backends_created_total",
			Help: "Total number of backends created on free disks",
		},
	)

	AllocationsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_allocations_total",
			Help: "Number of recorded namespace allocations",
		},
	)

	// Reservation metrics
	ReservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_reservations_total",
			Help: "Total number of host reservation attempts by result",
		},
		[]string{"result"},
	)

	PoolMembers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_pool_members",
			Help: "Number of hosts in each pool",
		},
		[]string{"pool"},
	)

	LeasesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_leases_total",
			Help: "Number of leases by pool and state",
		},
		[]string{"pool", "state"},
	)

	// Failover metrics
	FailoverActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_failover_actions_total",
			Help: "Total number of failover actions by gateway pair and action",
		},
		[]string{"pair", "action"},
	)

	ShardFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_shard_failures_total",
			Help: "Total number of detected shard failures by category and side",
		},
		[]string{"category", "side"},
	)

	GatewayPairs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_gateway_pairs_total",
			Help: "Number of managed gateway pairs",
		},
	)

	// Recurring action metrics
	RecurringRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_recurring_runs_total",
			Help: "Total number of recurring action runs by action and result",
		},
		[]string{"action", "result"},
	)

	RecurringDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_recurring_duration_seconds",
			Help:    "Recurring action duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(PlacementsTotal)
	prometheus.MustRegister(PlacementDuration)
	prometheus.MustRegister(BackendsCreated)
	prometheus.MustRegister(AllocationsTotal)
	prometheus.MustRegister(ReservationsTotal)
	prometheus.MustRegister(PoolMembers)
	prometheus.MustRegister(LeasesTotal)
	prometheus.MustRegister(FailoverActionsTotal)
	prometheus.MustRegister(ShardFailuresTotal)
	prometheus.MustRegister(GatewayPairs)
	prometheus.MustRegister(RecurringRunsTotal)
	prometheus.MustRegister(RecurringDuration)
	prometheus.MustRegister(APIRequestsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
