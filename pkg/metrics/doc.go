/*
Package metrics defines burrow's Prometheus metrics and its health registry.

Metrics are package-level collectors registered in init and exposed by
Handler on /metrics:

	burrow_placements_total{phase,result}
	burrow_placement_duration_seconds
	burrow_backends_created_total
	burrow_allocations_total
	burrow_reservations_total{result}
	burrow_pool_members{pool}
	burrow_leases_total{pool,state}
	burrow_failover_actions_total{pair,action}
	burrow_shard_failures_total{category,side}
	burrow_gateway_pairs_total
	burrow_recurring_runs_total{action,result}
	burrow_recurring_duration_seconds{action}
	burrow_api_requests_total{route,status}

Collector refreshes the state gauges from the store; the daemon runs it as a
recurring action and marks storage unhealthy when the store cannot be read.
Timer measures durations into histograms.

# Health registry

Components report themselves with SetComponent. HealthHandler, ReadyHandler
and LivenessHandler serve /health, /ready and /live from the default
Registry. Storage and api are required: readiness is not_ready (503) until
both report healthy. The node agent is optional: when its probe fails the
daemon stays ready but reports degraded, since stored pools, leases and
allocations can still be served.
*/
package metrics
