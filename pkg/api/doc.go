/*
Package api serves burrow's HTTP API.

The server is a chi router over the placement planner, the reservation
service, the failover manager and the scheduler. Request and response bodies
are JSON.

# Routes

	GET    /health /ready /live /metrics

	GET    /api/v1/namespaces
	POST   /api/v1/namespaces
	POST   /api/v1/namespaces/shards
	DELETE /api/v1/namespaces/{backend}/{namespace}
	GET    /api/v1/mountpath?class=&size=

	GET    /api/v1/pools
	POST   /api/v1/pools
	GET    /api/v1/pools/{pool}
	DELETE /api/v1/pools/{pool}
	POST   /api/v1/pools/{pool}/members
	DELETE /api/v1/pools/{pool}/members/{host}
	POST   /api/v1/pools/{pool}/validate
	GET    /api/v1/pools/{pool}/unreserved?caller=

	GET    /api/v1/leases
	POST   /api/v1/leases
	GET    /api/v1/leases/{lease}
	DELETE /api/v1/leases/{lease}
	POST   /api/v1/leases/{lease}/install
	POST   /api/v1/leases/{lease}/uninstall
	POST   /api/v1/leases/{lease}/monitor
	GET    /api/v1/leases/{lease}/power
	POST   /api/v1/leases/{lease}/power/{on,off,cycle}
	PUT    /api/v1/leases/{lease}/boot

	GET    /api/v1/gateways
	POST   /api/v1/gateways
	GET    /api/v1/gateways/{pair}
	DELETE /api/v1/gateways/{pair}
	POST   /api/v1/gateways/{pair}/tick
	POST   /api/v1/gateways/{pair}/shards/monitor

	GET    /api/v1/actions
	POST   /api/v1/actions/{name}/run

# Errors

Failures answer with an ErrorResponse carrying the message and the wire name
of the error kind. Kinds map to statuses as follows:

	validation, duplicate-member              400
	not-found                                 404
	no-namespace-availability, no-free-hosts,
	already-present, state-check              409
	service-not-installed,
	invalid-backing-service                   422
	remote-call                               502

Anything else is a 500 and is logged.

# Read-only mode

With Config.ReadOnly set, the /api/v1 routes reject every method other than
GET, HEAD and OPTIONS with 403. Probes and metrics stay reachable.
*/
package api
