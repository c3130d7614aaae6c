/*
Package health implements the liveness checks burrow debounces before acting.

Two checkers are provided:

  - GatewayChecker asks a storage gateway for its info and reports it
    unhealthy when the call fails or the gateway is not running
  - HTTPChecker probes an HTTP endpoint; the daemon points it at the node
    agent's /health route and feeds the result to the readiness registry

# Debouncing

Status accumulates results. A success marks the target healthy at once; a
failure only counts after Config.StartPeriod has elapsed, and the target is
marked unhealthy once Config.Retries consecutive failures have been seen.
Retries below 1 are treated as 1, so by default a single failed check is
enough, matching an immediate response to a lost gateway.
*/
package health
