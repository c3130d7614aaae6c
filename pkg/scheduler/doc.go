/*
Package scheduler runs burrow's recurring actions on cron schedules.

The failover tick, the shard monitor, the lease monitor and the metrics
collection are all plain functions; the scheduler is the only place that
decides when they run. Specs are parsed with robfig/cron's standard parser,
so both five-field expressions and descriptors such as "@every 30s" work.

Runs of one action never overlap. A run that comes due while the previous one
is still going is skipped and counted as such in
burrow_recurring_runs_total. RunOnce triggers an action immediately from the
API and fails with types.ErrStateCheck if it is already running.

Stop halts the cron loop, cancels the context passed to running actions and
waits for them to return.
*/
package scheduler
