/*
Package failover keeps active/passive storage gateway pairs serving.

A Controller owns one pair. Tick checks both gateways through a debounced
GatewayChecker and acts on the combined state:

	active  passive   action
	up      up        none
	up      down      redeploy passive, resetting its transaction log
	down    up        promote passive, redeploy old active as passive
	down    down      redeploy both

Promotion takes the passive's tlog handle, promotes it, points the old active
at the new master and redeploys it. Only then are the roles swapped and
persisted, so the stored pair always names the instance that is serving.

# Shards

MonitorShards reads both gateways' shard health. Failed tlog shards on either
side and failed data shards on the passive are reported through Hooks. The
first failed data shard on the active that has not been handled yet is
handed to the gateway, and the passive's namespace list is brought in line
with the active's. A shard is handled once until it recovers or disappears.

Manager holds one controller per persisted pair and runs TickAll and
MonitorAllShards across all of them; a failing pair does not stop the rest.
*/
package failover
