/*
Package reservation hands out power-controlled hosts from named pools.

A pool is an ordered list of host-control services (racktivity PDUs or IPMI
controllers) known to the agent. A lease is one caller's claim on a single
pool host, created empty and bound to a host on Install.

# Pools

Add and CreatePool validate every member: the service must exist, be of a
supported kind and be installed. Members are unique; Remove is idempotent and
keeps the order of the remaining members.

# Claiming

Install asks the pool for a host no other installed lease holds, in member
order, and binds it by persisting the host name on the lease. The scan and
the bind run under a per-pool lock, so two installs in the same process never
receive the same host. The host is then pointed at the lease's boot image and
power cycled. Any failure clears the binding again and leaves the lease
empty.

	Lease state        Empty ──Install──▶ Installed
	                     ▲                    │
	                     └─────Uninstall──────┘

Status reports one of not-installed, installed or error, the last when the
stored record is inconsistent. Power actions and boot configuration require
an installed lease and fail with types.ErrStateCheck otherwise, without
calling the host.

# Monitoring

MonitorLeases visits every installed lease and powers its host back on when
it is found off. The daemon runs it as a recurring action.
*/
package reservation
