/*
Package placement decides where a storage namespace lives and creates it
there.

A request names a size in GiB, a backend mode (user, direct or seq), a disk
type class (hdd or ssd) and optionally a namespace name. Planning is split
into a pure decision and the calls that act on it:

	┌──────────── Planner.PlanAndCreate ────────────┐
	│  Validate request                             │
	│  Snapshot: free disks via inventory           │
	│            backend Info + NamespaceList       │
	│            (only when no free disk fits)      │
	│  Select(snapshot, request, name)              │
	│     ├─ free disk  → CreateBackend, Install,   │
	│     │               Start                     │
	│     └─ backend    → NamespaceCreate           │
	│  Record allocation, emit event                │
	└───────────────────────────────────────────────┘

# Selection

Select is a pure function of the snapshot. A free disk of the requested class
with more than the requested space wins, largest first. Otherwise running
backends of the same mode and class with more free space than requested are
ordered by free space, largest first, ties broken by service name, and the
first one that does not already hold a namespace of that name is chosen. If
nothing qualifies the error wraps types.ErrNoNamespaceAvailability and names
the size and class.

Backend capacity is read fresh for every pass, concurrently and bounded by
the Info timeout. A backend whose Info call fails fails the whole pass with
types.ErrRemoteCall; a half-known node is not planned on.

# Shards

PlanShards places several namespaces on distinct backends for erasure-coded
gateways. Each shard excludes the backends already used. If any shard fails,
the namespaces created so far are deleted again before the error returns.

# Concurrency

The planner holds no lock across a pass. Two planners on the same node may
both choose the same free disk before either has created a backend on it.
*/
package placement
