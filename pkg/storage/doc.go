/*
Package storage provides BoltDB-backed persistence for burrow's state.

BoltStore implements the Store interface on a single bbolt file,
<dataDir>/burrow.db. Every record is stored as JSON in one of four buckets:

	┌──────────────── burrow.db ────────────────┐
	│  pools          (pool name)               │
	│  leases         (lease name)              │
	│  gateway_pairs  (pair name)               │
	│  allocations    (backend/namespace)       │
	└───────────────────────────────────────────┘

# Semantics

  - Create and Update are both upserts
  - Get of a missing key returns an error wrapping types.ErrNotFound
  - Delete of a missing key is not an error
  - Reads run in db.View and may proceed concurrently; writes are serialized
    by db.Update

Gateway pairs persist their current role assignment, so a promotion survives
a daemon restart. Allocations are keyed by Placement.Key.

# Maintenance

Inspect counts the records per bucket and lists keys whose value is no longer
valid JSON. Backup streams a consistent snapshot through tx.WriteTo; the
resulting file can be opened with NewBoltStore like any other data directory.

bbolt holds an exclusive file lock while a store is open, so offline tools
must run with the daemon stopped.
*/
package storage
