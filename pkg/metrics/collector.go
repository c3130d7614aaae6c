package metrics

import (
	"errors"
	"fmt"

	"github.com/cuemby/burrow/pkg/storage"
)

// Collector refreshes state gauges from the store. The daemon runs Collect
// as a recurring action.
type Collector struct {
	store storage.Store
}

// NewCollector creates a new metrics collector
func NewCollector(store storage.Store) *Collector {
	return &Collector{store: store}
}

// Collect performs one collection pass. Gauges whose records could not be
// read keep their previous values and the read errors are returned joined.
func (c *Collector) Collect() error {
	return errors.Join(
		c.collectPoolMetrics(),
		c.collectLeaseMetrics(),
		c.collectAllocationMetrics(),
		c.collectGatewayMetrics(),
	)
}

func (c *Collector) collectPoolMetrics() error {
	pools, err := c.store.ListPools()
	if err != nil {
		return fmt.Errorf("failed to read pools: %w", err)
	}

	PoolMembers.Reset()
	for _, pool := range pools {
		PoolMembers.WithLabelValues(pool.Name).Set(float64(len(pool.Members)))
	}
	return nil
}

func (c *Collector) collectLeaseMetrics() error {
	leases, err := c.store.ListLeases()
	if err != nil {
		return fmt.Errorf("failed to read leases: %w", err)
	}

	counts := make(map[string]map[string]int)
	for _, lease := range leases {
		if counts[lease.PoolName] == nil {
			counts[lease.PoolName] = make(map[string]int)
		}
		counts[lease.PoolName][string(lease.State)]++
	}

	LeasesTotal.Reset()
	for pool, states := range counts {
		for state, count := range states {
			LeasesTotal.WithLabelValues(pool, state).Set(float64(count))
		}
	}
	return nil
}

func (c *Collector) collectAllocationMetrics() error {
	allocations, err := c.store.ListAllocations()
	if err != nil {
		return fmt.Errorf("failed to read allocations: %w", err)
	}
	AllocationsTotal.Set(float64(len(allocations)))
	return nil
}

func (c *Collector) collectGatewayMetrics() error {
	pairs, err := c.store.ListGatewayPairs()
	if err != nil {
		return fmt.Errorf("failed to read gateway pairs: %w", err)
	}
	GatewayPairs.Set(float64(len(pairs)))
	return nil
}
