package storage

import (
	"github.com/cuemby/burrow/pkg/types"
)

// Store defines the interface for persisted placement and reservation state.
// Updates are upserts; deletes of absent keys are not errors.
type Store interface {
	// Host pools
	CreatePool(pool *types.HostPool) error
	GetPool(name string) (*types.HostPool, error)
	ListPools() ([]*types.HostPool, error)
	UpdatePool(pool *types.HostPool) error
	DeletePool(name string) error

	// Reservation leases
	CreateLease(lease *types.Lease) error
	GetLease(name string) (*types.Lease, error)
	ListLeases() ([]*types.Lease, error)
	ListLeasesByPool(pool string) ([]*types.Lease, error)
	UpdateLease(lease *types.Lease) error
	DeleteLease(name string) error

	// Gateway pairs
	CreateGatewayPair(pair *types.GatewayPair) error
	GetGatewayPair(name string) (*types.GatewayPair, error)
	ListGatewayPairs() ([]*types.GatewayPair, error)
	UpdateGatewayPair(pair *types.GatewayPair) error
	DeleteGatewayPair(name string) error

	// Namespace allocations
	SaveAllocation(placement *types.Placement) error
	GetAllocation(backend, namespace string) (*types.Placement, error)
	ListAllocations() ([]*types.Placement, error)
	DeleteAllocation(backend, namespace string) error

	// Utility
	Close() error
}
