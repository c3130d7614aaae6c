package placement

import (
	"fmt"
	"sort"

	"github.com/cuemby/burrow/pkg/inventory"
	"github.com/cuemby/burrow/pkg/types"
)

// Snapshot is the node state one planning pass decides on
type Snapshot struct {
	// FreeDisks are unclaimed disks; Select re-applies the size and class filter
	FreeDisks []types.FreeDisk

	// Backends carry capacity and namespace lists refreshed for this pass
	Backends []types.Backend

	// Exclude names backends that must not receive the namespace
	Exclude map[string]bool
}

// Decision is where a namespace goes
type Decision struct {
	Phase   types.PlacementPhase
	Disk    *types.FreeDisk
	Backend *types.Backend
}

// Select picks the target for a namespace called name. It is a pure function
// of its arguments: free disks first (largest first), then running backends
// of the same mode and class with more free space than requested (largest
// free first) that do not already host name.
func Select(snap Snapshot, req types.NamespaceRequest, name string) (Decision, error) {
	disks := inventory.FilterFree(snap.FreeDisks, nil, req.SizeGiB, req.DiskClass)
	if len(disks) > 0 {
		disk := disks[0]
		return Decision{Phase: types.PhaseFreeDisk, Disk: &disk}, nil
	}

	candidates := EligibleBackends(snap.Backends, req, snap.Exclude)
	if len(candidates) == 0 {
		return Decision{}, fmt.Errorf("%w: no backend or free disk with more than %dGiB of %s storage",
			types.ErrNoNamespaceAvailability, req.SizeGiB, req.DiskClass)
	}

	for i := range candidates {
		if !candidates[i].HasNamespace(name) {
			backend := candidates[i]
			return Decision{Phase: types.PhaseExistingBackend, Backend: &backend}, nil
		}
	}

	return Decision{}, fmt.Errorf("%w: namespace %s already exists on every backend with more than %dGiB of %s storage",
		types.ErrNoNamespaceAvailability, name, req.SizeGiB, req.DiskClass)
}

// EligibleBackends filters backends by mode, class, liveness and free space
// and orders them by free space descending, then service name
func EligibleBackends(backends []types.Backend, req types.NamespaceRequest, exclude map[string]bool) []types.Backend {
	var eligible []types.Backend
	for _, b := range backends {
		if exclude[b.ServiceName] {
			continue
		}
		if b.Mode != req.Mode {
			continue
		}
		if b.FreeGiB() <= float64(req.SizeGiB) {
			continue
		}
		if !req.DiskClass.Contains(b.DiskType) {
			continue
		}
		if !b.Running {
			continue
		}
		eligible = append(eligible, b)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].FreeBytes != eligible[j].FreeBytes {
			return eligible[i].FreeBytes > eligible[j].FreeBytes
		}
		return eligible[i].ServiceName < eligible[j].ServiceName
	})
	return eligible
}
