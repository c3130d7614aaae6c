// Package inventory answers capacity questions about one storage node: which
// disks are free and which of them can hold a namespace of a given size.
package inventory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cuemby/burrow/pkg/sal"
	"github.com/cuemby/burrow/pkg/types"
)

// Inventory answers capacity queries against one node's live state
type Inventory struct {
	node    sal.Node
	timeout time.Duration
}

// New creates an inventory over node. Every query is bounded by timeout.
func New(node sal.Node, timeout time.Duration) *Inventory {
	if timeout <= 0 {
		timeout = sal.DefaultTimeouts().Info
	}
	return &Inventory{node: node, timeout: timeout}
}

// Claimed returns the set of mountpoints owned by a backend
func (inv *Inventory) Claimed(ctx context.Context) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	backends, err := inv.node.ListBackends(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list backends: %w", err)
	}

	claimed := make(map[string]string, len(backends))
	for _, b := range backends {
		if b.MountPath != "" {
			claimed[b.MountPath] = b.ServiceName
		}
	}
	return claimed, nil
}

// ListFreeDisks returns disks of the class that no backend owns and whose
// size is strictly greater than sizeGiB, largest first. Live state is queried
// on every call.
func (inv *Inventory) ListFreeDisks(ctx context.Context, sizeGiB int64, class types.DiskClass) ([]types.FreeDisk, error) {
	claimed, err := inv.Claimed(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	disks, err := inv.node.ListFreeDisks(ctx, class)
	if err != nil {
		return nil, fmt.Errorf("failed to list disks: %w", err)
	}

	return FilterFree(disks, claimed, sizeGiB, class), nil
}

// FilterFree is the pure part of ListFreeDisks
func FilterFree(disks []types.FreeDisk, claimed map[string]string, sizeGiB int64, class types.DiskClass) []types.FreeDisk {
	var free []types.FreeDisk
	for _, d := range disks {
		if _, owned := claimed[d.MountPoint]; owned {
			continue
		}
		if !class.Contains(d.DiskType) {
			continue
		}
		if d.SizeGiB() <= float64(sizeGiB) {
			continue
		}
		free = append(free, d)
	}

	sort.SliceStable(free, func(i, j int) bool {
		if free[i].SizeBytes != free[j].SizeBytes {
			return free[i].SizeBytes > free[j].SizeBytes
		}
		return free[i].MountPoint < free[j].MountPoint
	})
	return free
}
