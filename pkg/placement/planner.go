package placement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/inventory"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/sal"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// AllocationRecorder persists placements. storage.Store satisfies it.
type AllocationRecorder interface {
	SaveAllocation(placement *types.Placement) error
	DeleteAllocation(backend, namespace string) error
}

// Config holds the planner's collaborators
type Config struct {
	Node     sal.Node
	Recorder AllocationRecorder
	Events   events.Publisher
	Timeouts sal.Timeouts

	// NewName generates namespace names when a request has none
	NewName func() string
}

// Planner turns namespace requests into backend/namespace pairs on one node
type Planner struct {
	node      sal.Node
	inventory *inventory.Inventory
	recorder  AllocationRecorder
	events    events.Publisher
	timeouts  sal.Timeouts
	newName   func() string
	logger    zerolog.Logger
}

// NewPlanner creates a planner for the node in cfg
func NewPlanner(cfg Config) (*Planner, error) {
	if cfg.Node == nil {
		return nil, fmt.Errorf("planner requires a node")
	}
	timeouts := cfg.Timeouts.WithDefaults()
	newName := cfg.NewName
	if newName == nil {
		newName = func() string {
			return strings.ReplaceAll(uuid.New().String(), "-", "")
		}
	}

	return &Planner{
		node:      cfg.Node,
		inventory: inventory.New(cfg.Node, timeouts.Info),
		recorder:  cfg.Recorder,
		events:    cfg.Events,
		timeouts:  timeouts,
		newName:   newName,
		logger:    log.WithComponent("placement"),
	}, nil
}

// Snapshot gathers the state one planning pass needs. Backends are only
// refreshed when no free disk can take the request.
func (p *Planner) Snapshot(ctx context.Context, req types.NamespaceRequest) (Snapshot, error) {
	free, err := p.inventory.ListFreeDisks(ctx, req.SizeGiB, req.DiskClass)
	if err != nil {
		return Snapshot{}, remote(err)
	}
	if len(free) > 0 {
		return Snapshot{FreeDisks: free}, nil
	}

	backends, err := p.refreshBackends(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Backends: backends}, nil
}

// refreshBackends queries info and namespace lists of every backend in parallel
func (p *Planner) refreshBackends(ctx context.Context) ([]types.Backend, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeouts.Info)
	defer cancel()

	records, err := p.node.ListBackends(ctx)
	if err != nil {
		return nil, remote(fmt.Errorf("failed to list backends: %w", err))
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range records {
		rec := &records[i]
		g.Go(func() error {
			backend := p.node.Backend(rec.ServiceName)
			info, err := backend.Info(gctx)
			if err != nil {
				return remote(fmt.Errorf("failed to get info of backend %s: %w", rec.ServiceName, err))
			}
			names, err := backend.NamespaceList(gctx)
			if err != nil {
				return remote(fmt.Errorf("failed to list namespaces of backend %s: %w", rec.ServiceName, err))
			}

			rec.FreeBytes = info.FreeBytes
			rec.TotalBytes = info.TotalBytes
			rec.Running = info.Running
			rec.Namespaces = names
			if info.Mode != "" {
				rec.Mode = info.Mode
			}
			if info.DiskType != "" {
				rec.DiskType = info.DiskType
			}
			if info.MountPath != "" {
				rec.MountPath = info.MountPath
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

// Validate checks a request before any remote call is made
func (p *Planner) Validate(req types.NamespaceRequest) error {
	return req.Validate()
}

// PlanAndCreate places one namespace, creating a backend on a free disk when
// one fits. The final create call is not rolled back on failure.
func (p *Planner) PlanAndCreate(ctx context.Context, req types.NamespaceRequest) (*types.Placement, error) {
	return p.plan(ctx, req, p.nameFor(req), nil)
}

func (p *Planner) nameFor(req types.NamespaceRequest) string {
	if req.RequestedName != "" {
		return req.RequestedName
	}
	return p.newName()
}

func (p *Planner) plan(ctx context.Context, req types.NamespaceRequest, name string, exclude map[string]bool) (*types.Placement, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.PlacementDuration)

	if err := p.Validate(req); err != nil {
		metrics.PlacementsTotal.WithLabelValues("none", "invalid").Inc()
		return nil, err
	}

	snap, err := p.Snapshot(ctx, req)
	if err != nil {
		metrics.PlacementsTotal.WithLabelValues("none", "error").Inc()
		return nil, err
	}
	snap.Exclude = exclude

	decision, err := Select(snap, req, name)
	if err != nil {
		metrics.PlacementsTotal.WithLabelValues("none", "unavailable").Inc()
		p.logger.Warn().
			Int64("size_gib", req.SizeGiB).
			Str("disk_class", string(req.DiskClass)).
			Str("namespace", name).
			Msg("no placement available")
		return nil, err
	}

	def := types.NamespaceDefinition{
		Name:     name,
		SizeGiB:  req.SizeGiB,
		Password: req.Password,
		Public:   req.Public,
	}

	var placement *types.Placement
	switch decision.Phase {
	case types.PhaseFreeDisk:
		placement, err = p.createOnDisk(ctx, *decision.Disk, req.Mode, def)
	default:
		placement, err = p.createOnBackend(ctx, *decision.Backend, def)
	}
	if err != nil {
		metrics.PlacementsTotal.WithLabelValues(string(decision.Phase), "error").Inc()
		return nil, err
	}

	placement.SizeGiB = req.SizeGiB
	placement.DiskClass = req.DiskClass
	placement.Mode = req.Mode
	placement.CreatedAt = time.Now()

	p.record(placement)
	metrics.PlacementsTotal.WithLabelValues(string(decision.Phase), "success").Inc()
	return placement, nil
}

// createOnDisk creates a new backend on disk carrying exactly one namespace
func (p *Planner) createOnDisk(ctx context.Context, disk types.FreeDisk, mode types.ZDBMode, def types.NamespaceDefinition) (*types.Placement, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeouts.Install)
	defer cancel()

	spec := types.BackendSpec{
		MountPoint: disk.MountPoint,
		DiskID:     disk.DiskID,
		DiskType:   disk.DiskType,
		Mode:       mode,
		Namespaces: []types.NamespaceDefinition{def},
	}

	name, err := p.node.CreateBackend(ctx, spec)
	if err != nil {
		return nil, remote(fmt.Errorf("failed to create backend on %s: %w", disk.MountPoint, err))
	}

	backend := p.node.Backend(name)
	if err := backend.Install(ctx); err != nil {
		return nil, remote(fmt.Errorf("failed to install backend %s: %w", name, err))
	}
	if err := backend.Start(ctx); err != nil {
		return nil, remote(fmt.Errorf("failed to start backend %s: %w", name, err))
	}

	metrics.BackendsCreated.Inc()
	events.Emit(p.events, events.EventBackendCreated, fmt.Sprintf("backend %s created on %s", name, disk.MountPoint),
		map[string]string{"backend": name, "mountpoint": disk.MountPoint, "disk": disk.DiskID})
	p.logger.Info().
		Str("backend", name).
		Str("mountpoint", disk.MountPoint).
		Str("namespace", def.Name).
		Msg("backend created on free disk")

	return &types.Placement{
		Backend:    name,
		Namespace:  def.Name,
		MountPath:  disk.MountPoint,
		Phase:      types.PhaseFreeDisk,
		NewBackend: true,
	}, nil
}

func (p *Planner) createOnBackend(ctx context.Context, backend types.Backend, def types.NamespaceDefinition) (*types.Placement, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeouts.Default)
	defer cancel()

	if err := p.node.Backend(backend.ServiceName).NamespaceCreate(ctx, def); err != nil {
		return nil, remote(fmt.Errorf("failed to create namespace %s on backend %s: %w", def.Name, backend.ServiceName, err))
	}

	return &types.Placement{
		Backend:   backend.ServiceName,
		Namespace: def.Name,
		MountPath: backend.MountPath,
		Phase:     types.PhaseExistingBackend,
	}, nil
}

func (p *Planner) record(placement *types.Placement) {
	if p.recorder != nil {
		if err := p.recorder.SaveAllocation(placement); err != nil {
			p.logger.Error().Err(err).Str("namespace", placement.Namespace).Msg("failed to record allocation")
		}
	}
	events.Emit(p.events, events.EventNamespaceCreated,
		fmt.Sprintf("namespace %s created on %s", placement.Namespace, placement.Backend),
		map[string]string{"backend": placement.Backend, "namespace": placement.Namespace, "phase": string(placement.Phase)})
	p.logger.Info().
		Str("backend", placement.Backend).
		Str("namespace", placement.Namespace).
		Str("phase", string(placement.Phase)).
		Int64("size_gib", placement.SizeGiB).
		Msg("namespace placed")
}

// DeleteNamespace removes a namespace from its backend. A namespace that is
// already gone is not an error.
func (p *Planner) DeleteNamespace(ctx context.Context, backend, namespace string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeouts.Default)
	defer cancel()

	err := p.node.Backend(backend).NamespaceDelete(ctx, namespace)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return remote(fmt.Errorf("failed to delete namespace %s on backend %s: %w", namespace, backend, err))
	}

	if p.recorder != nil {
		if err := p.recorder.DeleteAllocation(backend, namespace); err != nil {
			p.logger.Error().Err(err).Str("namespace", namespace).Msg("failed to delete allocation record")
		}
	}
	events.Emit(p.events, events.EventNamespaceDeleted,
		fmt.Sprintf("namespace %s deleted from %s", namespace, backend),
		map[string]string{"backend": backend, "namespace": namespace})
	return nil
}

// MountPathFor returns the mountpoint a new backend for a request of this
// size and class would be created on
func (p *Planner) MountPathFor(ctx context.Context, class types.DiskClass, sizeGiB int64) (string, error) {
	if !class.Valid() {
		return "", fmt.Errorf("%w: unsupported disk type %q", types.ErrValidation, class)
	}
	free, err := p.inventory.ListFreeDisks(ctx, sizeGiB, class)
	if err != nil {
		return "", remote(err)
	}
	if len(free) == 0 {
		return "", fmt.Errorf("%w: no free disk with more than %dGiB of %s storage",
			types.ErrNoNamespaceAvailability, sizeGiB, class)
	}
	return free[0].MountPoint, nil
}

// PlanShards places count namespaces on distinct backends, as needed by
// erasure-coded gateways. Every namespace created before a failure is
// deleted again before the error is returned.
func (p *Planner) PlanShards(ctx context.Context, req types.NamespaceRequest, count int) ([]*types.Placement, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: shard count must be positive, got %d", types.ErrValidation, count)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	used := make(map[string]bool, count)
	placements := make([]*types.Placement, 0, count)
	for i := 0; i < count; i++ {
		name := p.newName()
		if req.RequestedName != "" {
			name = fmt.Sprintf("%s-%d", req.RequestedName, i)
		}

		placement, err := p.plan(ctx, req, name, used)
		if err != nil {
			p.rollback(ctx, placements)
			return nil, fmt.Errorf("failed to place shard %d of %d: %w", i+1, count, err)
		}
		used[placement.Backend] = true
		placements = append(placements, placement)
	}
	return placements, nil
}

func (p *Planner) rollback(ctx context.Context, placements []*types.Placement) {
	for _, placement := range placements {
		if err := p.DeleteNamespace(ctx, placement.Backend, placement.Namespace); err != nil {
			p.logger.Error().Err(err).
				Str("backend", placement.Backend).
				Str("namespace", placement.Namespace).
				Msg("failed to roll back shard namespace")
		}
	}
}

// remote marks err as a remote call failure unless it already carries a kind
func remote(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{types.ErrRemoteCall, types.ErrNotFound, types.ErrValidation} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", types.ErrRemoteCall, err)
}
