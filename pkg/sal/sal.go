package sal

import (
	"context"
	"time"

	"github.com/cuemby/burrow/pkg/types"
)

// Backend is a deployed storage backend (zerodb) reached over the agent
type Backend interface {
	Info(ctx context.Context) (types.BackendInfo, error)
	NamespaceList(ctx context.Context) ([]string, error)
	NamespaceCreate(ctx context.Context, ns types.NamespaceDefinition) error
	NamespaceDelete(ctx context.Context, name string) error
	Install(ctx context.Context) error
	Start(ctx context.Context) error
}

// Node enumerates the disks and backends of one storage node
type Node interface {
	// ListFreeDisks returns every mounted disk of the class, claimed or not.
	// Callers subtract backend mountpoints themselves.
	ListFreeDisks(ctx context.Context, class types.DiskClass) ([]types.FreeDisk, error)

	// ListBackends returns the backends deployed on the node with their
	// mount information. Capacity fields may be stale.
	ListBackends(ctx context.Context) ([]types.Backend, error)

	// CreateBackend records a new backend service for the spec and returns
	// its service name. The backend still needs Install and Start.
	CreateBackend(ctx context.Context, spec types.BackendSpec) (string, error)

	// Backend returns a handle for a named backend
	Backend(name string) Backend
}

// Host is a power-controllable physical host
type Host interface {
	PowerOn(ctx context.Context) error
	PowerOff(ctx context.Context) error
	PowerCycle(ctx context.Context) error
	PowerStatus(ctx context.Context) (bool, error)
	ConfigureBootTarget(ctx context.Context, url string) error
}

// HostDirectory resolves host-control services by name
type HostDirectory interface {
	Describe(ctx context.Context, name string) (types.HostService, error)
	Host(name string) Host
}

// Gateway is one storage-gateway instance of an active/passive pair
type Gateway interface {
	Info(ctx context.Context) (types.GatewayInfo, error)
	TlogHandle(ctx context.Context) (types.TlogHandle, error)
	NamespaceList(ctx context.Context) ([]string, error)
	SetNamespaces(ctx context.Context, namespaces []string) error
	Redeploy(ctx context.Context, resetTlog bool) error
	Promote(ctx context.Context) error
	UpdateMaster(ctx context.Context, handle types.TlogHandle) error
	Health(ctx context.Context) (types.GatewayHealth, error)
	HandleDataShardFailure(ctx context.Context, address string) error
}

// GatewayDirectory resolves gateway instances by name
type GatewayDirectory interface {
	Gateway(name string) Gateway
}

// Timeouts bounds each class of remote call
type Timeouts struct {
	Info    time.Duration `yaml:"info"`
	Install time.Duration `yaml:"install"`
	Power   time.Duration `yaml:"power"`
	Default time.Duration `yaml:"default"`
}

// DefaultTimeouts returns the per-call bounds used when none are configured
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Info:    120 * time.Second,
		Install: 300 * time.Second,
		Power:   60 * time.Second,
		Default: 30 * time.Second,
	}
}

// WithDefaults fills zero fields from DefaultTimeouts
func (t Timeouts) WithDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Info <= 0 {
		t.Info = d.Info
	}
	if t.Install <= 0 {
		t.Install = d.Install
	}
	if t.Power <= 0 {
		t.Power = d.Power
	}
	if t.Default <= 0 {
		t.Default = d.Default
	}
	return t
}
