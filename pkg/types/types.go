package types

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// GiB is the byte size used for every capacity conversion
const GiB int64 = 1024 * 1024 * 1024

// ZDBMode is the write-ordering mode a backend is created with
type ZDBMode string

const (
	ZDBModeUser   ZDBMode = "user"
	ZDBModeDirect ZDBMode = "direct"
	ZDBModeSeq    ZDBMode = "seq"
)

// Valid reports whether m is a known backend mode
func (m ZDBMode) Valid() bool {
	switch m {
	case ZDBModeUser, ZDBModeDirect, ZDBModeSeq:
		return true
	}
	return false
}

// DiskType is the physical media type reported for a disk or backend
type DiskType string

const (
	DiskTypeHDD     DiskType = "HDD"
	DiskTypeArchive DiskType = "ARCHIVE"
	DiskTypeSSD     DiskType = "SSD"
	DiskTypeNVME    DiskType = "NVME"
)

// Class returns the disk-type class the media belongs to
func (d DiskType) Class() DiskClass {
	switch DiskType(strings.ToUpper(string(d))) {
	case DiskTypeHDD, DiskTypeArchive:
		return DiskClassHDD
	case DiskTypeSSD, DiskTypeNVME:
		return DiskClassSSD
	}
	return ""
}

// DiskClass groups disk types that are interchangeable for placement
type DiskClass string

const (
	DiskClassHDD DiskClass = "hdd"
	DiskClassSSD DiskClass = "ssd"
)

// Valid reports whether c is a known disk-type class
func (c DiskClass) Valid() bool {
	return c == DiskClassHDD || c == DiskClassSSD
}

// Contains reports whether the disk type belongs to this class
func (c DiskClass) Contains(d DiskType) bool {
	return d.Class() == c
}

// Backend is one deployed storage-backend (zerodb) instance
type Backend struct {
	ServiceName string   `json:"service_name"`
	Mode        ZDBMode  `json:"mode"`
	DiskType    DiskType `json:"disk_type"`
	MountPath   string   `json:"mount_path"`
	FreeBytes   int64    `json:"free_bytes"`
	TotalBytes  int64    `json:"total_bytes"`
	Running     bool     `json:"running"`
	Namespaces  []string `json:"namespaces,omitempty"`
}

// FreeGiB returns the free capacity in whole and fractional GiB
func (b *Backend) FreeGiB() float64 {
	return float64(b.FreeBytes) / float64(GiB)
}

// HasNamespace reports whether the backend already hosts name
func (b *Backend) HasNamespace(name string) bool {
	for _, ns := range b.Namespaces {
		if ns == name {
			return true
		}
	}
	return false
}

// BackendInfo is what a backend reports about itself
type BackendInfo struct {
	FreeBytes  int64    `json:"free_bytes"`
	TotalBytes int64    `json:"total_bytes"`
	MountPath  string   `json:"mount_path"`
	DiskType   DiskType `json:"disk_type"`
	Mode       ZDBMode  `json:"mode"`
	Running    bool     `json:"running"`
}

// FreeDisk is a mounted physical disk not owned by any backend
type FreeDisk struct {
	MountPoint string   `json:"mountpoint"`
	DiskID     string   `json:"disk_id"`
	SizeBytes  int64    `json:"size_bytes"`
	DiskType   DiskType `json:"disk_type"`
}

// SizeGiB returns the disk size in GiB
func (d FreeDisk) SizeGiB() float64 {
	return float64(d.SizeBytes) / float64(GiB)
}

// NamespaceRequest asks for a namespace of a given size and kind
type NamespaceRequest struct {
	DiskClass     DiskClass `json:"disk_class"`
	Mode          ZDBMode   `json:"mode"`
	SizeGiB       int64     `json:"size_gib"`
	Password      string    `json:"password,omitempty"`
	Public        bool      `json:"public"`
	RequestedName string    `json:"name,omitempty"`
}

// Validate checks the request fields that can be checked without the node
func (r *NamespaceRequest) Validate() error {
	if r.SizeGiB <= 0 {
		return fmt.Errorf("%w: size must be positive, got %d", ErrValidation, r.SizeGiB)
	}
	if !r.Mode.Valid() {
		return fmt.Errorf("%w: unsupported mode %q", ErrValidation, r.Mode)
	}
	if !r.DiskClass.Valid() {
		return fmt.Errorf("%w: unsupported disk type %q", ErrValidation, r.DiskClass)
	}
	return nil
}

// BackendSpec describes a backend to be created on a free disk
type BackendSpec struct {
	MountPoint string                `json:"mountpoint"`
	DiskID     string                `json:"disk_id"`
	DiskType   DiskType              `json:"disk_type"`
	Mode       ZDBMode               `json:"mode"`
	Namespaces []NamespaceDefinition `json:"namespaces"`
}

// NamespaceDefinition is the payload of a namespace create call
type NamespaceDefinition struct {
	Name     string `json:"name"`
	SizeGiB  int64  `json:"size_gib"`
	Password string `json:"password,omitempty"`
	Public   bool   `json:"public"`
}

// PlacementPhase records which planner phase satisfied a request
type PlacementPhase string

const (
	PhaseFreeDisk        PlacementPhase = "free-disk"
	PhaseExistingBackend PlacementPhase = "existing-backend"
)

// Placement is the durable result of a namespace allocation
type Placement struct {
	Backend    string         `json:"backend"`
	Namespace  string         `json:"namespace"`
	MountPath  string         `json:"mount_path,omitempty"`
	Phase      PlacementPhase `json:"phase"`
	SizeGiB    int64          `json:"size_gib"`
	DiskClass  DiskClass      `json:"disk_class"`
	Mode       ZDBMode        `json:"mode"`
	CreatedAt  time.Time      `json:"created_at"`
	NewBackend bool           `json:"new_backend"`
}

// Key identifies a placement in the allocation store
func (p *Placement) Key() string {
	return p.Backend + "/" + p.Namespace
}

// HostKind is the template identity of a host-control service
type HostKind string

const (
	HostKindRacktivity HostKind = "zeroboot-racktivity-host"
	HostKindIPMI       HostKind = "zeroboot-ipmi-host"
)

// Supported reports whether a host-control kind can back a pool member
func (k HostKind) Supported() bool {
	return k == HostKindRacktivity || k == HostKindIPMI
}

// HostPool is a named, ordered set of power-controllable hosts
type HostPool struct {
	Name      string    `json:"name"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LeaseState is the lifecycle state of a reservation lease
type LeaseState string

const (
	LeaseStateEmpty     LeaseState = "empty"
	LeaseStateInstalled LeaseState = "installed"
)

// Lease is one caller's claim on a single pool host
type Lease struct {
	Name         string     `json:"name"`
	PoolName     string     `json:"pool"`
	CallerID     string     `json:"caller_id"`
	BootImageURL string     `json:"boot_image_url"`
	HostName     string     `json:"host,omitempty"`
	State        LeaseState `json:"state"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Installed reports whether the lease holds its host
func (l *Lease) Installed() bool {
	return l.State == LeaseStateInstalled
}

// InstallStatus is the tri-state answer to "is this lease installed"
type InstallStatus string

const (
	StatusNotInstalled InstallStatus = "not-installed"
	StatusInstalled    InstallStatus = "installed"
	StatusError        InstallStatus = "error"
)

// HealthFlag is the state of one shard
type HealthFlag string

const (
	HealthOK    HealthFlag = "ok"
	HealthError HealthFlag = "error"
)

// HealthCategory names a group of shards reported by a gateway
type HealthCategory string

const (
	CategoryDataShards HealthCategory = "data_shards"
	CategoryTlogShards HealthCategory = "tlog_shards"
)

// HealthMap maps shard address to health flag
type HealthMap map[string]HealthFlag

// Failing returns the addresses not in ok state, sorted for stable handling
func (m HealthMap) Failing() []string {
	var out []string
	for addr, flag := range m {
		if flag != HealthOK {
			out = append(out, addr)
		}
	}
	sort.Strings(out)
	return out
}

// GatewayHealth is the health state a gateway publishes per category
type GatewayHealth map[HealthCategory]HealthMap

// GatewayInfo is what a storage gateway reports about itself
type GatewayInfo struct {
	Name       string   `json:"name"`
	URL        string   `json:"url,omitempty"`
	Namespaces []string `json:"namespaces,omitempty"`
	Running    bool     `json:"running"`
}

// TlogHandle identifies a gateway's transaction log for master promotion
type TlogHandle struct {
	Namespace string `json:"namespace"`
	Address   string `json:"address"`
}

// GatewayPair is an active/passive pair of storage gateways
type GatewayPair struct {
	Name      string    `json:"name"`
	Active    string    `json:"active"`
	Passive   string    `json:"passive"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Swap exchanges the role labels; the instances are untouched
func (p *GatewayPair) Swap() {
	p.Active, p.Passive = p.Passive, p.Active
}

// PairState is the liveness combination of a gateway pair
type PairState string

const (
	PairBothUp      PairState = "both-up"
	PairPassiveDown PairState = "passive-down"
	PairActiveDown  PairState = "active-down"
	PairBothDown    PairState = "both-down"
)

// FailoverAction is what the controller did on one tick
type FailoverAction string

const (
	ActionNone            FailoverAction = "none"
	ActionRedeployBoth    FailoverAction = "redeploy-both"
	ActionRedeployPassive FailoverAction = "redeploy-passive"
	ActionPromote         FailoverAction = "promote"
)

// HostService is what the service directory knows about a host-control service
type HostService struct {
	Name      string   `json:"name"`
	Kind      HostKind `json:"kind"`
	Installed bool     `json:"installed"`
}
