// Package saltest provides in-memory implementations of the sal interfaces
// for tests.
package saltest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cuemby/burrow/pkg/sal"
	"github.com/cuemby/burrow/pkg/types"
)

// ErrInsufficientSpace is returned by a fake backend asked for more than it has
var ErrInsufficientSpace = errors.New("insufficient space")

// Node is an in-memory storage node
type Node struct {
	mu       sync.Mutex
	disks    []types.FreeDisk
	backends map[string]*Backend
	order    []string
	nextID   int

	Created []types.BackendSpec

	ListDisksErr    error
	ListBackendsErr error
	CreateErr       error
}

// NewNode creates a node with the given disks
func NewNode(disks ...types.FreeDisk) *Node {
	return &Node{
		disks:    disks,
		backends: make(map[string]*Backend),
	}
}

// AddBackend registers an existing backend
func (n *Node) AddBackend(b *Backend) *Backend {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.backends[b.Name] = b
	n.order = append(n.order, b.Name)
	return b
}

// Get returns a backend by name, nil if unknown
func (n *Node) Get(name string) *Backend {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.backends[name]
}

func (n *Node) ListFreeDisks(ctx context.Context, class types.DiskClass) ([]types.FreeDisk, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ListDisksErr != nil {
		return nil, n.ListDisksErr
	}
	var out []types.FreeDisk
	for _, d := range n.disks {
		if class.Contains(d.DiskType) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (n *Node) ListBackends(ctx context.Context) ([]types.Backend, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ListBackendsErr != nil {
		return nil, n.ListBackendsErr
	}
	out := make([]types.Backend, 0, len(n.order))
	for _, name := range n.order {
		out = append(out, n.backends[name].record())
	}
	return out, nil
}

func (n *Node) CreateBackend(ctx context.Context, spec types.BackendSpec) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.CreateErr != nil {
		return "", n.CreateErr
	}
	n.nextID++
	name := fmt.Sprintf("zdb-new-%d", n.nextID)

	var size int64
	for _, d := range n.disks {
		if d.MountPoint == spec.MountPoint {
			size = d.SizeBytes
		}
	}
	b := &Backend{
		Name: name,
		State: types.BackendInfo{
			FreeBytes:  size,
			TotalBytes: size,
			MountPath:  spec.MountPoint,
			DiskType:   spec.DiskType,
			Mode:       spec.Mode,
		},
	}
	for _, ns := range spec.Namespaces {
		b.Namespaces = append(b.Namespaces, ns.Name)
		b.State.FreeBytes -= ns.SizeGiB * types.GiB
	}
	n.backends[name] = b
	n.order = append(n.order, name)
	n.Created = append(n.Created, spec)
	return name, nil
}

func (n *Node) Backend(name string) sal.Backend {
	n.mu.Lock()
	defer n.mu.Unlock()
	if b, ok := n.backends[name]; ok {
		return b
	}
	return &Backend{Name: name, InfoErr: fmt.Errorf("%w: backend %s", types.ErrNotFound, name)}
}

// Backend is an in-memory zerodb
type Backend struct {
	mu         sync.Mutex
	Name       string
	State      types.BackendInfo
	Namespaces []string
	Installed  bool

	InfoErr   error
	CreateErr error
	DeleteErr error
	StartErr  error
	Calls     []string
}

// NewBackend creates a running backend with freeGiB of space
func NewBackend(name string, mode types.ZDBMode, disk types.DiskType, freeGiB int64, namespaces ...string) *Backend {
	return &Backend{
		Name: name,
		State: types.BackendInfo{
			FreeBytes:  freeGiB * types.GiB,
			TotalBytes: freeGiB * types.GiB,
			MountPath:  "/mnt/" + name,
			DiskType:   disk,
			Mode:       mode,
			Running:    true,
		},
		Namespaces: namespaces,
		Installed:  true,
	}
}

// HasNamespace reports whether the fake hosts name
func (b *Backend) HasNamespace(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ns := range b.Namespaces {
		if ns == name {
			return true
		}
	}
	return false
}

// CallLog returns the recorded calls
func (b *Backend) CallLog() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.Calls...)
}

func (b *Backend) record() types.Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	return types.Backend{
		ServiceName: b.Name,
		Mode:        b.State.Mode,
		DiskType:    b.State.DiskType,
		MountPath:   b.State.MountPath,
		FreeBytes:   b.State.FreeBytes,
		TotalBytes:  b.State.TotalBytes,
		Running:     b.State.Running,
	}
}

func (b *Backend) Info(ctx context.Context) (types.BackendInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.InfoErr != nil {
		return types.BackendInfo{}, b.InfoErr
	}
	return b.State, nil
}

func (b *Backend) NamespaceList(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.InfoErr != nil {
		return nil, b.InfoErr
	}
	return append([]string(nil), b.Namespaces...), nil
}

func (b *Backend) NamespaceCreate(ctx context.Context, ns types.NamespaceDefinition) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls = append(b.Calls, "create:"+ns.Name)
	if b.CreateErr != nil {
		return b.CreateErr
	}
	for _, existing := range b.Namespaces {
		if existing == ns.Name {
			return fmt.Errorf("namespace %s already exists", ns.Name)
		}
	}
	if ns.SizeGiB*types.GiB > b.State.FreeBytes {
		return ErrInsufficientSpace
	}
	b.Namespaces = append(b.Namespaces, ns.Name)
	b.State.FreeBytes -= ns.SizeGiB * types.GiB
	return nil
}

func (b *Backend) NamespaceDelete(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls = append(b.Calls, "delete:"+name)
	if b.DeleteErr != nil {
		return b.DeleteErr
	}
	for i, existing := range b.Namespaces {
		if existing == name {
			b.Namespaces = append(b.Namespaces[:i], b.Namespaces[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: namespace %s", types.ErrNotFound, name)
}

func (b *Backend) Install(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls = append(b.Calls, "install")
	b.Installed = true
	return nil
}

func (b *Backend) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls = append(b.Calls, "start")
	if b.StartErr != nil {
		return b.StartErr
	}
	b.State.Running = true
	return nil
}

// Hosts is an in-memory directory of host-control services
type Hosts struct {
	mu    sync.Mutex
	hosts map[string]*Host
}

// NewHosts creates a directory with installed racktivity hosts of the given names
func NewHosts(names ...string) *Hosts {
	h := &Hosts{hosts: make(map[string]*Host)}
	for _, name := range names {
		h.Add(&Host{Service: types.HostService{Name: name, Kind: types.HostKindRacktivity, Installed: true}})
	}
	return h
}

// Add registers a host
func (h *Hosts) Add(host *Host) *Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hosts[host.Service.Name] = host
	return host
}

// Get returns a host by name, nil if unknown
func (h *Hosts) Get(name string) *Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hosts[name]
}

func (h *Hosts) Describe(ctx context.Context, name string) (types.HostService, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	host, ok := h.hosts[name]
	if !ok {
		return types.HostService{}, fmt.Errorf("%w: host %s", types.ErrNotFound, name)
	}
	return host.Service, nil
}

func (h *Hosts) Host(name string) sal.Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	if host, ok := h.hosts[name]; ok {
		return host
	}
	return &Host{Service: types.HostService{Name: name}, Err: fmt.Errorf("%w: host %s", types.ErrNotFound, name)}
}

// Host is an in-memory power-controlled host
type Host struct {
	mu      sync.Mutex
	Service types.HostService
	On      bool
	Boot    string
	Calls   []string

	Err      error
	CycleErr error
}

// CallLog returns the recorded calls
func (h *Host) CallLog() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.Calls...)
}

// PoweredOn reports the fake power state
func (h *Host) PoweredOn() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.On
}

func (h *Host) call(name string) error {
	h.Calls = append(h.Calls, name)
	return h.Err
}

func (h *Host) PowerOn(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.call("on"); err != nil {
		return err
	}
	h.On = true
	return nil
}

func (h *Host) PowerOff(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.call("off"); err != nil {
		return err
	}
	h.On = false
	return nil
}

func (h *Host) PowerCycle(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.call("cycle"); err != nil {
		return err
	}
	if h.CycleErr != nil {
		return h.CycleErr
	}
	h.On = true
	return nil
}

func (h *Host) PowerStatus(ctx context.Context) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.call("status"); err != nil {
		return false, err
	}
	return h.On, nil
}

func (h *Host) ConfigureBootTarget(ctx context.Context, url string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.call("boot:" + url); err != nil {
		return err
	}
	h.Boot = url
	return nil
}

// Gateways is an in-memory directory of storage gateways
type Gateways struct {
	mu       sync.Mutex
	gateways map[string]*Gateway
}

// NewGateways creates a directory of healthy gateways
func NewGateways(names ...string) *Gateways {
	g := &Gateways{gateways: make(map[string]*Gateway)}
	for _, name := range names {
		g.gateways[name] = NewGateway(name)
	}
	return g
}

// Get returns a gateway by name, nil if unknown
func (g *Gateways) Get(name string) *Gateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gateways[name]
}

func (g *Gateways) Gateway(name string) sal.Gateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gw, ok := g.gateways[name]; ok {
		return gw
	}
	gw := NewGateway(name)
	gw.Up = false
	return gw
}

// Gateway is an in-memory storage gateway
type Gateway struct {
	mu         sync.Mutex
	Name       string
	Up         bool
	HealthMaps types.GatewayHealth
	Namespaces []string
	Tlog       types.TlogHandle
	Master     *types.TlogHandle

	Redeploys     []bool
	Promotions    int
	ShardFailures []string
	Calls         []string

	setNamespacesErr error
}

// NewGateway creates a healthy gateway
func NewGateway(name string) *Gateway {
	return &Gateway{
		Name: name,
		Up:   true,
		HealthMaps: types.GatewayHealth{
			types.CategoryDataShards: types.HealthMap{},
			types.CategoryTlogShards: types.HealthMap{},
		},
		Tlog: types.TlogHandle{Namespace: name + "-tlog", Address: name + ":9900"},
	}
}

// SetUp toggles reachability
func (g *Gateway) SetUp(up bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Up = up
}

// SetShard sets a shard's health flag in a category
func (g *Gateway) SetShard(category types.HealthCategory, address string, flag types.HealthFlag) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.HealthMaps[category] == nil {
		g.HealthMaps[category] = types.HealthMap{}
	}
	g.HealthMaps[category][address] = flag
}

// FailSetNamespaces makes SetNamespaces return err until called with nil
func (g *Gateway) FailSetNamespaces(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.setNamespacesErr = err
}

// CallLog returns the recorded calls
func (g *Gateway) CallLog() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.Calls...)
}

func (g *Gateway) down() error {
	if !g.Up {
		return fmt.Errorf("%w: gateway %s unreachable", types.ErrRemoteCall, g.Name)
	}
	return nil
}

func (g *Gateway) Info(ctx context.Context) (types.GatewayInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.down(); err != nil {
		return types.GatewayInfo{}, err
	}
	return types.GatewayInfo{Name: g.Name, Namespaces: g.Namespaces, Running: true}, nil
}

func (g *Gateway) TlogHandle(ctx context.Context) (types.TlogHandle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls = append(g.Calls, "tlog")
	if err := g.down(); err != nil {
		return types.TlogHandle{}, err
	}
	return g.Tlog, nil
}

func (g *Gateway) NamespaceList(ctx context.Context) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.down(); err != nil {
		return nil, err
	}
	return append([]string(nil), g.Namespaces...), nil
}

func (g *Gateway) SetNamespaces(ctx context.Context, namespaces []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls = append(g.Calls, "set-namespaces")
	if g.setNamespacesErr != nil {
		return g.setNamespacesErr
	}
	g.Namespaces = append([]string(nil), namespaces...)
	return nil
}

// Redeploy brings the gateway back up
func (g *Gateway) Redeploy(ctx context.Context, resetTlog bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls = append(g.Calls, fmt.Sprintf("redeploy:%t", resetTlog))
	g.Redeploys = append(g.Redeploys, resetTlog)
	g.Up = true
	return nil
}

func (g *Gateway) Promote(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls = append(g.Calls, "promote")
	if err := g.down(); err != nil {
		return err
	}
	g.Promotions++
	return nil
}

func (g *Gateway) UpdateMaster(ctx context.Context, handle types.TlogHandle) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls = append(g.Calls, "update-master")
	g.Master = &handle
	return nil
}

func (g *Gateway) Health(ctx context.Context) (types.GatewayHealth, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.down(); err != nil {
		return nil, err
	}
	out := make(types.GatewayHealth, len(g.HealthMaps))
	for cat, m := range g.HealthMaps {
		cp := make(types.HealthMap, len(m))
		for k, v := range m {
			cp[k] = v
		}
		out[cat] = cp
	}
	return out, nil
}

func (g *Gateway) HandleDataShardFailure(ctx context.Context, address string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls = append(g.Calls, "shard-failure:"+address)
	g.ShardFailures = append(g.ShardFailures, address)
	// Backend-side handling replaces the failed shard's namespace
	g.Namespaces = append(g.Namespaces, "replacement-for-"+address)
	return nil
}
