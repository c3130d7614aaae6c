package reservation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/sal"
	"github.com/cuemby/burrow/pkg/sal/saltest"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bootURL = "http://boot.example/ipxe/zos"

type recorder struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *recorder) Publish(e *events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(t events.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type fixture struct {
	svc    *Service
	store  *storage.BoltStore
	hosts  *saltest.Hosts
	events *recorder
}

func newFixture(t *testing.T, hostNames ...string) *fixture {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	hosts := saltest.NewHosts(hostNames...)
	rec := &recorder{}
	svc, err := NewService(Config{
		Store:    store,
		Hosts:    hosts,
		Events:   rec,
		Timeouts: sal.Timeouts{Power: time.Second, Default: time.Second},
	})
	require.NoError(t, err)
	return &fixture{svc: svc, store: store, hosts: hosts, events: rec}
}

func (f *fixture) pool(t *testing.T, name string, members ...string) *Pool {
	t.Helper()
	pool, err := f.svc.CreatePool(context.Background(), name, members)
	require.NoError(t, err)
	return pool
}

func (f *fixture) lease(t *testing.T, name, pool string) *Lease {
	t.Helper()
	lease, err := f.svc.CreateLease(name, pool, bootURL)
	require.NoError(t, err)
	return lease
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	_, err := NewService(Config{Hosts: saltest.NewHosts()})
	assert.Error(t, err)

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	_, err = NewService(Config{Store: store})
	assert.Error(t, err)
}

func TestValidateMember(t *testing.T) {
	f := newFixture(t, "rack-1")
	f.hosts.Add(&saltest.Host{Service: types.HostService{Name: "ipmi-1", Kind: types.HostKindIPMI, Installed: true}})
	f.hosts.Add(&saltest.Host{Service: types.HostService{Name: "vm-1", Kind: "zeroboot-vm-host", Installed: true}})
	f.hosts.Add(&saltest.Host{Service: types.HostService{Name: "fresh", Kind: types.HostKindRacktivity}})
	pool := f.pool(t, "p")

	tests := []struct {
		host    string
		wantErr error
	}{
		{host: "rack-1"},
		{host: "ipmi-1"},
		{host: "vm-1", wantErr: types.ErrInvalidBackingService},
		{host: "fresh", wantErr: types.ErrServiceNotInstalled},
		{host: "missing", wantErr: types.ErrInvalidBackingService},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			err := pool.ValidateMember(context.Background(), tt.host)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestCreatePool(t *testing.T) {
	f := newFixture(t, "h1", "h2")
	ctx := context.Background()

	_, err := f.svc.CreatePool(ctx, "p", []string{"h1", "h1"})
	assert.True(t, errors.Is(err, types.ErrDuplicateMember))

	_, err = f.svc.CreatePool(ctx, "p", []string{"h1", "nope"})
	assert.True(t, errors.Is(err, types.ErrInvalidBackingService))

	_, err = f.svc.CreatePool(ctx, "", nil)
	assert.True(t, errors.Is(err, types.ErrValidation))

	pool := f.pool(t, "p", "h1", "h2")
	members, err := pool.Members()
	require.NoError(t, err)
	assert.Equal(t, []string{"h1", "h2"}, members)

	_, err = f.svc.CreatePool(ctx, "p", nil)
	assert.True(t, errors.Is(err, types.ErrAlreadyPresent))

	_, err = f.svc.Pool("other")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestAddIsUnique(t *testing.T) {
	f := newFixture(t, "h1", "h2")
	pool := f.pool(t, "p")
	ctx := context.Background()

	require.NoError(t, pool.Add(ctx, "h1"))
	err := pool.Add(ctx, "h1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrAlreadyPresent))

	members, err := pool.Members()
	require.NoError(t, err)
	assert.Equal(t, []string{"h1"}, members)
	assert.Equal(t, 1, f.events.count(events.EventPoolMemberAdded))
}

func TestAddValidatesMember(t *testing.T) {
	f := newFixture(t)
	f.hosts.Add(&saltest.Host{Service: types.HostService{Name: "fresh", Kind: types.HostKindIPMI}})
	pool := f.pool(t, "p")

	err := pool.Add(context.Background(), "fresh")
	assert.True(t, errors.Is(err, types.ErrServiceNotInstalled))

	members, err := pool.Members()
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestValidateRejectsLiteralDuplicates(t *testing.T) {
	f := newFixture(t, "h1", "h2")
	require.NoError(t, f.store.CreatePool(&types.HostPool{Name: "p", Members: []string{"h1", "h2", "h1"}}))

	pool, err := f.svc.Pool("p")
	require.NoError(t, err)
	err = pool.Validate(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrDuplicateMember))
}

func TestRemoveIsIdempotent(t *testing.T) {
	f := newFixture(t, "h1", "h2", "h3")
	pool := f.pool(t, "p", "h1", "h2", "h3")

	for i := 0; i < 3; i++ {
		require.NoError(t, pool.Remove("absent"))
	}
	members, err := pool.Members()
	require.NoError(t, err)
	assert.Equal(t, []string{"h1", "h2", "h3"}, members)

	require.NoError(t, pool.Remove("h2"))
	require.NoError(t, pool.Remove("h2"))
	members, err = pool.Members()
	require.NoError(t, err)
	assert.Equal(t, []string{"h1", "h3"}, members)
	assert.Equal(t, 1, f.events.count(events.EventPoolMemberRemoved))
}

func TestAddRemoveRoundTrip(t *testing.T) {
	f := newFixture(t, "h1", "h2", "h3")
	pool := f.pool(t, "p", "h1", "h2")
	ctx := context.Background()

	before, err := pool.Members()
	require.NoError(t, err)

	require.NoError(t, pool.Add(ctx, "h3"))
	require.NoError(t, pool.Remove("h3"))

	after, err := pool.Members()
	require.NoError(t, err)
	// Order is preserved as well as the set
	assert.Equal(t, before, after)
}

func installLeaseRecord(t *testing.T, f *fixture, name, pool, host string) {
	t.Helper()
	require.NoError(t, f.store.CreateLease(&types.Lease{
		Name:         name,
		PoolName:     pool,
		CallerID:     "caller-" + name,
		BootImageURL: bootURL,
		HostName:     host,
		State:        types.LeaseStateInstalled,
	}))
}

func TestUnreservedHostExhaustion(t *testing.T) {
	hosts := []string{"h1", "h2", "h3", "h4"}
	f := newFixture(t, hosts...)
	pool := f.pool(t, "p", hosts...)
	ctx := context.Background()

	// N-1 bound leaves exactly the unbound member
	for _, h := range []string{"h1", "h2", "h4"} {
		installLeaseRecord(t, f, "lease-"+h, "p", h)
	}
	host, err := pool.UnreservedHost(ctx, "someone")
	require.NoError(t, err)
	assert.Equal(t, "h3", host)

	installLeaseRecord(t, f, "lease-h3", "p", "h3")
	_, err = pool.UnreservedHost(ctx, "someone")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNoFreeHosts))

	// The caller's own lease does not count against it
	host, err = pool.UnreservedHost(ctx, "caller-lease-h2")
	require.NoError(t, err)
	assert.Equal(t, "h2", host)
}

func TestUnreservedHostSkipsUninstalledAndUnbound(t *testing.T) {
	f := newFixture(t, "h1", "h2")
	pool := f.pool(t, "p", "h1", "h2")

	require.NoError(t, f.store.CreateLease(&types.Lease{
		Name: "pending", PoolName: "p", CallerID: "c1", HostName: "h1", State: types.LeaseStateEmpty,
	}))
	require.NoError(t, f.store.CreateLease(&types.Lease{
		Name: "broken", PoolName: "p", CallerID: "c2", State: types.LeaseStateInstalled,
	}))

	host, err := pool.UnreservedHost(context.Background(), "me")
	require.NoError(t, err)
	assert.Equal(t, "h1", host)

	reserved, err := pool.Reserved(context.Background(), "me")
	require.NoError(t, err)
	assert.Empty(t, reserved)
}

func TestReservationScenario(t *testing.T) {
	f := newFixture(t, "h1", "h2")
	f.pool(t, "p", "h1", "h2")
	ctx := context.Background()

	r1 := f.lease(t, "r1", "p")
	r2 := f.lease(t, "r2", "p")
	r3 := f.lease(t, "r3", "p")

	require.NoError(t, r1.Install(ctx))
	require.NoError(t, r2.Install(ctx))

	rec1, err := r1.Record()
	require.NoError(t, err)
	rec2, err := r2.Record()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"h1", "h2"}, []string{rec1.HostName, rec2.HostName})
	assert.NotEqual(t, rec1.HostName, rec2.HostName)

	err = r3.Install(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNoFreeHosts))

	status, err := r3.Status()
	require.NoError(t, err)
	assert.Equal(t, types.StatusNotInstalled, status)

	host := f.hosts.Get(rec1.HostName)
	assert.Equal(t, []string{"boot:" + bootURL, "cycle"}, host.CallLog())
	assert.True(t, host.PoweredOn())
	assert.Equal(t, 2, f.events.count(events.EventHostReserved))

	// Releasing r1 frees its host for r3
	require.NoError(t, r1.Uninstall(ctx))
	require.NoError(t, r3.Install(ctx))
	rec3, err := r3.Record()
	require.NoError(t, err)
	assert.Equal(t, rec1.HostName, rec3.HostName)
}

func TestConcurrentInstallsGetDistinctHosts(t *testing.T) {
	const n = 8
	var names []string
	for i := 0; i < n; i++ {
		names = append(names, fmt.Sprintf("h%d", i))
	}
	f := newFixture(t, names...)
	f.pool(t, "p", names...)

	var leases []*Lease
	for i := 0; i < n; i++ {
		leases = append(leases, f.lease(t, fmt.Sprintf("r%d", i), "p"))
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, l := range leases {
		wg.Add(1)
		go func(i int, l *Lease) {
			defer wg.Done()
			errs[i] = l.Install(context.Background())
		}(i, l)
	}
	wg.Wait()

	var got []string
	for i, l := range leases {
		require.NoError(t, errs[i])
		rec, err := l.Record()
		require.NoError(t, err)
		got = append(got, rec.HostName)
	}
	sort.Strings(got)
	sort.Strings(names)
	assert.Equal(t, names, got)
}

func TestInstallFailureClearsBinding(t *testing.T) {
	f := newFixture(t, "h1")
	f.pool(t, "p", "h1")
	f.hosts.Get("h1").CycleErr = errors.New("pdu timeout")
	ctx := context.Background()

	lease := f.lease(t, "r1", "p")
	err := lease.Install(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrRemoteCall))

	rec, err := lease.Record()
	require.NoError(t, err)
	assert.Equal(t, types.LeaseStateEmpty, rec.State)
	assert.Empty(t, rec.HostName)
	assert.NoError(t, lease.Validate())

	// The host is free again once the power controller recovers
	f.hosts.Get("h1").CycleErr = nil
	require.NoError(t, lease.Install(ctx))
	status, err := lease.Status()
	require.NoError(t, err)
	assert.Equal(t, types.StatusInstalled, status)
}

func TestInstallTwiceFails(t *testing.T) {
	f := newFixture(t, "h1", "h2")
	f.pool(t, "p", "h1", "h2")
	lease := f.lease(t, "r1", "p")
	ctx := context.Background()

	require.NoError(t, lease.Install(ctx))
	err := lease.Install(ctx)
	assert.True(t, errors.Is(err, types.ErrStateCheck))
}

func TestActionsRequireInstalled(t *testing.T) {
	f := newFixture(t, "h1")
	f.pool(t, "p", "h1")
	lease := f.lease(t, "r1", "p")
	ctx := context.Background()

	actions := map[string]func() error{
		"power on":    func() error { return lease.PowerOn(ctx) },
		"power off":   func() error { return lease.PowerOff(ctx) },
		"power cycle": func() error { return lease.PowerCycle(ctx) },
		"power status": func() error {
			_, err := lease.PowerStatus(ctx)
			return err
		},
		"boot target": func() error { return lease.ConfigureBootTarget(ctx, "http://other") },
		"monitor":     func() error { return lease.Monitor(ctx) },
	}

	for name, action := range actions {
		t.Run(name, func(t *testing.T) {
			err := action()
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrStateCheck))
		})
	}
	assert.Empty(t, f.hosts.Get("h1").CallLog())
}

func TestPowerActions(t *testing.T) {
	f := newFixture(t, "h1")
	f.pool(t, "p", "h1")
	lease := f.lease(t, "r1", "p")
	ctx := context.Background()
	require.NoError(t, lease.Install(ctx))
	host := f.hosts.Get("h1")

	require.NoError(t, lease.PowerOff(ctx))
	on, err := lease.PowerStatus(ctx)
	require.NoError(t, err)
	assert.False(t, on)

	require.NoError(t, lease.PowerOn(ctx))
	on, err = lease.PowerStatus(ctx)
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, lease.ConfigureBootTarget(ctx, "http://boot.example/v2"))
	rec, err := lease.Record()
	require.NoError(t, err)
	assert.Equal(t, "http://boot.example/v2", rec.BootImageURL)
	assert.Equal(t, "http://boot.example/v2", host.Boot)

	host.Err = errors.New("unreachable")
	err = lease.PowerCycle(ctx)
	assert.True(t, errors.Is(err, types.ErrRemoteCall))
}

func TestMonitorPowersHostBackOn(t *testing.T) {
	f := newFixture(t, "h1", "h2")
	f.pool(t, "p", "h1", "h2")
	ctx := context.Background()

	installed := f.lease(t, "r1", "p")
	require.NoError(t, installed.Install(ctx))
	f.lease(t, "r2", "p")

	host := f.hosts.Get("h1")
	host.On = false

	require.NoError(t, f.svc.MonitorLeases(ctx))
	assert.True(t, host.PoweredOn())
	assert.Equal(t, []string{"boot:" + bootURL, "cycle", "status", "on"}, host.CallLog())

	// Already on: status only
	require.NoError(t, installed.Monitor(ctx))
	assert.Equal(t, "status", host.CallLog()[len(host.CallLog())-1])
	assert.Empty(t, f.hosts.Get("h2").CallLog())
}

func TestUninstall(t *testing.T) {
	f := newFixture(t, "h1")
	f.pool(t, "p", "h1")
	lease := f.lease(t, "r1", "p")
	ctx := context.Background()

	// Nothing bound yet
	require.NoError(t, lease.Uninstall(ctx))

	require.NoError(t, lease.Install(ctx))
	host := f.hosts.Get("h1")
	host.Err = errors.New("pdu offline")

	require.NoError(t, lease.Uninstall(ctx))
	rec, err := lease.Record()
	require.NoError(t, err)
	assert.Equal(t, types.LeaseStateEmpty, rec.State)
	assert.Empty(t, rec.HostName)
	assert.Equal(t, 1, f.events.count(events.EventHostReleased))

	require.NoError(t, lease.Uninstall(ctx))
}

func TestStatusAndValidate(t *testing.T) {
	f := newFixture(t, "h1")
	f.pool(t, "p", "h1")

	tests := []struct {
		name       string
		record     types.Lease
		wantStatus types.InstallStatus
		wantValid  bool
	}{
		{
			name:       "empty",
			record:     types.Lease{State: types.LeaseStateEmpty},
			wantStatus: types.StatusNotInstalled,
			wantValid:  true,
		},
		{
			name:       "installed",
			record:     types.Lease{State: types.LeaseStateInstalled, HostName: "h1"},
			wantStatus: types.StatusInstalled,
			wantValid:  true,
		},
		{
			name:       "bound before install",
			record:     types.Lease{State: types.LeaseStateEmpty, HostName: "h1"},
			wantStatus: types.StatusError,
		},
		{
			name:       "installed without host",
			record:     types.Lease{State: types.LeaseStateInstalled},
			wantStatus: types.StatusError,
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := tt.record
			record.Name = fmt.Sprintf("lease-%d", i)
			record.PoolName = "p"
			record.BootImageURL = bootURL
			require.NoError(t, f.store.CreateLease(&record))

			lease, err := f.svc.Lease(record.Name)
			require.NoError(t, err)

			status, err := lease.Status()
			assert.Equal(t, tt.wantStatus, status)
			if tt.wantValid {
				assert.NoError(t, err)
				assert.NoError(t, lease.Validate())
			} else {
				assert.True(t, errors.Is(err, types.ErrValidation))
				assert.True(t, errors.Is(lease.Validate(), types.ErrValidation))
			}
		})
	}

	_, err := f.svc.Lease("missing")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestCreateLeaseValidation(t *testing.T) {
	f := newFixture(t, "h1")
	f.pool(t, "p", "h1")

	_, err := f.svc.CreateLease("", "p", bootURL)
	assert.True(t, errors.Is(err, types.ErrValidation))
	_, err = f.svc.CreateLease("r1", "p", "")
	assert.True(t, errors.Is(err, types.ErrValidation))
	_, err = f.svc.CreateLease("r1", "nope", bootURL)
	assert.True(t, errors.Is(err, types.ErrNotFound))

	lease := f.lease(t, "r1", "p")
	rec, err := lease.Record()
	require.NoError(t, err)
	assert.Len(t, rec.CallerID, 36)

	_, err = f.svc.CreateLease("r1", "p", bootURL)
	assert.True(t, errors.Is(err, types.ErrAlreadyPresent))
}

func TestDeletePoolAndLease(t *testing.T) {
	f := newFixture(t, "h1")
	f.pool(t, "p", "h1")
	lease := f.lease(t, "r1", "p")
	ctx := context.Background()
	require.NoError(t, lease.Install(ctx))

	err := f.svc.DeletePool("p")
	assert.True(t, errors.Is(err, types.ErrStateCheck))

	require.NoError(t, f.svc.DeleteLease(ctx, "r1"))
	assert.False(t, f.hosts.Get("h1").PoweredOn())
	require.NoError(t, f.svc.DeleteLease(ctx, "r1"))

	require.NoError(t, f.svc.DeletePool("p"))
	pools, err := f.svc.Pools()
	require.NoError(t, err)
	assert.Empty(t, pools)
}
