package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/failover"
	"github.com/cuemby/burrow/pkg/placement"
	"github.com/cuemby/burrow/pkg/reservation"
	"github.com/cuemby/burrow/pkg/sal"
	"github.com/cuemby/burrow/pkg/sal/saltest"
	"github.com/cuemby/burrow/pkg/scheduler"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server   *httptest.Server
	store    *storage.BoltStore
	node     *saltest.Node
	hosts    *saltest.Hosts
	gateways *saltest.Gateways
	sched    *scheduler.Scheduler
}

func newTestEnv(t *testing.T, readOnly bool) *testEnv {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	timeouts := sal.Timeouts{Info: time.Second, Install: time.Second, Power: time.Second, Default: time.Second}
	node := saltest.NewNode(types.FreeDisk{
		MountPoint: "/mnt/sda",
		DiskID:     "sda",
		SizeBytes:  100 * types.GiB,
		DiskType:   types.DiskTypeSSD,
	})
	hosts := saltest.NewHosts("host-a", "host-b")
	gateways := saltest.NewGateways("gw-1", "gw-2")

	planner, err := placement.NewPlanner(placement.Config{Node: node, Recorder: store, Timeouts: timeouts})
	require.NoError(t, err)
	reservations, err := reservation.NewService(reservation.Config{Store: store, Hosts: hosts, Timeouts: timeouts})
	require.NoError(t, err)
	manager, err := failover.NewManager(failover.Config{Store: store, Gateways: gateways, Timeouts: timeouts})
	require.NoError(t, err)
	sched := scheduler.NewScheduler()

	srv, err := NewServer(Config{
		Store:        store,
		Planner:      planner,
		Reservations: reservations,
		Failover:     manager,
		Scheduler:    sched,
		ReadOnly:     readOnly,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, store: store, node: node, hosts: hosts, gateways: gateways, sched: sched}
}

func (e *testEnv) do(t *testing.T, method, path string, body, out interface{}) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestNewServerRequiresServices(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{types.ErrValidation, http.StatusBadRequest},
		{types.ErrDuplicateMember, http.StatusBadRequest},
		{types.ErrNotFound, http.StatusNotFound},
		{types.ErrNoNamespaceAvailability, http.StatusConflict},
		{types.ErrNoFreeHosts, http.StatusConflict},
		{types.ErrAlreadyPresent, http.StatusConflict},
		{types.ErrStateCheck, http.StatusConflict},
		{types.ErrServiceNotInstalled, http.StatusUnprocessableEntity},
		{types.ErrInvalidBackingService, http.StatusUnprocessableEntity},
		{types.ErrRemoteCall, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(fmt.Errorf("wrapped: %w", tt.err)))
		})
	}
}

func TestProbeEndpoints(t *testing.T) {
	env := newTestEnv(t, false)

	var live map[string]string
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/live", nil, &live))
	assert.Equal(t, "alive", live["status"])

	resp, err := http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNamespaceLifecycle(t *testing.T) {
	env := newTestEnv(t, false)

	var p types.Placement
	status := env.do(t, http.MethodPost, "/api/v1/namespaces", types.NamespaceRequest{
		DiskClass:     types.DiskClassSSD,
		Mode:          types.ZDBModeUser,
		SizeGiB:       10,
		RequestedName: "ns1",
	}, &p)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "ns1", p.Namespace)
	assert.Equal(t, types.PhaseFreeDisk, p.Phase)
	assert.Equal(t, "/mnt/sda", p.MountPath)

	var list []*types.Placement
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/namespaces", nil, &list))
	require.Len(t, list, 1)
	assert.Equal(t, p.Backend, list[0].Backend)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/v1/namespaces/"+p.Backend+"/ns1", nil, nil))
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/namespaces", nil, &list))
	assert.Empty(t, list)
}

func TestNamespaceErrors(t *testing.T) {
	env := newTestEnv(t, false)

	tests := []struct {
		name   string
		body   interface{}
		status int
		kind   string
	}{
		{
			name:   "zero size",
			body:   types.NamespaceRequest{DiskClass: types.DiskClassSSD, Mode: types.ZDBModeUser},
			status: http.StatusBadRequest,
			kind:   "validation",
		},
		{
			name:   "no capacity",
			body:   types.NamespaceRequest{DiskClass: types.DiskClassSSD, Mode: types.ZDBModeUser, SizeGiB: 500},
			status: http.StatusConflict,
			kind:   "no-namespace-availability",
		},
		{
			name:   "unknown field",
			body:   map[string]interface{}{"bogus": true},
			status: http.StatusBadRequest,
			kind:   "validation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp ErrorResponse
			assert.Equal(t, tt.status, env.do(t, http.MethodPost, "/api/v1/namespaces", tt.body, &resp))
			assert.Equal(t, tt.kind, resp.Kind)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestMountPath(t *testing.T) {
	env := newTestEnv(t, false)

	var resp MountPathResponse
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/mountpath?class=ssd&size=10", nil, &resp))
	assert.Equal(t, "/mnt/sda", resp.MountPath)

	var errResp ErrorResponse
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/mountpath?class=ssd&size=ten", nil, &errResp))
}

func TestPoolEndpoints(t *testing.T) {
	env := newTestEnv(t, false)

	var pool types.HostPool
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/v1/pools",
		CreatePoolRequest{Name: "p1", Members: []string{"host-a"}}, &pool))
	assert.Equal(t, []string{"host-a"}, pool.Members)

	var errResp ErrorResponse
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/api/v1/pools",
		CreatePoolRequest{Name: "p1"}, &errResp))
	assert.Equal(t, "already-present", errResp.Kind)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/pools/p1/members", MemberRequest{Host: "host-b"}, &pool))
	assert.Equal(t, []string{"host-a", "host-b"}, pool.Members)

	assert.Equal(t, http.StatusUnprocessableEntity, env.do(t, http.MethodPost, "/api/v1/pools/p1/members",
		MemberRequest{Host: "ghost"}, &errResp))
	assert.Equal(t, "invalid-backing-service", errResp.Kind)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodPost, "/api/v1/pools/p1/validate", nil, nil))

	var host HostResponse
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/pools/p1/unreserved", nil, &host))
	assert.Equal(t, "host-a", host.Host)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/api/v1/pools/p1/members/host-a", nil, &pool))
	assert.Equal(t, []string{"host-b"}, pool.Members)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/pools/missing", nil, &errResp))
	assert.Equal(t, "not-found", errResp.Kind)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/v1/pools/p1", nil, nil))
}

func TestLeaseEndpoints(t *testing.T) {
	env := newTestEnv(t, false)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/v1/pools",
		CreatePoolRequest{Name: "p1", Members: []string{"host-a"}}, nil))

	var lease LeaseResponse
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/v1/leases",
		CreateLeaseRequest{Name: "r1", Pool: "p1", BootImageURL: "http://boot/zos"}, &lease))
	assert.Equal(t, types.StatusNotInstalled, lease.Status)

	var errResp ErrorResponse
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/api/v1/leases/r1/power/on", nil, &errResp))
	assert.Equal(t, "state-check", errResp.Kind)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/leases/r1/install", nil, &lease))
	assert.Equal(t, types.StatusInstalled, lease.Status)
	assert.Equal(t, "host-a", lease.Lease.HostName)

	var power PowerResponse
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/leases/r1/power", nil, &power))
	assert.True(t, power.On)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/leases/r1/power/off", nil, &lease))
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/leases/r1/power", nil, &power))
	assert.False(t, power.On)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/api/v1/leases/r1/boot", BootRequest{URL: "http://boot/next"}, &lease))
	assert.Equal(t, "http://boot/next", lease.Lease.BootImageURL)

	// A second lease finds the pool exhausted
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/v1/leases",
		CreateLeaseRequest{Name: "r2", Pool: "p1", BootImageURL: "http://boot/zos"}, nil))
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/api/v1/leases/r2/install", nil, &errResp))
	assert.Equal(t, "no-free-hosts", errResp.Kind)

	var leases []*types.Lease
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/leases", nil, &leases))
	assert.Len(t, leases, 2)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/v1/leases/r1", nil, nil))
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/leases/r1", nil, &errResp))
}

func TestGatewayPairEndpoints(t *testing.T) {
	env := newTestEnv(t, false)

	var pair types.GatewayPair
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/v1/gateways",
		CreatePairRequest{Name: "vdisk", Active: "gw-1", Passive: "gw-2"}, &pair))
	assert.Equal(t, "gw-1", pair.Active)

	var tick TickResponse
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/gateways/vdisk/tick", nil, &tick))
	assert.Equal(t, types.ActionNone, tick.Action)

	env.gateways.Get("gw-1").SetUp(false)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/gateways/vdisk/tick", nil, &tick))
	assert.Equal(t, types.ActionPromote, tick.Action)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/gateways/vdisk", nil, &pair))
	assert.Equal(t, "gw-2", pair.Active)
	assert.Equal(t, "gw-1", pair.Passive)

	env.gateways.Get("gw-1").SetUp(true)
	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodPost, "/api/v1/gateways/vdisk/shards/monitor", nil, nil))

	var errResp ErrorResponse
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/v1/gateways",
		CreatePairRequest{Name: "bad", Active: "gw-1", Passive: "gw-1"}, &errResp))

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/v1/gateways/vdisk", nil, nil))
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/v1/gateways/vdisk/tick", nil, &errResp))
}

func TestActionEndpoints(t *testing.T) {
	env := newTestEnv(t, false)

	runs := 0
	require.NoError(t, env.sched.Register("noop", "@every 1h", func(ctx context.Context) error {
		runs++
		return nil
	}))

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodPost, "/api/v1/actions/noop/run", nil, nil))
	assert.Equal(t, 1, runs)

	var actions []scheduler.ActionInfo
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/actions", nil, &actions))
	require.Len(t, actions, 1)
	assert.Equal(t, int64(1), actions[0].Runs)

	var errResp ErrorResponse
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/v1/actions/missing/run", nil, &errResp))
}

func TestReadOnly(t *testing.T) {
	env := newTestEnv(t, true)

	var errResp ErrorResponse
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, "/api/v1/pools",
		CreatePoolRequest{Name: "p1"}, &errResp))
	assert.Equal(t, "forbidden", errResp.Kind)

	var pools []*types.HostPool
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/pools", nil, &pools))
	assert.Empty(t, pools)

	// Probes stay reachable
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/live", nil, nil))
}

func TestIsReadOnlyMethod(t *testing.T) {
	tests := []struct {
		method string
		want   bool
	}{
		{http.MethodGet, true},
		{http.MethodHead, true},
		{http.MethodOptions, true},
		{http.MethodPost, false},
		{http.MethodPut, false},
		{http.MethodDelete, false},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			assert.Equal(t, tt.want, isReadOnlyMethod(tt.method))
		})
	}
}
