package sal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAgentRejectsBadURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "http", url: "http://agent:8080", wantErr: false},
		{name: "https with trailing slash", url: "https://agent/", wantErr: false},
		{name: "missing scheme", url: "agent:8080", wantErr: true},
		{name: "unsupported scheme", url: "ftp://agent", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAgent(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAgentBackendCalls(t *testing.T) {
	var created types.NamespaceDefinition
	mux := http.NewServeMux()
	mux.HandleFunc("/backends/zdb-1/info", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(types.BackendInfo{
			FreeBytes: 20 * types.GiB,
			DiskType:  types.DiskTypeHDD,
			Mode:      types.ZDBModeUser,
			Running:   true,
		})
	})
	mux.HandleFunc("/backends/zdb-1/namespaces", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode([]string{"default"})
		case http.MethodPost:
			_ = json.NewDecoder(r.Body).Decode(&created)
			w.WriteHeader(http.StatusCreated)
		}
	})
	mux.HandleFunc("/backends", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"name": "zdb-2"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	agent, err := NewAgent(srv.URL)
	require.NoError(t, err)
	ctx := context.Background()

	info, err := agent.Backend("zdb-1").Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20*types.GiB, info.FreeBytes)
	assert.True(t, info.Running)

	names, err := agent.Backend("zdb-1").NamespaceList(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"default"}, names)

	err = agent.Backend("zdb-1").NamespaceCreate(ctx, types.NamespaceDefinition{Name: "ns1", SizeGiB: 10})
	require.NoError(t, err)
	assert.Equal(t, "ns1", created.Name)
	assert.Equal(t, int64(10), created.SizeGiB)

	name, err := agent.CreateBackend(ctx, types.BackendSpec{MountPoint: "/mnt/a"})
	require.NoError(t, err)
	assert.Equal(t, "zdb-2", name)
}

func TestAgentErrorKinds(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/hosts/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such host", http.StatusNotFound)
	})
	mux.HandleFunc("/hosts/broken/power/cycle", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "pdu unreachable", http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	agent, err := NewAgent(srv.URL)
	require.NoError(t, err)

	_, err = agent.Describe(context.Background(), "missing")
	assert.True(t, errors.Is(err, types.ErrNotFound))

	err = agent.Host("broken").PowerCycle(context.Background())
	assert.True(t, errors.Is(err, types.ErrRemoteCall))
	assert.Contains(t, err.Error(), "pdu unreachable")
}

func TestAgentHonorsContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	agent, err := NewAgent(srv.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = agent.Gateway("gw").Info(ctx)
	assert.True(t, errors.Is(err, types.ErrRemoteCall))
}

func TestTimeoutsWithDefaults(t *testing.T) {
	got := Timeouts{Power: 5}.WithDefaults()
	assert.Equal(t, DefaultTimeouts().Info, got.Info)
	assert.Equal(t, DefaultTimeouts().Install, got.Install)
	assert.EqualValues(t, 5, got.Power)
}
