package sal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuemby/burrow/pkg/types"
)

// Agent talks JSON over HTTP to the system-abstraction-layer agent that
// fronts nodes, host-control services and gateways. It implements Node,
// HostDirectory and GatewayDirectory.
type Agent struct {
	baseURL string
	http    *http.Client
}

// NewAgent creates an agent client for baseURL
func NewAgent(baseURL string) (*Agent, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid agent url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid agent url scheme: %q", u.Scheme)
	}

	return &Agent{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			// Per-call bounds come from the caller's context
			Timeout: 10 * time.Minute,
		},
	}, nil
}

// do sends one request. Transport failures and non-2xx answers are wrapped
// in ErrRemoteCall.
func (a *Agent) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", types.ErrRemoteCall, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s %s: %s", types.ErrNotFound, method, path, strings.TrimSpace(string(msg)))
		}
		return fmt.Errorf("%w: %s %s: status %d: %s", types.ErrRemoteCall, method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: decode: %v", types.ErrRemoteCall, method, path, err)
	}
	return nil
}

func escape(name string) string {
	return url.PathEscape(name)
}

// Node operations

func (a *Agent) ListFreeDisks(ctx context.Context, class types.DiskClass) ([]types.FreeDisk, error) {
	var disks []types.FreeDisk
	err := a.do(ctx, http.MethodGet, "/disks?class="+url.QueryEscape(string(class)), nil, &disks)
	return disks, err
}

func (a *Agent) ListBackends(ctx context.Context) ([]types.Backend, error) {
	var backends []types.Backend
	err := a.do(ctx, http.MethodGet, "/backends", nil, &backends)
	return backends, err
}

func (a *Agent) CreateBackend(ctx context.Context, spec types.BackendSpec) (string, error) {
	var resp struct {
		Name string `json:"name"`
	}
	if err := a.do(ctx, http.MethodPost, "/backends", spec, &resp); err != nil {
		return "", err
	}
	if resp.Name == "" {
		return "", fmt.Errorf("%w: agent returned empty backend name", types.ErrRemoteCall)
	}
	return resp.Name, nil
}

func (a *Agent) Backend(name string) Backend {
	return &agentBackend{agent: a, path: "/backends/" + escape(name)}
}

type agentBackend struct {
	agent *Agent
	path  string
}

func (b *agentBackend) Info(ctx context.Context) (types.BackendInfo, error) {
	var info types.BackendInfo
	err := b.agent.do(ctx, http.MethodGet, b.path+"/info", nil, &info)
	return info, err
}

func (b *agentBackend) NamespaceList(ctx context.Context) ([]string, error) {
	var names []string
	err := b.agent.do(ctx, http.MethodGet, b.path+"/namespaces", nil, &names)
	return names, err
}

func (b *agentBackend) NamespaceCreate(ctx context.Context, ns types.NamespaceDefinition) error {
	return b.agent.do(ctx, http.MethodPost, b.path+"/namespaces", ns, nil)
}

func (b *agentBackend) NamespaceDelete(ctx context.Context, name string) error {
	return b.agent.do(ctx, http.MethodDelete, b.path+"/namespaces/"+escape(name), nil, nil)
}

func (b *agentBackend) Install(ctx context.Context) error {
	return b.agent.do(ctx, http.MethodPost, b.path+"/install", nil, nil)
}

func (b *agentBackend) Start(ctx context.Context) error {
	return b.agent.do(ctx, http.MethodPost, b.path+"/start", nil, nil)
}

// Host operations

func (a *Agent) Describe(ctx context.Context, name string) (types.HostService, error) {
	var svc types.HostService
	err := a.do(ctx, http.MethodGet, "/hosts/"+escape(name), nil, &svc)
	if svc.Name == "" {
		svc.Name = name
	}
	return svc, err
}

func (a *Agent) Host(name string) Host {
	return &agentHost{agent: a, path: "/hosts/" + escape(name)}
}

type agentHost struct {
	agent *Agent
	path  string
}

func (h *agentHost) PowerOn(ctx context.Context) error {
	return h.agent.do(ctx, http.MethodPost, h.path+"/power/on", nil, nil)
}

func (h *agentHost) PowerOff(ctx context.Context) error {
	return h.agent.do(ctx, http.MethodPost, h.path+"/power/off", nil, nil)
}

func (h *agentHost) PowerCycle(ctx context.Context) error {
	return h.agent.do(ctx, http.MethodPost, h.path+"/power/cycle", nil, nil)
}

func (h *agentHost) PowerStatus(ctx context.Context) (bool, error) {
	var resp struct {
		On bool `json:"on"`
	}
	err := h.agent.do(ctx, http.MethodGet, h.path+"/power", nil, &resp)
	return resp.On, err
}

func (h *agentHost) ConfigureBootTarget(ctx context.Context, target string) error {
	return h.agent.do(ctx, http.MethodPut, h.path+"/boot", map[string]string{"url": target}, nil)
}

// Gateway operations

func (a *Agent) Gateway(name string) Gateway {
	return &agentGateway{agent: a, path: "/gateways/" + escape(name)}
}

type agentGateway struct {
	agent *Agent
	path  string
}

func (g *agentGateway) Info(ctx context.Context) (types.GatewayInfo, error) {
	var info types.GatewayInfo
	err := g.agent.do(ctx, http.MethodGet, g.path+"/info", nil, &info)
	return info, err
}

func (g *agentGateway) TlogHandle(ctx context.Context) (types.TlogHandle, error) {
	var handle types.TlogHandle
	err := g.agent.do(ctx, http.MethodGet, g.path+"/tlog", nil, &handle)
	return handle, err
}

func (g *agentGateway) NamespaceList(ctx context.Context) ([]string, error) {
	var names []string
	err := g.agent.do(ctx, http.MethodGet, g.path+"/namespaces", nil, &names)
	return names, err
}

func (g *agentGateway) SetNamespaces(ctx context.Context, namespaces []string) error {
	return g.agent.do(ctx, http.MethodPut, g.path+"/namespaces", namespaces, nil)
}

func (g *agentGateway) Redeploy(ctx context.Context, resetTlog bool) error {
	return g.agent.do(ctx, http.MethodPost, g.path+"/redeploy", map[string]bool{"reset_tlog": resetTlog}, nil)
}

func (g *agentGateway) Promote(ctx context.Context) error {
	return g.agent.do(ctx, http.MethodPost, g.path+"/promote", nil, nil)
}

func (g *agentGateway) UpdateMaster(ctx context.Context, handle types.TlogHandle) error {
	return g.agent.do(ctx, http.MethodPut, g.path+"/master", handle, nil)
}

func (g *agentGateway) Health(ctx context.Context) (types.GatewayHealth, error) {
	var health types.GatewayHealth
	err := g.agent.do(ctx, http.MethodGet, g.path+"/health", nil, &health)
	return health, err
}

func (g *agentGateway) HandleDataShardFailure(ctx context.Context, address string) error {
	return g.agent.do(ctx, http.MethodPost, g.path+"/shards/failure", map[string]string{"address": address}, nil)
}
