package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/scheduler"
	"github.com/cuemby/burrow/pkg/types"
)

// Client wraps the burrow HTTP API for CLI usage
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the API at addr. A bare host:port is
// treated as plain http.
func NewClient(addr string) (*Client, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid API address: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid API address %q: missing host", addr)
	}

	return &Client{
		baseURL: strings.TrimRight(u.String(), "/") + "/api/v1",
		http: &http.Client{
			// Installs wait for a power cycle; leave room for it
			Timeout: 15 * time.Minute,
		},
	}, nil
}

// Close releases idle connections
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to burrow API failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError rebuilds the error kind the server reported so callers can
// keep matching with errors.Is
func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var e api.ErrorResponse
	if err := json.Unmarshal(data, &e); err != nil || e.Error == "" {
		return fmt.Errorf("burrow API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if kind := types.KindError(e.Kind); kind != nil {
		return &apiError{kind: kind, msg: e.Error}
	}
	return errors.New(e.Error)
}

// apiError carries the server's message verbatim and its kind for errors.Is
type apiError struct {
	kind error
	msg  string
}

func (e *apiError) Error() string { return e.msg }
func (e *apiError) Unwrap() error { return e.kind }

// Namespaces

// CreateNamespace plans and creates one namespace
func (c *Client) CreateNamespace(ctx context.Context, req types.NamespaceRequest) (*types.Placement, error) {
	var p types.Placement
	if err := c.do(ctx, http.MethodPost, "/namespaces", req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateShards places count namespaces on distinct backends
func (c *Client) CreateShards(ctx context.Context, req types.NamespaceRequest, count int) ([]*types.Placement, error) {
	var out []*types.Placement
	err := c.do(ctx, http.MethodPost, "/namespaces/shards", api.ShardsRequest{Request: req, Count: count}, &out)
	return out, err
}

// ListNamespaces lists recorded allocations
func (c *Client) ListNamespaces(ctx context.Context) ([]*types.Placement, error) {
	var out []*types.Placement
	err := c.do(ctx, http.MethodGet, "/namespaces", nil, &out)
	return out, err
}

// DeleteNamespace deletes a namespace from its backend
func (c *Client) DeleteNamespace(ctx context.Context, backend, namespace string) error {
	return c.do(ctx, http.MethodDelete, "/namespaces/"+url.PathEscape(backend)+"/"+url.PathEscape(namespace), nil, nil)
}

// MountPath returns the mountpoint a new backend of this size and class would use
func (c *Client) MountPath(ctx context.Context, class types.DiskClass, sizeGiB int64) (string, error) {
	q := url.Values{}
	q.Set("class", string(class))
	q.Set("size", strconv.FormatInt(sizeGiB, 10))

	var out api.MountPathResponse
	if err := c.do(ctx, http.MethodGet, "/mountpath?"+q.Encode(), nil, &out); err != nil {
		return "", err
	}
	return out.MountPath, nil
}

// Pools

// CreatePool creates a pool with its initial members
func (c *Client) CreatePool(ctx context.Context, name string, members []string) (*types.HostPool, error) {
	var pool types.HostPool
	if err := c.do(ctx, http.MethodPost, "/pools", api.CreatePoolRequest{Name: name, Members: members}, &pool); err != nil {
		return nil, err
	}
	return &pool, nil
}

// GetPool returns a pool
func (c *Client) GetPool(ctx context.Context, name string) (*types.HostPool, error) {
	var pool types.HostPool
	if err := c.do(ctx, http.MethodGet, "/pools/"+url.PathEscape(name), nil, &pool); err != nil {
		return nil, err
	}
	return &pool, nil
}

// ListPools lists every pool
func (c *Client) ListPools(ctx context.Context) ([]*types.HostPool, error) {
	var out []*types.HostPool
	err := c.do(ctx, http.MethodGet, "/pools", nil, &out)
	return out, err
}

// DeletePool deletes a pool
func (c *Client) DeletePool(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/pools/"+url.PathEscape(name), nil, nil)
}

// AddPoolMember validates and appends a host to a pool
func (c *Client) AddPoolMember(ctx context.Context, pool, host string) (*types.HostPool, error) {
	var out types.HostPool
	if err := c.do(ctx, http.MethodPost, "/pools/"+url.PathEscape(pool)+"/members", api.MemberRequest{Host: host}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemovePoolMember removes a host from a pool
func (c *Client) RemovePoolMember(ctx context.Context, pool, host string) (*types.HostPool, error) {
	var out types.HostPool
	if err := c.do(ctx, http.MethodDelete, "/pools/"+url.PathEscape(pool)+"/members/"+url.PathEscape(host), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidatePool checks every member of a pool
func (c *Client) ValidatePool(ctx context.Context, pool string) error {
	return c.do(ctx, http.MethodPost, "/pools/"+url.PathEscape(pool)+"/validate", nil, nil)
}

// UnreservedHost returns the first member not held by another caller
func (c *Client) UnreservedHost(ctx context.Context, pool, callerID string) (string, error) {
	path := "/pools/" + url.PathEscape(pool) + "/unreserved"
	if callerID != "" {
		path += "?caller=" + url.QueryEscape(callerID)
	}
	var out api.HostResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	return out.Host, nil
}

// Leases

// CreateLease creates an empty lease
func (c *Client) CreateLease(ctx context.Context, name, pool, bootImageURL string) (*api.LeaseResponse, error) {
	var out api.LeaseResponse
	req := api.CreateLeaseRequest{Name: name, Pool: pool, BootImageURL: bootImageURL}
	if err := c.do(ctx, http.MethodPost, "/leases", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetLease returns a lease with its install status
func (c *Client) GetLease(ctx context.Context, name string) (*api.LeaseResponse, error) {
	var out api.LeaseResponse
	if err := c.do(ctx, http.MethodGet, "/leases/"+url.PathEscape(name), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListLeases lists every lease
func (c *Client) ListLeases(ctx context.Context) ([]*types.Lease, error) {
	var out []*types.Lease
	err := c.do(ctx, http.MethodGet, "/leases", nil, &out)
	return out, err
}

// DeleteLease uninstalls and deletes a lease
func (c *Client) DeleteLease(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/leases/"+url.PathEscape(name), nil, nil)
}

// LeaseAction runs one lease operation: install, uninstall, monitor,
// power/on, power/off or power/cycle
func (c *Client) LeaseAction(ctx context.Context, name, action string) (*api.LeaseResponse, error) {
	var out api.LeaseResponse
	if err := c.do(ctx, http.MethodPost, "/leases/"+url.PathEscape(name)+"/"+action, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PowerStatus reports whether the lease's host is powered on
func (c *Client) PowerStatus(ctx context.Context, name string) (bool, error) {
	var out api.PowerResponse
	if err := c.do(ctx, http.MethodGet, "/leases/"+url.PathEscape(name)+"/power", nil, &out); err != nil {
		return false, err
	}
	return out.On, nil
}

// ConfigureBoot points the lease's host at a new boot image
func (c *Client) ConfigureBoot(ctx context.Context, name, bootURL string) (*api.LeaseResponse, error) {
	var out api.LeaseResponse
	if err := c.do(ctx, http.MethodPut, "/leases/"+url.PathEscape(name)+"/boot", api.BootRequest{URL: bootURL}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Gateway pairs

// CreateGatewayPair creates a gateway pair
func (c *Client) CreateGatewayPair(ctx context.Context, name, active, passive string) (*types.GatewayPair, error) {
	var out types.GatewayPair
	req := api.CreatePairRequest{Name: name, Active: active, Passive: passive}
	if err := c.do(ctx, http.MethodPost, "/gateways", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetGatewayPair returns a pair with its current roles
func (c *Client) GetGatewayPair(ctx context.Context, name string) (*types.GatewayPair, error) {
	var out types.GatewayPair
	if err := c.do(ctx, http.MethodGet, "/gateways/"+url.PathEscape(name), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListGatewayPairs lists every pair
func (c *Client) ListGatewayPairs(ctx context.Context) ([]*types.GatewayPair, error) {
	var out []*types.GatewayPair
	err := c.do(ctx, http.MethodGet, "/gateways", nil, &out)
	return out, err
}

// DeleteGatewayPair stops managing a pair
func (c *Client) DeleteGatewayPair(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/gateways/"+url.PathEscape(name), nil, nil)
}

// TickGatewayPair runs one failover evaluation now
func (c *Client) TickGatewayPair(ctx context.Context, name string) (types.FailoverAction, error) {
	var out api.TickResponse
	if err := c.do(ctx, http.MethodPost, "/gateways/"+url.PathEscape(name)+"/tick", nil, &out); err != nil {
		return "", err
	}
	return out.Action, nil
}

// MonitorShards runs one shard health pass now
func (c *Client) MonitorShards(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/gateways/"+url.PathEscape(name)+"/shards/monitor", nil, nil)
}

// Recurring actions

// ListActions lists the registered recurring actions
func (c *Client) ListActions(ctx context.Context) ([]scheduler.ActionInfo, error) {
	var out []scheduler.ActionInfo
	err := c.do(ctx, http.MethodGet, "/actions", nil, &out)
	return out, err
}

// RunAction runs a recurring action immediately
func (c *Client) RunAction(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/actions/"+url.PathEscape(name)+"/run", nil, nil)
}
