package failover

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/health"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/sal"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// Side names a role within a pair
type Side string

const (
	SideActive  Side = "active"
	SidePassive Side = "passive"
)

// Hooks receives shard failures the controller detects but does not repair
type Hooks interface {
	TlogShardFailure(pair string, side Side, addresses []string)
	PassiveDataShardFailure(pair string, addresses []string)
}

// NopHooks ignores every report
type NopHooks struct{}

func (NopHooks) TlogShardFailure(string, Side, []string)  {}
func (NopHooks) PassiveDataShardFailure(string, []string) {}

// Config holds the controller's collaborators
type Config struct {
	Store    storage.Store
	Gateways sal.GatewayDirectory
	Events   events.Publisher
	Timeouts sal.Timeouts
	Health   health.Config
	Hooks    Hooks
}

func (c Config) withDefaults() Config {
	c.Timeouts = c.Timeouts.WithDefaults()
	if c.Health.Timeout == 0 {
		c.Health.Timeout = c.Timeouts.Info
	}
	if c.Hooks == nil {
		c.Hooks = NopHooks{}
	}
	return c
}

// Evaluate maps the liveness of both instances to a pair state
func Evaluate(activeUp, passiveUp bool) types.PairState {
	switch {
	case activeUp && passiveUp:
		return types.PairBothUp
	case activeUp:
		return types.PairPassiveDown
	case passiveUp:
		return types.PairActiveDown
	default:
		return types.PairBothDown
	}
}

// Controller drives one active/passive gateway pair. Tick and MonitorShards
// are synchronous and serialized against each other.
type Controller struct {
	pair string
	cfg  Config

	mu       sync.Mutex
	statuses map[string]*health.Status
	reported map[string]bool

	// mirrorPending is set once the active handled a data shard and cleared
	// when its namespace list reached the passive
	mirrorPending bool

	logger zerolog.Logger
}

// NewController creates a controller for the persisted pair named pair
func NewController(pair string, cfg Config) (*Controller, error) {
	if cfg.Store == nil || cfg.Gateways == nil {
		return nil, fmt.Errorf("failover controller requires a store and a gateway directory")
	}
	return &Controller{
		pair:     pair,
		cfg:      cfg.withDefaults(),
		statuses: make(map[string]*health.Status),
		reported: make(map[string]bool),
		logger:   log.WithGatewayPair(pair),
	}, nil
}

// Pair returns the persisted pair
func (c *Controller) Pair() (*types.GatewayPair, error) {
	pair, err := c.cfg.Store.GetGatewayPair(c.pair)
	if err != nil {
		return nil, fmt.Errorf("failed to load gateway pair %s: %w", c.pair, err)
	}
	return pair, nil
}

// alive runs a liveness check and folds it into the instance's status
func (c *Controller) alive(ctx context.Context, name string) bool {
	status, ok := c.statuses[name]
	if !ok {
		status = health.NewStatus()
		c.statuses[name] = status
	}

	result := health.NewGatewayChecker(name, c.cfg.Gateways.Gateway(name), c.cfg.Health.Timeout).Check(ctx)
	status.Update(result, c.cfg.Health)
	if !result.Healthy {
		c.logger.Debug().Str("gateway", name).Msg(result.Message)
	}
	return status.Healthy
}

// Tick checks both instances and takes the action their state calls for
func (c *Controller) Tick(ctx context.Context) (types.FailoverAction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pair, err := c.Pair()
	if err != nil {
		return types.ActionNone, err
	}

	activeUp := c.alive(ctx, pair.Active)
	passiveUp := c.alive(ctx, pair.Passive)
	state := Evaluate(activeUp, passiveUp)

	var action types.FailoverAction
	switch state {
	case types.PairBothDown:
		action = types.ActionRedeployBoth
		err = errors.Join(
			c.redeploy(ctx, pair, pair.Active, false),
			c.redeploy(ctx, pair, pair.Passive, true),
		)
	case types.PairPassiveDown:
		action = types.ActionRedeployPassive
		err = c.redeploy(ctx, pair, pair.Passive, true)
	case types.PairActiveDown:
		action = types.ActionPromote
		err = c.promote(ctx, pair)
	default:
		return types.ActionNone, nil
	}

	result := "success"
	if err != nil {
		result = "error"
	}
	metrics.FailoverActionsTotal.WithLabelValues(c.pair, string(action)).Inc()
	c.logger.Info().
		Str("state", string(state)).
		Str("action", string(action)).
		Str("result", result).
		Msg("failover tick")
	return action, err
}

func (c *Controller) redeploy(ctx context.Context, pair *types.GatewayPair, name string, resetTlog bool) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeouts.Install)
	defer cancel()

	if err := c.cfg.Gateways.Gateway(name).Redeploy(ctx, resetTlog); err != nil {
		return remote(fmt.Errorf("failed to redeploy gateway %s: %w", name, err))
	}
	delete(c.statuses, name)

	events.Emit(c.cfg.Events, events.EventGatewayRedeployed, fmt.Sprintf("gateway %s redeployed", name),
		map[string]string{"pair": pair.Name, "gateway": name, "reset_tlog": fmt.Sprintf("%t", resetTlog)})
	return nil
}

// promote makes the passive the new active, repoints the old active at its
// transaction log and redeploys it as the new passive
func (c *Controller) promote(ctx context.Context, pair *types.GatewayPair) error {
	passive := c.cfg.Gateways.Gateway(pair.Passive)
	oldActive := c.cfg.Gateways.Gateway(pair.Active)

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeouts.Default)
	defer cancel()

	handle, err := passive.TlogHandle(callCtx)
	if err != nil {
		return remote(fmt.Errorf("failed to get tlog handle of %s: %w", pair.Passive, err))
	}
	if err := passive.Promote(callCtx); err != nil {
		return remote(fmt.Errorf("failed to promote %s: %w", pair.Passive, err))
	}
	if err := oldActive.UpdateMaster(callCtx, handle); err != nil {
		return remote(fmt.Errorf("failed to update master of %s: %w", pair.Active, err))
	}
	if err := c.redeploy(ctx, pair, pair.Active, false); err != nil {
		return err
	}

	promoted := pair.Passive
	pair.Swap()
	pair.UpdatedAt = time.Now()
	if err := c.cfg.Store.UpdateGatewayPair(pair); err != nil {
		return fmt.Errorf("failed to persist role swap: %w", err)
	}
	// Shard reports refer to the old roles
	c.reported = make(map[string]bool)
	c.mirrorPending = false

	events.Emit(c.cfg.Events, events.EventGatewayPromoted, fmt.Sprintf("gateway %s promoted to active", promoted),
		map[string]string{"pair": pair.Name, "active": pair.Active, "passive": pair.Passive})
	c.logger.Warn().Str("active", pair.Active).Str("passive", pair.Passive).Msg("passive gateway promoted")
	return nil
}

// MonitorShards inspects shard health. The first newly failed data shard of
// the active is handed to the active for repair once, and the resulting
// namespace list is mirrored to the passive, retried on later passes until
// it succeeds. Tlog failures and passive data shard
// failures only reach the hooks.
func (c *Controller) MonitorShards(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	pair, err := c.Pair()
	if err != nil {
		return err
	}

	active := c.cfg.Gateways.Gateway(pair.Active)
	passive := c.cfg.Gateways.Gateway(pair.Passive)

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeouts.Default)
	defer cancel()

	activeHealth, err := active.Health(callCtx)
	if err != nil {
		return remote(fmt.Errorf("failed to read health of %s: %w", pair.Active, err))
	}

	if tlog := c.fresh(SideActive, types.CategoryTlogShards, activeHealth[types.CategoryTlogShards]); len(tlog) > 0 {
		c.report(types.CategoryTlogShards, SideActive, tlog)
		c.cfg.Hooks.TlogShardFailure(pair.Name, SideActive, tlog)
	}

	// The passive is optional here; Tick deals with it being down
	if passiveHealth, err := passive.Health(callCtx); err != nil {
		c.logger.Debug().Err(err).Str("gateway", pair.Passive).Msg("passive health unavailable")
	} else {
		if tlog := c.fresh(SidePassive, types.CategoryTlogShards, passiveHealth[types.CategoryTlogShards]); len(tlog) > 0 {
			c.report(types.CategoryTlogShards, SidePassive, tlog)
			c.cfg.Hooks.TlogShardFailure(pair.Name, SidePassive, tlog)
		}
		if data := c.fresh(SidePassive, types.CategoryDataShards, passiveHealth[types.CategoryDataShards]); len(data) > 0 {
			c.report(types.CategoryDataShards, SidePassive, data)
			c.cfg.Hooks.PassiveDataShardFailure(pair.Name, data)
		}
	}

	if c.mirrorPending {
		if err := c.mirror(callCtx, pair, active, passive); err != nil {
			return err
		}
	}

	failing := c.unhandled(SideActive, types.CategoryDataShards, activeHealth[types.CategoryDataShards])
	if len(failing) == 0 {
		return nil
	}
	return c.handleDataShard(callCtx, pair, active, passive, failing[0])
}

func (c *Controller) handleDataShard(ctx context.Context, pair *types.GatewayPair, active, passive sal.Gateway, address string) error {
	c.logger.Warn().Str("shard", address).Str("gateway", pair.Active).Msg("data shard failed")
	metrics.ShardFailuresTotal.WithLabelValues(string(types.CategoryDataShards), string(SideActive)).Inc()
	events.Emit(c.cfg.Events, events.EventShardFailed, fmt.Sprintf("data shard %s of %s failed", address, pair.Active),
		map[string]string{"pair": pair.Name, "gateway": pair.Active, "shard": address})

	if err := active.HandleDataShardFailure(ctx, address); err != nil {
		return remote(fmt.Errorf("failed to handle data shard failure %s on %s: %w", address, pair.Active, err))
	}
	c.reported[shardKey(SideActive, types.CategoryDataShards, address)] = true
	c.mirrorPending = true

	return c.mirror(ctx, pair, active, passive)
}

// mirror copies the active's namespace list to the passive. A failure leaves
// the mirror pending for the next pass.
func (c *Controller) mirror(ctx context.Context, pair *types.GatewayPair, active, passive sal.Gateway) error {
	namespaces, err := active.NamespaceList(ctx)
	if err != nil {
		return remote(fmt.Errorf("failed to list namespaces of %s: %w", pair.Active, err))
	}
	if err := passive.SetNamespaces(ctx, namespaces); err != nil {
		return remote(fmt.Errorf("failed to mirror namespaces to %s: %w", pair.Passive, err))
	}
	c.mirrorPending = false
	return nil
}

func shardKey(side Side, category types.HealthCategory, address string) string {
	return string(side) + "/" + string(category) + "/" + address
}

// unhandled forgets recovered shards of the side and category and returns the
// failing ones not yet acted on
func (c *Controller) unhandled(side Side, category types.HealthCategory, m types.HealthMap) []string {
	prefix := string(side) + "/" + string(category) + "/"
	for key := range c.reported {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if flag, ok := m[strings.TrimPrefix(key, prefix)]; !ok || flag == types.HealthOK {
			delete(c.reported, key)
		}
	}

	var out []string
	for _, addr := range m.Failing() {
		if !c.reported[shardKey(side, category, addr)] {
			out = append(out, addr)
		}
	}
	return out
}

// fresh is unhandled followed by marking the result as reported
func (c *Controller) fresh(side Side, category types.HealthCategory, m types.HealthMap) []string {
	out := c.unhandled(side, category, m)
	for _, addr := range out {
		c.reported[shardKey(side, category, addr)] = true
	}
	return out
}

func (c *Controller) report(category types.HealthCategory, side Side, addresses []string) {
	metrics.ShardFailuresTotal.WithLabelValues(string(category), string(side)).Add(float64(len(addresses)))
	c.logger.Warn().
		Str("category", string(category)).
		Str("side", string(side)).
		Strs("shards", addresses).
		Msg("shard failure detected, no corrective action")
}

func remote(err error) error {
	if errors.Is(err, types.ErrRemoteCall) {
		return err
	}
	return fmt.Errorf("%w: %w", types.ErrRemoteCall, err)
}
