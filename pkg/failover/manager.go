package failover

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// Manager owns one Controller per persisted gateway pair
type Manager struct {
	cfg Config

	mu          sync.Mutex
	controllers map[string]*Controller

	logger zerolog.Logger
}

// NewManager creates a manager
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil || cfg.Gateways == nil {
		return nil, fmt.Errorf("failover manager requires a store and a gateway directory")
	}
	return &Manager{
		cfg:         cfg,
		controllers: make(map[string]*Controller),
		logger:      log.WithComponent("failover"),
	}, nil
}

// CreatePair persists a new pair with the given roles
func (m *Manager) CreatePair(name, active, passive string) (*types.GatewayPair, error) {
	switch {
	case name == "":
		return nil, fmt.Errorf("%w: pair name is required", types.ErrValidation)
	case active == "" || passive == "":
		return nil, fmt.Errorf("%w: both active and passive gateways are required", types.ErrValidation)
	case active == passive:
		return nil, fmt.Errorf("%w: active and passive must differ", types.ErrValidation)
	}

	if _, err := m.cfg.Store.GetGatewayPair(name); err == nil {
		return nil, fmt.Errorf("%w: gateway pair %s", types.ErrAlreadyPresent, name)
	} else if !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}

	pair := &types.GatewayPair{Name: name, Active: active, Passive: passive, UpdatedAt: time.Now()}
	if err := m.cfg.Store.CreateGatewayPair(pair); err != nil {
		return nil, fmt.Errorf("failed to create gateway pair: %w", err)
	}
	m.logger.Info().Str("pair", name).Str("active", active).Str("passive", passive).Msg("gateway pair created")
	return pair, nil
}

// Pairs lists every persisted pair
func (m *Manager) Pairs() ([]*types.GatewayPair, error) {
	return m.cfg.Store.ListGatewayPairs()
}

// DeletePair stops managing a pair
func (m *Manager) DeletePair(name string) error {
	m.mu.Lock()
	delete(m.controllers, name)
	m.mu.Unlock()

	if err := m.cfg.Store.DeleteGatewayPair(name); err != nil {
		return fmt.Errorf("failed to delete gateway pair: %w", err)
	}
	return nil
}

// Controller returns the controller of an existing pair
func (m *Manager) Controller(name string) (*Controller, error) {
	if _, err := m.cfg.Store.GetGatewayPair(name); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.controllers[name]; ok {
		return c, nil
	}
	c, err := NewController(name, m.cfg)
	if err != nil {
		return nil, err
	}
	m.controllers[name] = c
	return c, nil
}

// TickAll runs Tick on every pair. One failing pair does not stop the others.
func (m *Manager) TickAll(ctx context.Context) error {
	return m.each(func(c *Controller) error {
		_, err := c.Tick(ctx)
		return err
	})
}

// MonitorAllShards runs MonitorShards on every pair
func (m *Manager) MonitorAllShards(ctx context.Context) error {
	return m.each(func(c *Controller) error {
		return c.MonitorShards(ctx)
	})
}

func (m *Manager) each(fn func(*Controller) error) error {
	pairs, err := m.cfg.Store.ListGatewayPairs()
	if err != nil {
		return fmt.Errorf("failed to list gateway pairs: %w", err)
	}

	var errs []error
	for _, pair := range pairs {
		c, err := m.Controller(pair.Name)
		if err == nil {
			err = fn(c)
		}
		if err != nil {
			m.logger.Error().Err(err).Str("pair", pair.Name).Msg("gateway pair check failed")
			errs = append(errs, fmt.Errorf("pair %s: %w", pair.Name, err))
		}
	}
	return errors.Join(errs...)
}
