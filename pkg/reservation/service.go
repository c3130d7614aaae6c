package reservation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/sal"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config holds the collaborators shared by every pool and lease
type Config struct {
	Store    storage.Store
	Hosts    sal.HostDirectory
	Events   events.Publisher
	Timeouts sal.Timeouts
}

// Service hands out Pool and Lease handles over persisted records
type Service struct {
	store    storage.Store
	hosts    sal.HostDirectory
	events   events.Publisher
	timeouts sal.Timeouts
	logger   zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a reservation service
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("reservation service requires a store")
	}
	if cfg.Hosts == nil {
		return nil, fmt.Errorf("reservation service requires a host directory")
	}
	return &Service{
		store:    cfg.Store,
		hosts:    cfg.Hosts,
		events:   cfg.Events,
		timeouts: cfg.Timeouts.WithDefaults(),
		logger:   log.WithComponent("reservation"),
		locks:    make(map[string]*sync.Mutex),
	}, nil
}

// poolLock returns the mutex serializing claims and member edits of a pool
func (s *Service) poolLock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	return l
}

// CreatePool validates members and persists a new pool
func (s *Service) CreatePool(ctx context.Context, name string, members []string) (*Pool, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: pool name is required", types.ErrValidation)
	}
	if _, err := s.store.GetPool(name); err == nil {
		return nil, fmt.Errorf("%w: pool %s", types.ErrAlreadyPresent, name)
	} else if !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}

	pool := &Pool{name: name, svc: s, logger: log.WithPool(name)}
	if err := pool.validateMembers(ctx, members); err != nil {
		return nil, err
	}

	now := time.Now()
	record := &types.HostPool{
		Name:      name,
		Members:   append([]string(nil), members...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreatePool(record); err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	metrics.PoolMembers.WithLabelValues(name).Set(float64(len(members)))

	s.logger.Info().Str("pool", name).Int("members", len(members)).Msg("pool created")
	return pool, nil
}

// Pool returns a handle on an existing pool
func (s *Service) Pool(name string) (*Pool, error) {
	if _, err := s.store.GetPool(name); err != nil {
		return nil, err
	}
	return &Pool{name: name, svc: s, logger: log.WithPool(name)}, nil
}

// Pools lists every persisted pool
func (s *Service) Pools() ([]*types.HostPool, error) {
	return s.store.ListPools()
}

// DeletePool removes a pool that no installed lease still draws from
func (s *Service) DeletePool(name string) error {
	leases, err := s.store.ListLeasesByPool(name)
	if err != nil {
		return fmt.Errorf("failed to list leases: %w", err)
	}
	for _, l := range leases {
		if l.Installed() {
			return fmt.Errorf("%w: pool %s has installed lease %s", types.ErrStateCheck, name, l.Name)
		}
	}
	if err := s.store.DeletePool(name); err != nil {
		return fmt.Errorf("failed to delete pool: %w", err)
	}
	metrics.PoolMembers.DeleteLabelValues(name)
	return nil
}

// CreateLease persists an empty lease drawing from pool
func (s *Service) CreateLease(name, pool, bootImageURL string) (*Lease, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: lease name is required", types.ErrValidation)
	}
	if bootImageURL == "" {
		return nil, fmt.Errorf("%w: boot image url is required", types.ErrValidation)
	}
	if _, err := s.store.GetPool(pool); err != nil {
		return nil, err
	}
	if _, err := s.store.GetLease(name); err == nil {
		return nil, fmt.Errorf("%w: lease %s", types.ErrAlreadyPresent, name)
	} else if !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	record := &types.Lease{
		Name:         name,
		PoolName:     pool,
		CallerID:     uuid.New().String(),
		BootImageURL: bootImageURL,
		State:        types.LeaseStateEmpty,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateLease(record); err != nil {
		return nil, fmt.Errorf("failed to create lease: %w", err)
	}
	return s.leaseHandle(name), nil
}

// Lease returns a handle on an existing lease
func (s *Service) Lease(name string) (*Lease, error) {
	if _, err := s.store.GetLease(name); err != nil {
		return nil, err
	}
	return s.leaseHandle(name), nil
}

func (s *Service) leaseHandle(name string) *Lease {
	return &Lease{name: name, svc: s, logger: log.WithLease(name)}
}

// Leases lists every persisted lease
func (s *Service) Leases() ([]*types.Lease, error) {
	return s.store.ListLeases()
}

// DeleteLease releases the lease's host and removes the record
func (s *Service) DeleteLease(ctx context.Context, name string) error {
	lease, err := s.Lease(name)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := lease.Uninstall(ctx); err != nil {
		return err
	}
	if err := s.store.DeleteLease(name); err != nil {
		return fmt.Errorf("failed to delete lease: %w", err)
	}
	return nil
}

// MonitorLeases runs Monitor on every installed lease. Leases that are not
// installed are skipped; failures are logged and the first one returned.
func (s *Service) MonitorLeases(ctx context.Context) error {
	records, err := s.store.ListLeases()
	if err != nil {
		return fmt.Errorf("failed to list leases: %w", err)
	}

	var firstErr error
	for _, record := range records {
		lease := s.leaseHandle(record.Name)
		status, err := lease.Status()
		switch status {
		case types.StatusNotInstalled:
			continue
		case types.StatusError:
			lease.logger.Warn().Err(err).Msg("skipping lease in error state")
			continue
		}
		if err := lease.Monitor(ctx); err != nil {
			lease.logger.Error().Err(err).Msg("lease monitor failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
