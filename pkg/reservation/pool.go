package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// Pool is a handle on one persisted host pool. Every call reads the current
// record, so handles never go stale.
type Pool struct {
	name   string
	svc    *Service
	logger zerolog.Logger
}

// Name returns the pool name
func (p *Pool) Name() string {
	return p.name
}

func (p *Pool) load() (*types.HostPool, error) {
	record, err := p.svc.store.GetPool(p.name)
	if err != nil {
		return nil, fmt.Errorf("failed to load pool %s: %w", p.name, err)
	}
	return record, nil
}

// Members returns the member list in pool order
func (p *Pool) Members() ([]string, error) {
	record, err := p.load()
	if err != nil {
		return nil, err
	}
	return record.Members, nil
}

// ValidateMember checks that host names an installed host-control service of
// a supported kind
func (p *Pool) ValidateMember(ctx context.Context, host string) error {
	ctx, cancel := context.WithTimeout(ctx, p.svc.timeouts.Default)
	defer cancel()

	service, err := p.svc.hosts.Describe(ctx, host)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return fmt.Errorf("%w: host service %s does not exist", types.ErrInvalidBackingService, host)
		}
		return fmt.Errorf("%w: failed to describe host %s: %w", types.ErrRemoteCall, host, err)
	}
	if !service.Kind.Supported() {
		return fmt.Errorf("%w: host %s is a %q service", types.ErrInvalidBackingService, host, service.Kind)
	}
	if !service.Installed {
		return fmt.Errorf("%w: host %s", types.ErrServiceNotInstalled, host)
	}
	return nil
}

// Validate checks the whole member list: no duplicates, every member valid
func (p *Pool) Validate(ctx context.Context) error {
	record, err := p.load()
	if err != nil {
		return err
	}
	return p.validateMembers(ctx, record.Members)
}

func (p *Pool) validateMembers(ctx context.Context, members []string) error {
	seen := make(map[string]bool, len(members))
	for _, m := range members {
		if seen[m] {
			return fmt.Errorf("%w: %s appears more than once in pool %s", types.ErrDuplicateMember, m, p.name)
		}
		seen[m] = true
	}
	for _, m := range members {
		if err := p.ValidateMember(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// Add validates host and appends it to the member list
func (p *Pool) Add(ctx context.Context, host string) error {
	lock := p.svc.poolLock(p.name)
	lock.Lock()
	defer lock.Unlock()

	record, err := p.load()
	if err != nil {
		return err
	}
	for _, m := range record.Members {
		if m == host {
			return fmt.Errorf("%w: %s is already a member of pool %s", types.ErrAlreadyPresent, host, p.name)
		}
	}
	if err := p.ValidateMember(ctx, host); err != nil {
		return err
	}

	record.Members = append(record.Members, host)
	record.UpdatedAt = time.Now()
	if err := p.svc.store.UpdatePool(record); err != nil {
		return fmt.Errorf("failed to update pool: %w", err)
	}

	metrics.PoolMembers.WithLabelValues(p.name).Set(float64(len(record.Members)))
	events.Emit(p.svc.events, events.EventPoolMemberAdded, fmt.Sprintf("host %s added to pool %s", host, p.name),
		map[string]string{"pool": p.name, "host": host})
	p.logger.Info().Str("host", host).Msg("member added")
	return nil
}

// Remove drops host from the member list. Removing an absent host is a no-op.
func (p *Pool) Remove(host string) error {
	lock := p.svc.poolLock(p.name)
	lock.Lock()
	defer lock.Unlock()

	record, err := p.load()
	if err != nil {
		return err
	}

	kept := make([]string, 0, len(record.Members))
	for _, m := range record.Members {
		if m != host {
			kept = append(kept, m)
		}
	}
	if len(kept) == len(record.Members) {
		return nil
	}

	record.Members = kept
	record.UpdatedAt = time.Now()
	if err := p.svc.store.UpdatePool(record); err != nil {
		return fmt.Errorf("failed to update pool: %w", err)
	}

	metrics.PoolMembers.WithLabelValues(p.name).Set(float64(len(record.Members)))
	events.Emit(p.svc.events, events.EventPoolMemberRemoved, fmt.Sprintf("host %s removed from pool %s", host, p.name),
		map[string]string{"pool": p.name, "host": host})
	p.logger.Info().Str("host", host).Msg("member removed")
	return nil
}

// Reserved maps each host bound by an installed lease, other than the
// caller's own, to the lease holding it. Leases without a resolvable host
// binding do not count.
func (p *Pool) Reserved(ctx context.Context, callerID string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	leases, err := p.svc.store.ListLeases()
	if err != nil {
		return nil, fmt.Errorf("failed to list leases: %w", err)
	}

	reserved := make(map[string]string)
	for _, l := range leases {
		if l.CallerID == callerID {
			continue
		}
		if !l.Installed() {
			continue
		}
		if l.HostName == "" {
			p.logger.Debug().Str("lease", l.Name).Msg("installed lease without host binding skipped")
			continue
		}
		reserved[l.HostName] = l.Name
	}
	return reserved, nil
}

// UnreservedHost returns the first member, in pool order, that no other
// installed lease holds
func (p *Pool) UnreservedHost(ctx context.Context, callerID string) (string, error) {
	record, err := p.load()
	if err != nil {
		return "", err
	}
	reserved, err := p.Reserved(ctx, callerID)
	if err != nil {
		return "", err
	}

	for _, m := range record.Members {
		if _, taken := reserved[m]; !taken {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: all %d members of pool %s are reserved", types.ErrNoFreeHosts, len(record.Members), p.name)
}

// Claim picks an unreserved host and runs bind on it while holding the pool
// lock, so two claims in this process never receive the same host. bind is
// expected to leave the lease installed or return an error.
func (p *Pool) Claim(ctx context.Context, callerID string, bind func(host string) error) (string, error) {
	lock := p.svc.poolLock(p.name)
	lock.Lock()
	defer lock.Unlock()

	host, err := p.UnreservedHost(ctx, callerID)
	if err != nil {
		return "", err
	}
	if err := bind(host); err != nil {
		return "", err
	}
	return host, nil
}
