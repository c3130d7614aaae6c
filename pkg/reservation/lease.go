package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/sal"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// Lease is a handle on one persisted reservation lease
type Lease struct {
	name   string
	svc    *Service
	logger zerolog.Logger
}

// Name returns the lease name
func (l *Lease) Name() string {
	return l.name
}

func (l *Lease) load() (*types.Lease, error) {
	record, err := l.svc.store.GetLease(l.name)
	if err != nil {
		return nil, fmt.Errorf("failed to load lease %s: %w", l.name, err)
	}
	return record, nil
}

func (l *Lease) save(record *types.Lease) error {
	record.UpdatedAt = time.Now()
	if err := l.svc.store.UpdateLease(record); err != nil {
		return fmt.Errorf("failed to update lease %s: %w", l.name, err)
	}
	return nil
}

// Record returns the current persisted state
func (l *Lease) Record() (*types.Lease, error) {
	return l.load()
}

// Install claims a host from the pool, points it at the boot image and power
// cycles it. If booting fails the binding is cleared and the lease stays empty.
func (l *Lease) Install(ctx context.Context) error {
	record, err := l.load()
	if err != nil {
		return err
	}
	if record.Installed() {
		return fmt.Errorf("%w: lease %s is already installed on %s", types.ErrStateCheck, l.name, record.HostName)
	}
	if record.HostName != "" {
		return fmt.Errorf("%w: lease %s is bound to %s before install", types.ErrValidation, l.name, record.HostName)
	}

	pool, err := l.svc.Pool(record.PoolName)
	if err != nil {
		return fmt.Errorf("failed to open pool %s: %w", record.PoolName, err)
	}

	host, err := pool.Claim(ctx, record.CallerID, func(host string) error {
		return l.bind(ctx, record, host)
	})
	if err != nil {
		result := "error"
		if errors.Is(err, types.ErrNoFreeHosts) {
			result = "no_free_hosts"
		}
		metrics.ReservationsTotal.WithLabelValues(result).Inc()
		return err
	}

	metrics.ReservationsTotal.WithLabelValues("success").Inc()
	events.Emit(l.svc.events, events.EventHostReserved, fmt.Sprintf("host %s reserved by lease %s", host, l.name),
		map[string]string{"lease": l.name, "pool": record.PoolName, "host": host})
	l.logger.Info().Str("host", host).Str("pool", record.PoolName).Msg("lease installed")
	return nil
}

// bind runs under the pool lock
func (l *Lease) bind(ctx context.Context, record *types.Lease, host string) error {
	record.HostName = host
	if err := l.save(record); err != nil {
		return err
	}

	if err := l.boot(ctx, host, record.BootImageURL); err != nil {
		record.HostName = ""
		record.State = types.LeaseStateEmpty
		if saveErr := l.save(record); saveErr != nil {
			l.logger.Error().Err(saveErr).Msg("failed to clear host binding")
		}
		return err
	}

	record.State = types.LeaseStateInstalled
	return l.save(record)
}

func (l *Lease) boot(ctx context.Context, host, url string) error {
	ctx, cancel := context.WithTimeout(ctx, l.svc.timeouts.Power)
	defer cancel()

	h := l.svc.hosts.Host(host)
	if err := h.ConfigureBootTarget(ctx, url); err != nil {
		return remote(fmt.Errorf("failed to configure boot target on %s: %w", host, err))
	}
	if err := h.PowerCycle(ctx); err != nil {
		return remote(fmt.Errorf("failed to power cycle %s: %w", host, err))
	}
	return nil
}

// Uninstall powers the bound host off and clears the binding. It succeeds on
// an empty lease and ignores power-off failures.
func (l *Lease) Uninstall(ctx context.Context) error {
	record, err := l.load()
	if err != nil {
		return err
	}

	host := record.HostName
	if host != "" {
		powerCtx, cancel := context.WithTimeout(ctx, l.svc.timeouts.Power)
		if err := l.svc.hosts.Host(host).PowerOff(powerCtx); err != nil {
			l.logger.Warn().Err(err).Str("host", host).Msg("failed to power off host during uninstall")
		}
		cancel()
	}

	record.HostName = ""
	record.State = types.LeaseStateEmpty
	if err := l.save(record); err != nil {
		return err
	}

	if host != "" {
		events.Emit(l.svc.events, events.EventHostReleased, fmt.Sprintf("host %s released by lease %s", host, l.name),
			map[string]string{"lease": l.name, "pool": record.PoolName, "host": host})
		l.logger.Info().Str("host", host).Msg("lease uninstalled")
	}
	return nil
}

// Validate checks the lease's own lifecycle: no host before install, a host
// after
func (l *Lease) Validate() error {
	record, err := l.load()
	if err != nil {
		return err
	}
	return validateRecord(record)
}

func validateRecord(record *types.Lease) error {
	if record.BootImageURL == "" {
		return fmt.Errorf("%w: lease %s has no boot image url", types.ErrValidation, record.Name)
	}
	switch record.State {
	case types.LeaseStateEmpty:
		if record.HostName != "" {
			return fmt.Errorf("%w: lease %s is bound to %s but not installed", types.ErrValidation, record.Name, record.HostName)
		}
	case types.LeaseStateInstalled:
		if record.HostName == "" {
			return fmt.Errorf("%w: lease %s is installed without a host", types.ErrValidation, record.Name)
		}
	default:
		return fmt.Errorf("%w: lease %s has unknown state %q", types.ErrValidation, record.Name, record.State)
	}
	return nil
}

// Status reports whether the lease is installed. The error is set only with
// StatusError.
func (l *Lease) Status() (types.InstallStatus, error) {
	record, err := l.load()
	if err != nil {
		return types.StatusError, err
	}
	if err := validateRecord(record); err != nil {
		return types.StatusError, err
	}
	if record.Installed() {
		return types.StatusInstalled, nil
	}
	return types.StatusNotInstalled, nil
}

// installedHost returns the bound host, or ErrStateCheck when not installed
func (l *Lease) installedHost() (*types.Lease, sal.Host, error) {
	record, err := l.load()
	if err != nil {
		return nil, nil, err
	}
	if !record.Installed() || record.HostName == "" {
		return nil, nil, fmt.Errorf("%w: lease %s is not installed", types.ErrStateCheck, l.name)
	}
	return record, l.svc.hosts.Host(record.HostName), nil
}

func (l *Lease) power(ctx context.Context, action string, fn func(context.Context, sal.Host) error) error {
	record, host, err := l.installedHost()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, l.svc.timeouts.Power)
	defer cancel()

	if err := fn(ctx, host); err != nil {
		return remote(fmt.Errorf("failed to %s %s: %w", action, record.HostName, err))
	}
	l.logger.Debug().Str("host", record.HostName).Str("action", action).Msg("power action")
	return nil
}

// PowerOn powers the bound host on. The lease must be installed.
func (l *Lease) PowerOn(ctx context.Context) error {
	return l.power(ctx, "power on", func(ctx context.Context, h sal.Host) error { return h.PowerOn(ctx) })
}

// PowerOff powers the bound host off without releasing it
func (l *Lease) PowerOff(ctx context.Context) error {
	return l.power(ctx, "power off", func(ctx context.Context, h sal.Host) error { return h.PowerOff(ctx) })
}

// PowerCycle restarts the bound host
func (l *Lease) PowerCycle(ctx context.Context) error {
	return l.power(ctx, "power cycle", func(ctx context.Context, h sal.Host) error { return h.PowerCycle(ctx) })
}

// PowerStatus reports whether the bound host is powered on
func (l *Lease) PowerStatus(ctx context.Context) (bool, error) {
	var on bool
	err := l.power(ctx, "read power status of", func(ctx context.Context, h sal.Host) error {
		var err error
		on, err = h.PowerStatus(ctx)
		return err
	})
	return on, err
}

// ConfigureBootTarget points the bound host at url and remembers it
func (l *Lease) ConfigureBootTarget(ctx context.Context, url string) error {
	if url == "" {
		return fmt.Errorf("%w: boot image url is required", types.ErrValidation)
	}
	record, host, err := l.installedHost()
	if err != nil {
		return err
	}

	powerCtx, cancel := context.WithTimeout(ctx, l.svc.timeouts.Power)
	defer cancel()
	if err := host.ConfigureBootTarget(powerCtx, url); err != nil {
		return remote(fmt.Errorf("failed to configure boot target on %s: %w", record.HostName, err))
	}

	record.BootImageURL = url
	return l.save(record)
}

// Monitor powers the bound host back on if it is found off
func (l *Lease) Monitor(ctx context.Context) error {
	on, err := l.PowerStatus(ctx)
	if err != nil {
		return err
	}
	if on {
		return nil
	}

	l.logger.Warn().Msg("reserved host found powered off, powering on")
	return l.PowerOn(ctx)
}

func remote(err error) error {
	if errors.Is(err, types.ErrRemoteCall) || errors.Is(err, types.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %w", types.ErrRemoteCall, err)
}
