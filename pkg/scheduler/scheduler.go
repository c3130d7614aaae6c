package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Action is one recurring unit of work, such as a failover tick
type Action func(ctx context.Context) error

// ActionInfo describes a registered action and its last run
type ActionInfo struct {
	Name      string        `json:"name"`
	Spec      string        `json:"spec"`
	Runs      int64         `json:"runs"`
	Running   bool          `json:"running"`
	LastRun   time.Time     `json:"last_run,omitempty"`
	LastTook  time.Duration `json:"last_took"`
	LastError string        `json:"last_error,omitempty"`
}

type action struct {
	name    string
	spec    string
	fn      Action
	running atomic.Bool

	mu       sync.Mutex
	runs     int64
	lastRun  time.Time
	lastTook time.Duration
	lastErr  error
}

// Scheduler fires registered actions on their cron schedules. Runs of the
// same action never overlap; a run that comes due while the previous one is
// still going is skipped.
type Scheduler struct {
	cron *cron.Cron

	mu      sync.RWMutex
	actions map[string]*action

	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger
}

// NewScheduler creates a stopped scheduler
func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(),
		actions: make(map[string]*action),
		ctx:     ctx,
		cancel:  cancel,
		logger:  log.WithComponent("scheduler"),
	}
}

// Register adds an action under a standard cron spec or a descriptor such
// as "@every 30s"
func (s *Scheduler) Register(name, spec string, fn Action) error {
	if name == "" || fn == nil {
		return fmt.Errorf("%w: action needs a name and a function", types.ErrValidation)
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("%w: invalid schedule %q for %s: %w", types.ErrValidation, spec, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actions[name]; ok {
		return fmt.Errorf("%w: action %s", types.ErrAlreadyPresent, name)
	}

	a := &action{name: name, spec: spec, fn: fn}
	s.actions[name] = a
	s.cron.Schedule(schedule, cron.FuncJob(func() {
		if _, err := s.run(a); err != nil {
			s.logger.Error().Err(err).Str("action", name).Msg("recurring action failed")
		}
	}))
	return nil
}

// Start begins firing actions
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("actions", len(s.Actions())).Msg("scheduler started")
}

// Stop cancels running actions and waits for them to return
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	s.cancel()
	<-done.Done()
}

// RunOnce runs the named action now in the caller's goroutine. It fails with
// ErrStateCheck if the action is already running.
func (s *Scheduler) RunOnce(name string) error {
	s.mu.RLock()
	a, ok := s.actions[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: action %s", types.ErrNotFound, name)
	}

	ran, err := s.run(a)
	if !ran {
		return fmt.Errorf("%w: action %s is already running", types.ErrStateCheck, name)
	}
	return err
}

func (s *Scheduler) run(a *action) (bool, error) {
	if !a.running.CompareAndSwap(false, true) {
		metrics.RecurringRunsTotal.WithLabelValues(a.name, "skipped").Inc()
		s.logger.Debug().Str("action", a.name).Msg("previous run still in progress, skipping")
		return false, nil
	}
	defer a.running.Store(false)

	timer := metrics.NewTimer()
	err := a.fn(s.ctx)
	took := timer.Duration()
	timer.ObserveDurationVec(metrics.RecurringDuration, a.name)

	result := "success"
	if err != nil {
		result = "error"
	}
	metrics.RecurringRunsTotal.WithLabelValues(a.name, result).Inc()

	a.mu.Lock()
	a.runs++
	a.lastRun = time.Now()
	a.lastTook = took
	a.lastErr = err
	a.mu.Unlock()
	return true, err
}

// Actions lists registered actions sorted by name
func (s *Scheduler) Actions() []ActionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ActionInfo, 0, len(s.actions))
	for _, a := range s.actions {
		a.mu.Lock()
		info := ActionInfo{
			Name:     a.name,
			Spec:     a.spec,
			Runs:     a.runs,
			Running:  a.running.Load(),
			LastRun:  a.lastRun,
			LastTook: a.lastTook,
		}
		if a.lastErr != nil {
			info.LastError = a.lastErr.Error()
		}
		a.mu.Unlock()
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
