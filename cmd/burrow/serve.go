package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/failover"
	"github.com/cuemby/burrow/pkg/health"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/placement"
	"github.com/cuemby/burrow/pkg/reservation"
	"github.com/cuemby/burrow/pkg/sal"
	"github.com/cuemby/burrow/pkg/scheduler"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the burrow daemon",
	Long: `Run the burrow daemon: open the state database, connect to the node
agent, start the recurring failover, shard, lease and metrics actions, and
serve the HTTP API.

Configuration is read from --config, or from the file named by
BURROW_CONFIG. Flags override the file.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "Config file (default: $BURROW_CONFIG)")
	serveCmd.Flags().String("listen", "", "API listen address (overrides config)")
	serveCmd.Flags().String("data-dir", "", "Data directory (overrides config)")
	serveCmd.Flags().String("agent", "", "Node agent URL (overrides config)")
	serveCmd.Flags().Bool("read-only", false, "Reject every mutating API request")

	rootCmd.AddCommand(serveCmd)
}

func loadServeConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		cfg.API.Addr = v
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("agent"); v != "" {
		cfg.Agent.URL = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServeConfig(cmd)
	if err != nil {
		return err
	}
	readOnly, _ := cmd.Flags().GetBool("read-only")

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
	logger := log.WithComponent("daemon")
	metrics.SetVersion(Version)

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()
	metrics.SetComponent(metrics.ComponentStorage, true, "database open")

	agent, err := sal.NewAgent(cfg.Agent.URL)
	if err != nil {
		return err
	}

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	go logEvents(sub)

	planner, err := placement.NewPlanner(placement.Config{
		Node:     agent,
		Recorder: store,
		Events:   broker,
		Timeouts: cfg.Timeouts,
	})
	if err != nil {
		return err
	}
	reservations, err := reservation.NewService(reservation.Config{
		Store:    store,
		Hosts:    agent,
		Events:   broker,
		Timeouts: cfg.Timeouts,
	})
	if err != nil {
		return err
	}
	gateways, err := failover.NewManager(failover.Config{
		Store:    store,
		Gateways: agent,
		Events:   broker,
		Timeouts: cfg.Timeouts,
		Health: health.Config{
			Timeout: cfg.Timeouts.Info,
			Retries: cfg.Health.Retries,
		},
	})
	if err != nil {
		return err
	}

	agentCheck := health.NewHTTPChecker(strings.TrimRight(cfg.Agent.URL, "/") + "/health").
		WithTimeout(cfg.Timeouts.Default)
	collector := metrics.NewCollector(store)
	collect := func(ctx context.Context) error {
		result := agentCheck.Check(ctx)
		metrics.SetComponent(metrics.ComponentAgent, result.Healthy, result.Message)

		if err := collector.Collect(); err != nil {
			metrics.SetComponent(metrics.ComponentStorage, false, err.Error())
			return err
		}
		metrics.SetComponent(metrics.ComponentStorage, true, "")
		return nil
	}
	_ = collect(cmd.Context())

	sched := scheduler.NewScheduler()
	actions := []struct {
		name string
		spec string
		fn   scheduler.Action
	}{
		{"failover-tick", cfg.Schedules.FailoverTick, gateways.TickAll},
		{"shard-monitor", cfg.Schedules.ShardMonitor, gateways.MonitorAllShards},
		{"lease-monitor", cfg.Schedules.LeaseMonitor, reservations.MonitorLeases},
		{"metrics-collect", cfg.Schedules.MetricsCollect, collect},
	}
	for _, a := range actions {
		if a.spec == "" {
			logger.Info().Str("action", a.name).Msg("recurring action disabled")
			continue
		}
		if err := sched.Register(a.name, a.spec, a.fn); err != nil {
			return err
		}
	}
	sched.Start()
	defer sched.Stop()

	server, err := api.NewServer(api.Config{
		Store:        store,
		Planner:      planner,
		Reservations: reservations,
		Failover:     gateways,
		Scheduler:    sched,
		ReadOnly:     readOnly,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.API.Addr)
	}()
	metrics.SetComponent(metrics.ComponentAPI, true, "serving on "+cfg.API.Addr)

	logger.Info().
		Str("version", Version).
		Str("data_dir", cfg.DataDir).
		Str("agent", cfg.Agent.URL).
		Bool("read_only", readOnly).
		Msg("burrow is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	metrics.SetComponent(metrics.ComponentAPI, false, "shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down API: %w", err)
	}
	return nil
}

func logEvents(sub events.Subscriber) {
	logger := log.WithComponent("events")
	for event := range sub {
		e := logger.Info().Str("type", string(event.Type))
		for k, v := range event.Metadata {
			e = e.Str(k, v)
		}
		e.Msg(event.Message)
	}
}
