package cli

import (
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rileyhilliard/fleetwatch/internal/config"
	"github.com/rileyhilliard/fleetwatch/internal/errors"
	"github.com/rileyhilliard/fleetwatch/internal/logger"
	"github.com/rileyhilliard/fleetwatch/internal/monitor"
	"github.com/rileyhilliard/fleetwatch/pkg/sshutil"
)

// engine is the wired collection stack shared by serve and collect.
type engine struct {
	cfg       *config.Config
	log       logger.Logger
	clock     clockwork.Clock
	store     *monitor.Store
	pool      *monitor.Pool
	scheduler *monitor.Scheduler
	registry  *prometheus.Registry
}

// loadConfig finds, loads and validates the config named by --config.
func loadConfig() (*config.Config, error) {
	cfg, _, err := config.LoadFound(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newEngine wires the pool, poller, scheduler and store for cfg. A nil
// dial uses real SSH connections.
func newEngine(cfg *config.Config, log logger.Logger, clock clockwork.Clock, dial monitor.Dialer) (*engine, error) {
	settings := cfg.ToSettings()
	if dial == nil {
		dial = monitor.SSHDialer(settings)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := monitor.NewMetrics(registry)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig, "Couldn't register collector metrics", "")
	}

	pool := monitor.NewPool(dial, settings, clock, logger.WithPrefix(log, "[pool]"))
	runner := monitor.NewSSHRunner(settings.CommandTimeout, clock)
	poller := monitor.NewPoller(pool, runner, cfg.ToCommands(), settings, clock, logger.WithPrefix(log, "[poller]"), metrics)
	store := monitor.NewStore()

	opts := []monitor.SchedulerOption{
		monitor.WithClock(clock),
		monitor.WithLogger(logger.WithPrefix(log, "[scheduler]")),
		monitor.WithMetrics(metrics),
	}
	if cfg.SnapshotFile != "" {
		opts = append(opts, monitor.WithPublisher(monitor.NewFileSink(cfg.SnapshotFile)))
	}

	return &engine{
		cfg:       cfg,
		log:       log,
		clock:     clock,
		store:     store,
		pool:      pool,
		scheduler: monitor.NewScheduler(cfg.ToHosts(), poller, store, settings, opts...),
		registry:  registry,
	}, nil
}

// Close drops every pooled connection.
func (e *engine) Close() {
	e.pool.Close()
	sshutil.CloseAgent()
}
