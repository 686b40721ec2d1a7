package cli

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/rileyhilliard/fleetwatch/internal/logger"
	"github.com/rileyhilliard/fleetwatch/internal/server"
)

// default ratio from the memlimit pkg
const memLimitRatio = 0.9

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll the fleet on an interval and serve the latest snapshot",
	Long: `Start the collection loop and the HTTP endpoint.

Endpoints:
  /metrics           latest fleet snapshot (503 until the first cycle finishes)
  /metrics/previous  the snapshot before that
  /health            uptime and snapshot age
  /debug/metrics     Prometheus metrics about the collector itself

The first interrupt stops polling and lets in-flight hosts finish within
shutdown_grace. A second interrupt exits immediately.

Examples:
  fleetwatch serve
  fleetwatch serve --listen 127.0.0.1:9100`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveListen != "" {
			cfg.Server.Listen = serveListen
		}
		log, err := newLogger(cfg.Logs.Level, cfg.Logs.Format)
		if err != nil {
			return err
		}
		setRuntimeLimits(log)

		eng, err := newEngine(cfg, log, nil, nil)
		if err != nil {
			return err
		}
		defer eng.Close()

		ctx := setupSignalHandler(cmd.Context(), log)
		log.Info("polling %d hosts every %s", len(cfg.Hosts), cfg.Interval)
		return runServe(ctx, eng, nil)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "HTTP listen address (overrides server.listen)")
}

// runServe runs the scheduler and the HTTP server until ctx is done or
// either fails. A nil ln listens on the configured address.
func runServe(ctx context.Context, eng *engine, ln net.Listener) error {
	srv := server.New(eng.store, server.Options{
		Listen:        eng.cfg.Server.Listen,
		ShutdownGrace: eng.cfg.ShutdownGrace,
		Gatherer:      eng.registry,
		Clock:         eng.clock,
		Logger:        logger.WithPrefix(eng.log, "[http]"),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.scheduler.Run(gctx)
	})
	g.Go(func() error {
		if ln != nil {
			return srv.Serve(gctx, ln)
		}
		return srv.Run(gctx)
	})
	return g.Wait()
}

func setupSignalHandler(ctx context.Context, log logger.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ret, cancel := context.WithCancel(ctx)

	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Info("signal received, shutting down")
		cancel()

		<-c
		log.Warn("second signal received, exiting now")
		os.Exit(1)
	}()

	return ret
}

// setRuntimeLimits sizes GOMAXPROCS and GOMEMLIMIT to the container.
// Neither is fatal: outside a cgroup the Go defaults stay.
func setRuntimeLimits(log logger.Logger) {
	if _, err := maxprocs.Set(maxprocs.Logger(log.Debug)); err != nil {
		log.Warn("failed to set GOMAXPROCS: %v", err)
	}

	limit, err := memlimit.SetGoMemLimit(memLimitRatio)
	if err != nil {
		log.Debug("go memlimit not set: %v", err)
		return
	}
	log.Debug("go memlimit configured: ratio %.1f, limit %s", memLimitRatio, humanize.IBytes(uint64(limit)))
}
