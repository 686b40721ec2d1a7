package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rileyhilliard/fleetwatch/internal/errors"
	"github.com/rileyhilliard/fleetwatch/internal/logger"
	"github.com/rileyhilliard/fleetwatch/internal/monitor/parsers"
)

// Poller turns one host and the command list into a HostSnapshot.
type Poller struct {
	pool     *Pool
	runner   Runner
	commands []CommandSpec
	settings Settings
	clock    clockwork.Clock
	log      logger.Logger
	metrics  *Metrics
}

// NewPoller creates a poller. commands is shared read-only by every host.
func NewPoller(pool *Pool, runner Runner, commands []CommandSpec, s Settings, clock clockwork.Clock, log logger.Logger, metrics *Metrics) *Poller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.Noop()
	}
	return &Poller{
		pool:     pool,
		runner:   runner,
		commands: commands,
		settings: s,
		clock:    clock,
		log:      logger.WithPrefix(log, "[poller]"),
		metrics:  metrics,
	}
}

// Poll runs every command against host, in order, within the host timeout.
// It never fails: connection, timeout, exit and parse problems become
// Failure entries, and commands left over when time runs out are marked
// as timed out.
func (p *Poller) Poll(ctx context.Context, host Host) HostSnapshot {
	start := p.clock.Now()
	snap := newHostSnapshot(host.ID, len(p.commands))

	ctx, cancel := context.WithTimeout(ctx, p.settings.hostTimeout(host))
	defer cancel()

	conn, err := p.pool.Acquire(ctx, host)
	if err != nil {
		p.log.Warn("%s unreachable: %s", host.ID, errors.Short(err))
		f := Failure{Kind: KindConnection, Reason: ReasonUnreachable, Detail: errors.Short(err)}
		for _, cmd := range p.commands {
			p.record(&snap, cmd.Name, f)
		}
		return p.finish(snap, start)
	}

	healthy := true
	defer func() {
		p.pool.Release(host, conn, healthy)
	}()

	for i, cmd := range p.commands {
		if ctx.Err() != nil {
			p.markRemaining(&snap, p.commands[i:])
			break
		}

		res := p.runner.Run(ctx, conn, host, cmd)
		if res.Err != nil {
			f := failureFrom(res.Err)
			if f.Kind == KindConnection {
				healthy = false
			}
			p.log.Debug("%s %s failed: %s", host.ID, cmd.Name, errors.Short(res.Err))
			p.metrics.observeCommand(cmd.Name, res.Duration, &f)
			snap.Failures[cmd.Name] = f
			continue
		}

		parse, ok := parsers.Lookup(cmd.Parser)
		if !ok {
			p.record(&snap, cmd.Name, Failure{
				Kind:   KindParse,
				Reason: ReasonUnknownParser,
				Detail: fmt.Sprintf("no parser named %q", cmd.Parser),
			})
			continue
		}

		metric, err := parse(string(res.Stdout))
		if err != nil {
			f := failureFrom(err)
			p.log.Debug("%s %s output not parseable: %v", host.ID, cmd.Name, err)
			p.metrics.observeCommand(cmd.Name, res.Duration, &f)
			snap.Failures[cmd.Name] = f
			continue
		}

		p.metrics.observeCommand(cmd.Name, res.Duration, nil)
		snap.Metrics[cmd.Name] = metric
	}

	return p.finish(snap, start)
}

// Commands returns the command list the poller runs.
func (p *Poller) Commands() []CommandSpec {
	return p.commands
}

func (p *Poller) record(snap *HostSnapshot, name string, f Failure) {
	p.metrics.observeCommand(name, 0, &f)
	snap.Failures[name] = f
}

func (p *Poller) markRemaining(snap *HostSnapshot, rest []CommandSpec) {
	for _, cmd := range rest {
		p.record(snap, cmd.Name, Failure{
			Kind:   KindTimeout,
			Reason: ReasonTimeout,
			Detail: "host timeout reached before the command ran",
		})
	}
}

func (p *Poller) finish(snap HostSnapshot, start time.Time) HostSnapshot {
	snap.Timestamp = p.clock.Now()
	snap.Duration = snap.Timestamp.Sub(start)
	return snap
}
