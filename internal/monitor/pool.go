package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jonboulle/clockwork"
	"github.com/rileyhilliard/fleetwatch/internal/logger"
	"github.com/rileyhilliard/fleetwatch/pkg/sshutil"
)

// Dialer opens a new connection to host.
type Dialer func(ctx context.Context, host Host) (sshutil.Conn, error)

// SSHDialer dials hosts with sshutil.Dial using the connection settings.
func SSHDialer(s Settings) Dialer {
	return func(ctx context.Context, host Host) (sshutil.Conn, error) {
		client, err := sshutil.Dial(ctx, sshutil.DialOptions{
			Host:                  host.Address,
			User:                  host.User,
			Port:                  host.Port,
			IdentityFile:          host.IdentityFile,
			Timeout:               s.ConnectTimeout,
			StrictHostKeyChecking: s.StrictHostKeyChecking,
			KnownHostsFile:        s.KnownHostsFile,
			SSHConfigFile:         s.SSHConfigFile,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// Pool keeps idle connections between cycles so a healthy host costs one
// handshake for the life of the process. A connection is owned by exactly
// one poller between Acquire and Release.
type Pool struct {
	mu     sync.Mutex
	idle   map[string]*poolEntry
	closed bool

	dial       Dialer
	reuse      bool
	attempts   uint
	retryDelay time.Duration
	probeWait  time.Duration
	clock      clockwork.Clock
	log        logger.Logger
}

type poolEntry struct {
	conn     sshutil.Conn
	lastUsed time.Time
}

// NewPool creates a pool that dials through dial.
func NewPool(dial Dialer, s Settings, clock clockwork.Clock, log logger.Logger) *Pool {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.Noop()
	}
	attempts := s.ConnectAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Pool{
		idle:       make(map[string]*poolEntry),
		dial:       dial,
		reuse:      s.ReuseConnections,
		attempts:   uint(attempts),
		retryDelay: s.ConnectRetryDelay,
		probeWait:  s.ConnectTimeout,
		clock:      clock,
		log:        logger.WithPrefix(log, "[pool]"),
	}
}

// Acquire returns a live connection to host, reusing an idle one when it
// still answers a keepalive. Dials are retried up to the configured
// attempts; ctx bounds the whole acquisition.
func (p *Pool) Acquire(ctx context.Context, host Host) (sshutil.Conn, error) {
	p.mu.Lock()
	entry, ok := p.idle[host.ID]
	delete(p.idle, host.ID)
	p.mu.Unlock()

	if ok {
		if p.alive(ctx, entry.conn) {
			return entry.conn, nil
		}
		p.log.Debug("idle connection to %s went stale, redialing", host.ID)
		_ = entry.conn.Close()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return retry.DoWithData(
		func() (sshutil.Conn, error) {
			return p.dial(ctx, host)
		},
		retry.Context(ctx),
		retry.Attempts(p.attempts),
		retry.Delay(p.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(error) bool {
			return ctx.Err() == nil
		}),
		retry.OnRetry(func(n uint, err error) {
			p.log.Debug("dial %s attempt %d failed: %v", host.ID, n+1, err)
		}),
	)
}

// alive probes an idle connection. The keepalive gets at most the connect
// timeout, and never more than ctx allows.
func (p *Pool) alive(ctx context.Context, conn sshutil.Conn) bool {
	if p.probeWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.probeWait)
		defer cancel()
	}
	return conn.Alive(ctx)
}

// Release hands conn back. Unhealthy connections, and every connection when
// reuse is off or the pool is closed, are closed instead of kept.
func (p *Pool) Release(host Host, conn sshutil.Conn, healthy bool) {
	if conn == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || !p.reuse || !healthy {
		_ = conn.Close()
		return
	}

	if old, ok := p.idle[host.ID]; ok && old.conn != conn {
		_ = old.conn.Close()
	}
	p.idle[host.ID] = &poolEntry{conn: conn, lastUsed: p.clock.Now()}
}

// Evict closes the idle connection to hostID, if any.
func (p *Pool) Evict(hostID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.idle[hostID]; ok {
		_ = entry.conn.Close()
		delete(p.idle, hostID)
	}
}

// Close closes all idle connections. Connections released afterwards are
// closed immediately.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for id, entry := range p.idle {
		_ = entry.conn.Close()
		delete(p.idle, id)
	}
}

// Size returns the number of idle connections.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}
