package monitor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rileyhilliard/fleetwatch/internal/errors"
	"github.com/rileyhilliard/fleetwatch/pkg/sshutil"
	sshtesting "github.com/rileyhilliard/fleetwatch/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
)

const (
	sampleCPU  = "%Cpu(s):  5.0 us,  2.0 sy,  0.0 ni, 93.0 id,  0.0 wa,  0.0 hi,  0.0 si,  0.0 st\n"
	sampleMem  = "               total        used        free      shared  buff/cache   available\nMem:            7977        2345        1234         123        4398        5321\n"
	sampleDisk = "Filesystem      Size  Used Avail Use% Mounted on\n/dev/root        20G   10G   10G  50% /\n"
	sampleNet  = "eth0: flags=4163<UP,BROADCAST,RUNNING,MULTICAST>  mtu 1500\n        RX packets 10  bytes 1000 (1.0 KB)\n        TX packets 20  bytes 2000 (2.0 KB)\n"
)

func testSettings() Settings {
	s := DefaultSettings()
	s.Interval = time.Minute
	s.HostTimeout = 2 * time.Second
	s.CommandTimeout = time.Second
	s.ConnectRetryDelay = time.Millisecond
	s.ShutdownGrace = 5 * time.Second
	return s
}

// healthyClient answers the default commands with sample output.
func healthyClient(host string) *sshtesting.MockClient {
	client := sshtesting.NewMockClient(host)
	sshtesting.WithStdout(client, map[string]string{
		"top -bn1 | grep Cpu": sampleCPU,
		"free -m":             sampleMem,
		"df -P -h /":          sampleDisk,
		"ifconfig":            sampleNet,
	})
	return client
}

func mockDial(d *sshtesting.MockDialer) Dialer {
	return func(ctx context.Context, host Host) (sshutil.Conn, error) {
		return d.Dial(ctx, host.ID)
	}
}

type fixture struct {
	dialer   *sshtesting.MockDialer
	settings Settings
	pool     *Pool
	poller   *Poller
	store    *Store
}

func newFixture(t *testing.T, s Settings, wrap func(Runner) Runner) *fixture {
	t.Helper()
	d := sshtesting.NewMockDialer()
	pool := NewPool(mockDial(d), s, nil, nil)
	t.Cleanup(pool.Close)

	var runner Runner = NewSSHRunner(s.CommandTimeout, nil)
	if wrap != nil {
		runner = wrap(runner)
	}
	return &fixture{
		dialer:   d,
		settings: s,
		pool:     pool,
		poller:   NewPoller(pool, runner, DefaultCommands(), s, nil, nil, nil),
		store:    NewStore(),
	}
}

func hostsNamed(ids ...string) []Host {
	hosts := make([]Host, len(ids))
	for i, id := range ids {
		hosts[i] = Host{ID: id, Address: id}
	}
	return hosts
}

// assertExactlyOne checks that every command is in exactly one of the maps.
func assertExactlyOne(t *testing.T, snap HostSnapshot, cmds []CommandSpec) {
	t.Helper()
	for _, cmd := range cmds {
		_, inMetrics := snap.Metrics[cmd.Name]
		_, inFailures := snap.Failures[cmd.Name]
		assert.True(t, inMetrics != inFailures, "%s/%s: metrics=%v failures=%v", snap.HostID, cmd.Name, inMetrics, inFailures)
	}
	assert.Equal(t, len(cmds), len(snap.Metrics)+len(snap.Failures), snap.HostID)
}

// gateRunner holds every command until gate is closed or ctx ends.
type gateRunner struct {
	inner Runner
	gate  chan struct{}
}

func (g *gateRunner) Run(ctx context.Context, conn sshutil.Conn, host Host, spec CommandSpec) RawResult {
	select {
	case <-g.gate:
		return g.inner.Run(ctx, conn, host, spec)
	case <-ctx.Done():
		return RawResult{
			HostID:   host.ID,
			Command:  spec.Name,
			ExitCode: -1,
			Err:      errors.WrapWithCode(ctx.Err(), errors.ErrTimeout, "held", ""),
		}
	}
}

// countingRunner tracks how many hosts are running a command at once.
type countingRunner struct {
	inner Runner
	delay time.Duration
	cur   atomic.Int32
	peak  atomic.Int32
}

func (c *countingRunner) Run(ctx context.Context, conn sshutil.Conn, host Host, spec CommandSpec) RawResult {
	n := c.cur.Add(1)
	defer c.cur.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(c.delay)
	return c.inner.Run(ctx, conn, host, spec)
}
