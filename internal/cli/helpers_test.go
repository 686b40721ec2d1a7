package cli

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/fleetwatch/internal/config"
	"github.com/rileyhilliard/fleetwatch/internal/logger"
	"github.com/rileyhilliard/fleetwatch/internal/monitor"
	"github.com/rileyhilliard/fleetwatch/pkg/sshutil"
	sshtesting "github.com/rileyhilliard/fleetwatch/pkg/sshutil/testing"
)

const (
	sampleCPU  = "%Cpu(s):  5.0 us,  2.0 sy,  0.0 ni, 93.0 id,  0.0 wa,  0.0 hi,  0.0 si,  0.0 st\n"
	sampleMem  = "               total        used        free      shared  buff/cache   available\nMem:            7977        2345        1234         123        4398        5321\n"
	sampleDisk = "Filesystem      Size  Used Avail Use% Mounted on\n/dev/root        20G   10G   10G  50% /\n"
	sampleNet  = "eth0: flags=4163<UP,BROADCAST,RUNNING,MULTICAST>  mtu 1500\n        RX packets 10  bytes 1000 (1.0 KB)\n        TX packets 20  bytes 2000 (2.0 KB)\n"
)

// testEngine wires an engine where "web1" answers every default command
// and "db" refuses connections.
func testEngine(t *testing.T) *engine {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Hosts["web1"] = config.Host{Address: "web1"}
	cfg.Hosts["db"] = config.Host{Address: "db"}
	cfg.Interval = time.Minute
	cfg.HostTimeout = 2 * time.Second
	cfg.CommandTimeout = time.Second
	cfg.ConnectRetryDelay = time.Millisecond
	cfg.ShutdownGrace = time.Second
	cfg.Server.Listen = "127.0.0.1:0"
	require.NoError(t, config.Validate(cfg))

	d := sshtesting.NewMockDialer()
	web := sshtesting.NewMockClient("web1")
	sshtesting.WithStdout(web, map[string]string{
		"top -bn1 | grep Cpu": sampleCPU,
		"free -m":             sampleMem,
		"df -P -h /":          sampleDisk,
		"ifconfig":            sampleNet,
	})
	d.Add("web1", web)
	d.Fail("db", fmt.Errorf("connection refused"))

	dial := func(ctx context.Context, host monitor.Host) (sshutil.Conn, error) {
		return d.Dial(ctx, host.ID)
	}

	eng, err := newEngine(cfg, logger.Noop(), nil, dial)
	require.NoError(t, err)
	t.Cleanup(eng.Close)
	return eng
}
