package monitor

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordsCycle(t *testing.T) {
	registry := prometheus.NewPedanticRegistry()
	m, err := NewMetrics(registry)
	require.NoError(t, err)

	s := testSettings()
	f := newFixture(t, s, nil)
	f.dialer.Add("web1", healthyClient("web1"))
	f.dialer.Fail("db1", stderrors.New("connect: connection refused"))
	poller := NewPoller(f.pool, NewSSHRunner(s.CommandTimeout, nil), DefaultCommands(), s, nil, nil, m)

	sched := NewScheduler(hostsNamed("web1", "db1"), poller, f.store, s, WithMetrics(m))
	_, err = sched.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.hosts.WithLabelValues("healthy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.hosts.WithLabelValues("down")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.hosts.WithLabelValues("degraded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandFailures.WithLabelValues("cpu", KindConnection)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.pollersInFlight))
	assert.Equal(t, 4, testutil.CollectAndCount(m.commandFailures))

	m.tickSkipped()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skippedTicks))
}

func TestMetrics_DoubleRegister(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewMetrics(registry)
	require.NoError(t, err)

	_, err = NewMetrics(registry)
	assert.Error(t, err)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observeCommand("cpu", 1, &Failure{Kind: KindTimeout})
		m.pollerStarted()
		m.pollerDone()
		m.tickSkipped()
		m.cyclePublished(sampleSnapshot())
	})
}
