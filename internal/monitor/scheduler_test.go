package monitor

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rileyhilliard/fleetwatch/internal/logger"
	sshtesting "github.com/rileyhilliard/fleetwatch/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunCycle(t *testing.T) {
	f := newFixture(t, testSettings(), nil)
	f.dialer.Add("web1", healthyClient("web1"))
	f.dialer.Add("web2", healthyClient("web2"))
	f.dialer.Fail("db1", stderrors.New("connect: connection refused"))

	sched := NewScheduler(hostsNamed("web1", "web2", "db1"), f.poller, f.store, f.settings)
	snap, err := sched.RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, snap.Hosts, 3)
	for _, id := range []string{"web1", "web2", "db1"} {
		assertExactlyOne(t, snap.Hosts[id], DefaultCommands())
	}
	assert.True(t, snap.Hosts["db1"].Down())
	assert.False(t, snap.Hosts["web1"].Degraded())
	assert.NotEmpty(t, snap.CycleID)
	assert.Equal(t, []string{"db1", "web1", "web2"}, snap.HostIDs())

	assert.Same(t, snap, f.store.Read())
	assert.Equal(t, StateIdle, sched.State())
	assert.EqualValues(t, 1, sched.Cycles())
}

func TestScheduler_PublishesWhenEverythingFails(t *testing.T) {
	f := newFixture(t, testSettings(), nil)
	for _, id := range []string{"a", "b"} {
		f.dialer.Fail(id, stderrors.New("no route to host"))
	}

	sched := NewScheduler(hostsNamed("a", "b"), f.poller, f.store, f.settings)
	snap, err := sched.RunCycle(context.Background())
	require.NoError(t, err)

	require.NotNil(t, f.store.Read())
	healthy, degraded, down := snap.Counts()
	assert.Equal(t, 0, healthy)
	assert.Equal(t, 0, degraded)
	assert.Equal(t, 2, down)
}

func TestScheduler_ConcurrencyCap(t *testing.T) {
	s := testSettings()
	s.MaxConcurrency = 2

	var counter *countingRunner
	f := newFixture(t, s, func(inner Runner) Runner {
		counter = &countingRunner{inner: inner, delay: 30 * time.Millisecond}
		return counter
	})
	for _, id := range []string{"a", "b", "c"} {
		f.dialer.Add(id, healthyClient(id))
		f.dialer.Delay(id, 20*time.Millisecond)
	}

	sched := NewScheduler(hostsNamed("a", "b", "c"), f.poller, f.store, s)
	snap, err := sched.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Len(t, snap.Hosts, 3)
	assert.LessOrEqual(t, f.dialer.PeakInFlight(), 2)
	assert.LessOrEqual(t, int(counter.peak.Load()), 2)
	assert.Equal(t, 2, int(counter.peak.Load()), "two hosts should overlap")
}

func TestScheduler_CycleBoundedByHostTimeout(t *testing.T) {
	s := testSettings()
	s.HostTimeout = 150 * time.Millisecond
	s.CommandTimeout = 10 * time.Second
	s.MaxConcurrency = 4
	f := newFixture(t, s, nil)

	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		client := sshtesting.NewMockClient(id)
		client.SetDefaultResponse(sshtesting.CommandResponse{Delay: time.Hour})
		f.dialer.Add(id, client)
	}

	sched := NewScheduler(hostsNamed(ids...), f.poller, f.store, s)
	start := time.Now()
	snap, err := sched.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second)
	for _, id := range ids {
		assertExactlyOne(t, snap.Hosts[id], DefaultCommands())
		for name, failure := range snap.Hosts[id].Failures {
			assert.Equal(t, KindTimeout, failure.Kind, "%s/%s", id, name)
		}
	}
}

func TestScheduler_HostsNotStartedBeforeDeadline(t *testing.T) {
	s := testSettings()
	s.MaxConcurrency = 1
	s.HostTimeout = 5 * time.Second
	s.CycleDeadline = 100 * time.Millisecond
	f := newFixture(t, s, nil)

	slow := sshtesting.NewMockClient("slow")
	slow.SetDefaultResponse(sshtesting.CommandResponse{Delay: time.Hour})
	f.dialer.Add("slow", slow)
	f.dialer.Add("next", healthyClient("next"))

	sched := NewScheduler(hostsNamed("slow", "next"), f.poller, f.store, s)
	snap, err := sched.RunCycle(context.Background())
	require.NoError(t, err)

	assertExactlyOne(t, snap.Hosts["next"], DefaultCommands())
	assert.Equal(t, "not polled before cycle deadline", snap.Hosts["next"].Failures["cpu"].Detail)
	assert.Equal(t, 0, f.dialer.Dials("next"))
}

func TestScheduler_RunCycleRejectsOverlap(t *testing.T) {
	gate := make(chan struct{})
	f := newFixture(t, testSettings(), func(inner Runner) Runner {
		return &gateRunner{inner: inner, gate: gate}
	})
	f.dialer.Add("a", healthyClient("a"))
	sched := NewScheduler(hostsNamed("a"), f.poller, f.store, f.settings)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = sched.RunCycle(context.Background())
	}()

	require.Eventually(t, func() bool { return sched.State() == StatePolling }, time.Second, time.Millisecond)
	_, err := sched.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrCycleInProgress)

	close(gate)
	<-done
	assert.EqualValues(t, 1, sched.Cycles())
}

func TestScheduler_SkipsOverlappingTicks(t *testing.T) {
	clock := clockwork.NewFakeClock()
	gate := make(chan struct{})
	f := newFixture(t, testSettings(), func(inner Runner) Runner {
		return &gateRunner{inner: inner, gate: gate}
	})
	f.dialer.Add("a", healthyClient("a"))

	log := logger.NewBufferLogger()
	sched := NewScheduler(hostsNamed("a"), f.poller, f.store, f.settings, WithClock(clock), WithLogger(log))

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- sched.Run(ctx) }()

	clock.BlockUntil(1)
	require.Eventually(t, func() bool { return sched.State() == StatePolling }, time.Second, time.Millisecond)

	clock.Advance(f.settings.Interval)
	require.Eventually(t, func() bool { return sched.Skipped() == 1 }, time.Second, time.Millisecond)
	assert.EqualValues(t, 0, sched.Cycles())
	assert.True(t, log.Contains("skipping tick"))

	close(gate)
	require.Eventually(t, func() bool { return sched.Cycles() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return !sched.running.Load() }, time.Second, time.Millisecond)
	assert.Equal(t, StateIdle, sched.State())

	first := f.store.Read()
	clock.Advance(f.settings.Interval)
	require.Eventually(t, func() bool { return sched.Cycles() == 2 }, time.Second, time.Millisecond)
	assert.EqualValues(t, 1, sched.Skipped())
	assert.Same(t, first, f.store.Previous())

	cancel()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestScheduler_ShutdownWaitsForInFlightPoll(t *testing.T) {
	clock := clockwork.NewFakeClock()
	gate := make(chan struct{})
	f := newFixture(t, testSettings(), func(inner Runner) Runner {
		return &gateRunner{inner: inner, gate: gate}
	})
	f.dialer.Add("a", healthyClient("a"))
	sched := NewScheduler(hostsNamed("a"), f.poller, f.store, f.settings, WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- sched.Run(ctx) }()

	clock.BlockUntil(1)
	require.Eventually(t, func() bool { return sched.State() == StatePolling }, time.Second, time.Millisecond)

	cancel()
	clock.BlockUntil(2) // ticker + grace timer

	select {
	case <-runDone:
		t.Fatal("Run returned before the in-flight poll finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(gate)
	require.NoError(t, <-runDone)

	snap := f.store.Read()
	require.NotNil(t, snap)
	assert.Empty(t, snap.Hosts["a"].Failures, "poll finished inside the grace period")
}

func TestScheduler_ShutdownGraceExpires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	gate := make(chan struct{})
	f := newFixture(t, testSettings(), func(inner Runner) Runner {
		return &gateRunner{inner: inner, gate: gate}
	})
	f.dialer.Add("a", healthyClient("a"))
	sched := NewScheduler(hostsNamed("a"), f.poller, f.store, f.settings, WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- sched.Run(ctx) }()

	clock.BlockUntil(1)
	require.Eventually(t, func() bool { return sched.State() == StatePolling }, time.Second, time.Millisecond)

	cancel()
	clock.BlockUntil(2)
	clock.Advance(f.settings.ShutdownGrace)

	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not force-cancel after the grace period")
	}

	snap := f.store.Read()
	require.NotNil(t, snap, "the canceled cycle still publishes")
	assertExactlyOne(t, snap.Hosts["a"], DefaultCommands())
	for name, failure := range snap.Hosts["a"].Failures {
		assert.Equal(t, KindTimeout, failure.Kind, name)
	}
}

type recordingPublisher struct {
	snaps []*FleetSnapshot
	err   error
}

func (r *recordingPublisher) Publish(snap *FleetSnapshot) error {
	r.snaps = append(r.snaps, snap)
	return r.err
}

func TestScheduler_PublisherErrorsAreLogged(t *testing.T) {
	f := newFixture(t, testSettings(), nil)
	f.dialer.Add("a", healthyClient("a"))

	pub := &recordingPublisher{err: stderrors.New("disk full")}
	log := logger.NewBufferLogger()
	sched := NewScheduler(hostsNamed("a"), f.poller, f.store, f.settings, WithPublisher(pub), WithLogger(log))

	snap, err := sched.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, pub.snaps, 1)
	assert.Same(t, snap, pub.snaps[0])
	assert.True(t, log.HasLevel("error"))
	assert.True(t, log.Contains("disk full"))
	assert.Same(t, snap, f.store.Read())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "polling", StatePolling.String())
	assert.Equal(t, "aggregating", StateAggregating.String())
	assert.Equal(t, "published", StatePublished.String())
	assert.Equal(t, "unknown", State(42).String())
}
