package monitor

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rileyhilliard/fleetwatch/internal/logger"
	"golang.org/x/sync/semaphore"
)

// State is where the scheduler is in its cycle.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateAggregating
	StatePublished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateAggregating:
		return "aggregating"
	case StatePublished:
		return "published"
	default:
		return "unknown"
	}
}

// ErrCycleInProgress is returned by RunCycle while another cycle runs.
var ErrCycleInProgress = stderrors.New("a poll cycle is already running")

// Scheduler drives poll cycles on a fixed interval.
type Scheduler struct {
	hosts    []Host
	poller   *Poller
	store    *Store
	sinks    []Publisher
	settings Settings
	clock    clockwork.Clock
	log      logger.Logger
	metrics  *Metrics

	running atomic.Bool
	state   atomic.Int32
	skipped atomic.Int64
	cycles  atomic.Int64
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithClock sets the clock that drives ticks, timestamps and the shutdown grace.
func WithClock(c clockwork.Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = c }
}

// WithLogger sets the scheduler's logger.
func WithLogger(l logger.Logger) SchedulerOption {
	return func(s *Scheduler) { s.log = l }
}

// WithMetrics records cycle metrics.
func WithMetrics(m *Metrics) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

// WithPublisher adds a publisher that receives every snapshot after the Store.
func WithPublisher(p Publisher) SchedulerOption {
	return func(s *Scheduler) { s.sinks = append(s.sinks, p) }
}

// NewScheduler creates a scheduler for hosts. hosts is not modified.
func NewScheduler(hosts []Host, poller *Poller, store *Store, settings Settings, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		hosts:    hosts,
		poller:   poller,
		store:    store,
		settings: settings,
		clock:    clockwork.NewRealClock(),
		log:      logger.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.WithPrefix(s.log, "[scheduler]")
	return s
}

// State returns the current cycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Skipped returns how many ticks were dropped because a cycle was running.
func (s *Scheduler) Skipped() int64 {
	return s.skipped.Load()
}

// Cycles returns how many cycles have been published.
func (s *Scheduler) Cycles() int64 {
	return s.cycles.Load()
}

// Run polls immediately and then on every interval tick until ctx ends.
// In-flight polls then get ShutdownGrace to finish before they are
// canceled. Run returns once the last cycle has published.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.settings.Interval)
	defer ticker.Stop()

	// Polls outlive ctx by up to the grace period.
	pollCtx, cancelPolls := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelPolls()

	var wg sync.WaitGroup
	tick := func() {
		if !s.running.CompareAndSwap(false, true) {
			s.skipped.Add(1)
			s.metrics.tickSkipped()
			s.log.Warn("previous cycle still running, skipping tick")
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.running.Store(false)
			s.cycle(pollCtx)
		}()
	}

	s.log.Info("polling %d hosts every %s", len(s.hosts), s.settings.Interval)
	tick()

	for {
		select {
		case <-ctx.Done():
			s.shutdown(&wg, cancelPolls)
			return nil
		case <-ticker.Chan():
			tick()
		}
	}
}

func (s *Scheduler) shutdown(wg *sync.WaitGroup, cancelPolls context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	if !s.running.Load() {
		<-done
		return
	}

	s.log.Info("waiting up to %s for in-flight polls", s.settings.ShutdownGrace)
	grace := s.clock.NewTimer(s.settings.ShutdownGrace)
	defer grace.Stop()

	select {
	case <-done:
	case <-grace.Chan():
		s.log.Warn("shutdown grace expired, canceling in-flight polls")
		cancelPolls()
		<-done
	}
}

// RunCycle runs a single cycle and returns the published snapshot.
func (s *Scheduler) RunCycle(ctx context.Context) (*FleetSnapshot, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer s.running.Store(false)
	return s.cycle(ctx), nil
}

func (s *Scheduler) cycle(ctx context.Context) *FleetSnapshot {
	start := s.clock.Now()
	s.setState(StatePolling)

	cycleCtx, cancel := context.WithTimeout(ctx, s.settings.cycleDeadline())
	defer cancel()

	limit := s.settings.MaxConcurrency
	if limit < 1 {
		limit = 1
	}
	sem := semaphore.NewWeighted(int64(limit))
	results := make(chan HostSnapshot, len(s.hosts))

	for _, host := range s.hosts {
		if err := sem.Acquire(cycleCtx, 1); err != nil {
			results <- s.notPolled(host)
			continue
		}
		go func(host Host) {
			defer sem.Release(1)
			s.metrics.pollerStarted()
			defer s.metrics.pollerDone()
			results <- s.poller.Poll(cycleCtx, host)
		}(host)
	}

	hosts := make(map[string]HostSnapshot, len(s.hosts))
	for range s.hosts {
		snap := <-results
		hosts[snap.HostID] = snap
	}

	s.setState(StateAggregating)
	snap := s.aggregate(hosts, start)

	s.store.Publish(snap)
	for _, sink := range s.sinks {
		if err := sink.Publish(snap); err != nil {
			s.log.Error("publish snapshot %s: %v", snap.CycleID, err)
		}
	}
	s.cycles.Add(1)
	s.metrics.cyclePublished(snap)
	s.setState(StatePublished)

	healthy, degraded, down := snap.Counts()
	s.log.Info("cycle %s published in %s: %d healthy, %d degraded, %d down",
		snap.CycleID[:8], snap.Duration.Round(time.Millisecond), healthy, degraded, down)

	s.setState(StateIdle)
	return snap
}

// aggregate builds the FleetSnapshot. A host result that doesn't account
// for every configured command gets aggregation failures for the gaps.
func (s *Scheduler) aggregate(hosts map[string]HostSnapshot, start time.Time) *FleetSnapshot {
	for id, hs := range hosts {
		for _, cmd := range s.poller.Commands() {
			_, ok1 := hs.Metrics[cmd.Name]
			_, ok2 := hs.Failures[cmd.Name]
			if ok1 || ok2 {
				continue
			}
			hs.Failures[cmd.Name] = Failure{
				Kind:   KindAggregation,
				Reason: "missing result",
				Detail: "no metric or failure was recorded for this command",
			}
			s.log.Error("host %s returned no result for %s", id, cmd.Name)
		}
	}

	now := s.clock.Now()
	return &FleetSnapshot{
		CycleID:   uuid.NewString(),
		Timestamp: now,
		Duration:  now.Sub(start),
		Hosts:     hosts,
	}
}

// notPolled records a host the cycle never got to before its deadline.
func (s *Scheduler) notPolled(host Host) HostSnapshot {
	snap := newHostSnapshot(host.ID, 0)
	snap.Timestamp = s.clock.Now()
	for _, cmd := range s.poller.Commands() {
		f := Failure{Kind: KindTimeout, Reason: ReasonTimeout, Detail: "not polled before cycle deadline"}
		s.metrics.observeCommand(cmd.Name, 0, &f)
		snap.Failures[cmd.Name] = f
	}
	s.log.Warn("%s not polled before cycle deadline", host.ID)
	return snap
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
}
