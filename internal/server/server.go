// Package server exposes the latest fleet snapshot over HTTP.
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rileyhilliard/fleetwatch/internal/errors"
	"github.com/rileyhilliard/fleetwatch/internal/logger"
	"github.com/rileyhilliard/fleetwatch/internal/monitor"
)

// Banner is served at /.
const Banner = "fleetwatch: fleet metrics at /metrics\n"

// Snapshots is the read side of the snapshot store.
type Snapshots interface {
	Read() *monitor.FleetSnapshot
	Previous() *monitor.FleetSnapshot
	Age(now time.Time) (time.Duration, bool)
}

// Options configure a Server.
type Options struct {
	Listen string

	// ShutdownGrace bounds how long in-flight requests get on shutdown.
	ShutdownGrace time.Duration

	// Gatherer backs /debug/metrics. Nil disables the route.
	Gatherer prometheus.Gatherer

	Clock  clockwork.Clock
	Logger logger.Logger
}

// Server serves snapshot reads. Handlers only ever read the store.
type Server struct {
	store   Snapshots
	opts    Options
	started time.Time
	http    *http.Server
}

// Health is the body of /health.
type Health struct {
	Status         string  `json:"status"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	HasSnapshot    bool    `json:"has_snapshot"`
	LastPublishAge float64 `json:"last_publish_age_seconds,omitempty"`
	LastCycleID    string  `json:"last_cycle_id,omitempty"`
	HostsTotal     int     `json:"hosts_total"`
	HostsHealthy   int     `json:"hosts_healthy"`
	HostsDegraded  int     `json:"hosts_degraded"`
	HostsDown      int     `json:"hosts_down"`
}

// New builds a Server over store.
func New(store Snapshots, opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Noop()
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 5 * time.Second
	}

	s := &Server{
		store:   store,
		opts:    opts,
		started: opts.Clock.Now(),
	}
	s.http = &http.Server{
		Addr:              opts.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /metrics", s.handleCurrent)
	mux.HandleFunc("GET /metrics/previous", s.handlePrevious)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.opts.Gatherer != nil {
		mux.Handle("GET /debug/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(Banner))
	})
	return mux
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Can't listen on "+s.opts.Listen,
			"Pick a free address with server.listen or FLEETWATCH_SERVER_LISTEN.")
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.opts.Logger.Info("serving on %s", ln.Addr())
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownGrace)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.opts.Logger.Warn("shutdown: %v", err)
		_ = s.http.Close()
	}
	if err := <-errCh; err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Read()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "no snapshot yet"})
		return
	}
	s.writeSnapshot(w, snap)
}

func (s *Server) handlePrevious(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Previous()
	if snap == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no previous snapshot"})
		return
	}
	s.writeSnapshot(w, snap)
}

func (s *Server) writeSnapshot(w http.ResponseWriter, snap *monitor.FleetSnapshot) {
	now := s.opts.Clock.Now()
	w.Header().Set("X-Snapshot-Age", now.Sub(snap.Timestamp).Round(time.Millisecond).String())
	w.Header().Set("Last-Modified", snap.Timestamp.UTC().Format(http.TimeFormat))
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := s.opts.Clock.Now()
	h := Health{
		Status:        "ok",
		UptimeSeconds: now.Sub(s.started).Seconds(),
	}
	if age, ok := s.store.Age(now); ok {
		h.HasSnapshot = true
		h.LastPublishAge = age.Seconds()
	}
	if snap := s.store.Read(); snap != nil {
		h.LastCycleID = snap.CycleID
		h.HostsTotal = len(snap.Hosts)
		h.HostsHealthy, h.HostsDegraded, h.HostsDown = snap.Counts()
	}
	writeJSON(w, http.StatusOK, h)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
