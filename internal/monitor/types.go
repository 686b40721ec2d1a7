package monitor

import (
	"encoding/json"
	stderrors "errors"
	"sort"
	"strings"
	"time"

	"github.com/rileyhilliard/fleetwatch/internal/errors"
	"github.com/rileyhilliard/fleetwatch/internal/monitor/parsers"
)

// Host is one monitored machine. Credentials are referenced by path or
// left to ssh-agent; the key material itself never passes through here.
type Host struct {
	ID           string
	Address      string
	User         string
	Port         int
	IdentityFile string

	// Timeout overrides Settings.HostTimeout when positive.
	Timeout time.Duration
}

// CommandSpec is one diagnostic command and the parser for its output.
type CommandSpec struct {
	Name    string
	Command string
	Parser  string
}

// DefaultCommands are the four stock probes.
func DefaultCommands() []CommandSpec {
	return []CommandSpec{
		{Name: "cpu", Command: "top -bn1 | grep Cpu", Parser: "top"},
		{Name: "mem", Command: "free -m", Parser: "free"},
		{Name: "disk", Command: "df -P -h /", Parser: "df"},
		{Name: "net", Command: "ifconfig", Parser: "ifconfig"},
	}
}

// Settings tune the collection engine. They are fixed for the life of a
// Scheduler.
type Settings struct {
	Interval          time.Duration
	MaxConcurrency    int
	HostTimeout       time.Duration
	CommandTimeout    time.Duration
	ConnectTimeout    time.Duration
	ConnectAttempts   int
	ConnectRetryDelay time.Duration
	ShutdownGrace     time.Duration

	// CycleDeadline bounds a whole cycle. Zero means the interval.
	CycleDeadline time.Duration

	ReuseConnections      bool
	StrictHostKeyChecking bool
	KnownHostsFile        string
	SSHConfigFile         string
}

// DefaultSettings returns the stock tuning.
func DefaultSettings() Settings {
	return Settings{
		Interval:              30 * time.Second,
		MaxConcurrency:        8,
		HostTimeout:           20 * time.Second,
		CommandTimeout:        10 * time.Second,
		ConnectTimeout:        5 * time.Second,
		ConnectAttempts:       2,
		ConnectRetryDelay:     500 * time.Millisecond,
		ShutdownGrace:         5 * time.Second,
		ReuseConnections:      true,
		StrictHostKeyChecking: true,
	}
}

func (s Settings) hostTimeout(h Host) time.Duration {
	if h.Timeout > 0 {
		return h.Timeout
	}
	return s.HostTimeout
}

func (s Settings) cycleDeadline() time.Duration {
	if s.CycleDeadline > 0 {
		return s.CycleDeadline
	}
	return s.Interval
}

// RawResult is the outcome of running one command. Err is nil only when the
// command ran and exited zero.
type RawResult struct {
	HostID   string
	Command  string
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Err      error
	Duration time.Duration
}

// Failure kinds, as they appear in snapshots.
const (
	KindConnection  = "connection"
	KindTimeout     = "timeout"
	KindExit        = "exit"
	KindParse       = "parse"
	KindAggregation = "aggregation"
)

// Short failure reasons that callers can match on.
const (
	ReasonUnreachable    = "unreachable"
	ReasonTimeout        = "timeout"
	ReasonConnectionLost = "connection lost"
	ReasonUnknownParser  = "unknown parser"
)

// Failure explains why a command produced no metric.
type Failure struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// failureFrom classifies a runner or parser error.
func failureFrom(err error) Failure {
	kind := strings.ToLower(errors.Kind(err))

	var perr *parsers.ParseError
	if stderrors.As(err, &perr) {
		return Failure{Kind: KindParse, Reason: perr.Reason}
	}

	switch kind {
	case KindTimeout:
		return Failure{Kind: KindTimeout, Reason: ReasonTimeout, Detail: errors.Short(err)}
	case KindExit:
		f := Failure{Kind: KindExit, Reason: "exit status"}
		var exitErr *errors.ExitError
		if stderrors.As(err, &exitErr) {
			f.Reason = exitErr.Error()
			f.Detail = firstLine(exitErr.Stderr)
		}
		return f
	case KindParse:
		return Failure{Kind: KindParse, Reason: errors.Short(err)}
	default:
		return Failure{Kind: KindConnection, Reason: ReasonConnectionLost, Detail: errors.Short(err)}
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// HostSnapshot is the result of polling one host in one cycle. Every
// configured command name is a key of exactly one of Metrics and Failures.
type HostSnapshot struct {
	HostID    string                    `json:"host"`
	Timestamp time.Time                 `json:"timestamp"`
	Duration  time.Duration             `json:"duration_ns"`
	Metrics   map[string]parsers.Metric `json:"metrics"`
	Failures  map[string]Failure        `json:"failures"`
}

func newHostSnapshot(hostID string, n int) HostSnapshot {
	return HostSnapshot{
		HostID:   hostID,
		Metrics:  make(map[string]parsers.Metric, n),
		Failures: make(map[string]Failure),
	}
}

// Degraded reports whether any command failed.
func (h HostSnapshot) Degraded() bool {
	return len(h.Failures) > 0
}

// Down reports whether every command failed.
func (h HostSnapshot) Down() bool {
	return len(h.Metrics) == 0 && len(h.Failures) > 0
}

// UnmarshalJSON restores the concrete metric types.
func (h *HostSnapshot) UnmarshalJSON(data []byte) error {
	var wire struct {
		HostID    string                     `json:"host"`
		Timestamp time.Time                  `json:"timestamp"`
		Duration  time.Duration              `json:"duration_ns"`
		Metrics   map[string]json.RawMessage `json:"metrics"`
		Failures  map[string]Failure         `json:"failures"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*h = newHostSnapshot(wire.HostID, len(wire.Metrics))
	h.Timestamp = wire.Timestamp
	h.Duration = wire.Duration
	for name, raw := range wire.Metrics {
		m, err := parsers.Decode(raw)
		if err != nil {
			return errors.WrapWithCode(err, errors.ErrAggregation,
				"Couldn't decode metric "+name+" of host "+wire.HostID, "")
		}
		h.Metrics[name] = m
	}
	for name, f := range wire.Failures {
		h.Failures[name] = f
	}
	return nil
}

// FleetSnapshot aggregates one cycle. It is never modified after publish.
type FleetSnapshot struct {
	CycleID   string                  `json:"cycle_id"`
	Timestamp time.Time               `json:"timestamp"`
	Duration  time.Duration           `json:"duration_ns"`
	Hosts     map[string]HostSnapshot `json:"hosts"`
}

// HostIDs returns the host ids in sorted order.
func (f *FleetSnapshot) HostIDs() []string {
	ids := make([]string, 0, len(f.Hosts))
	for id := range f.Hosts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Counts returns how many hosts are fully healthy, degraded, and down.
func (f *FleetSnapshot) Counts() (healthy, degraded, down int) {
	for _, h := range f.Hosts {
		switch {
		case h.Down():
			down++
		case h.Degraded():
			degraded++
		default:
			healthy++
		}
	}
	return healthy, degraded, down
}
