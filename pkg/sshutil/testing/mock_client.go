package testing

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/rileyhilliard/fleetwatch/pkg/sshutil"
)

// ErrClosed is returned by ExecContext once the client has been closed.
var ErrClosed = errors.New("connection closed")

// CommandResponse defines a canned response for a command.
type CommandResponse struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Error    error

	// Delay holds the response back. A ctx that ends first wins.
	Delay time.Duration

	// Drop closes the client as part of answering, the way a remote that
	// hangs up mid-command would look.
	Drop bool
}

// MockClient is a scripted sshutil.Conn. Commands are matched exactly
// first, then against registered regex patterns in registration order.
type MockClient struct {
	mu       sync.Mutex
	host     string
	address  string
	closed   bool
	dead     bool
	hang     bool
	commands map[string]CommandResponse
	patterns []patternResponse
	fallback *CommandResponse
	calls    []string
}

type patternResponse struct {
	re   *regexp.Regexp
	resp CommandResponse
}

var _ sshutil.Conn = (*MockClient)(nil)

// NewMockClient creates a mock client whose unknown commands exit 127.
func NewMockClient(host string) *MockClient {
	return &MockClient{
		host:     host,
		address:  host + ":22",
		commands: make(map[string]CommandResponse),
	}
}

// SetCommandResponse registers the response for an exact command string.
func (m *MockClient) SetCommandResponse(cmd string, resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands[cmd] = resp
}

// SetPatternResponse registers the response for commands matching pattern.
// It panics on an invalid pattern.
func (m *MockClient) SetPatternResponse(pattern string, resp CommandResponse) {
	re := regexp.MustCompile(pattern)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns = append(m.patterns, patternResponse{re: re, resp: resp})
}

// SetDefaultResponse answers every command that has no other match.
func (m *MockClient) SetDefaultResponse(resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &resp
}

// SetAlive controls what Alive reports while the client is open.
func (m *MockClient) SetAlive(alive bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dead = !alive
}

// SetHang makes Alive block until its ctx ends, the way a keepalive on a
// half-open connection never gets a reply. The client is closed when the
// wait gives up.
func (m *MockClient) SetHang(hang bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hang = hang
}

// ExecContext returns the scripted response for cmd.
func (m *MockClient) ExecContext(ctx context.Context, cmd string) (stdout, stderr []byte, exitCode int, err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, nil, -1, ErrClosed
	}
	m.calls = append(m.calls, cmd)
	resp := m.lookup(cmd)
	m.mu.Unlock()

	if resp.Delay > 0 {
		timer := time.NewTimer(resp.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, nil, -1, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, nil, -1, err
	}

	if resp.Drop {
		_ = m.Close()
		if resp.Error == nil {
			return nil, nil, -1, ErrClosed
		}
	}

	return resp.Stdout, resp.Stderr, resp.ExitCode, resp.Error
}

func (m *MockClient) lookup(cmd string) CommandResponse {
	if resp, ok := m.commands[cmd]; ok {
		return resp
	}
	for _, p := range m.patterns {
		if p.re.MatchString(cmd) {
			return p.resp
		}
	}
	if m.fallback != nil {
		return *m.fallback
	}
	return CommandResponse{
		Stderr:   []byte("sh: command not found\n"),
		ExitCode: 127,
	}
}

// Alive reports false once closed or after SetAlive(false).
func (m *MockClient) Alive(ctx context.Context) bool {
	m.mu.Lock()
	hang := m.hang && !m.closed
	m.mu.Unlock()

	if hang {
		<-ctx.Done()
		_ = m.Close()
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed && !m.dead
}

// Close marks the client closed.
func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// IsClosed reports whether Close has been called.
func (m *MockClient) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// GetHost returns the host the mock was created for.
func (m *MockClient) GetHost() string {
	return m.host
}

// GetAddress returns host:22.
func (m *MockClient) GetAddress() string {
	return m.address
}

// Calls returns the commands executed so far, in order.
func (m *MockClient) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}
