package testing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rileyhilliard/fleetwatch/pkg/sshutil"
)

// WithResponses registers exact-command responses on client.
func WithResponses(client *MockClient, responses map[string]CommandResponse) {
	for cmd, resp := range responses {
		client.SetCommandResponse(cmd, resp)
	}
}

// WithStdout registers commands that succeed with the given stdout.
func WithStdout(client *MockClient, outputs map[string]string) {
	for cmd, out := range outputs {
		client.SetCommandResponse(cmd, CommandResponse{Stdout: []byte(out)})
	}
}

// MockDialer hands out MockClients by host and can be told to fail or
// stall specific hosts. It tracks the peak number of dials in flight.
type MockDialer struct {
	mu       sync.Mutex
	clients  map[string]*MockClient
	failures map[string]error
	delays   map[string]time.Duration
	dials    map[string]int

	inFlight atomic.Int32
	peak     atomic.Int32
}

// NewMockDialer returns an empty dialer. Unknown hosts fail to dial.
func NewMockDialer() *MockDialer {
	return &MockDialer{
		clients:  make(map[string]*MockClient),
		failures: make(map[string]error),
		delays:   make(map[string]time.Duration),
		dials:    make(map[string]int),
	}
}

// Add registers client for host. Every successful dial returns that same
// client, reopened if an earlier user closed it.
func (d *MockDialer) Add(host string, client *MockClient) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clients[host] = client
}

// Fail makes every dial to host return err.
func (d *MockDialer) Fail(host string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[host] = err
}

// Delay makes dials to host take at least delay.
func (d *MockDialer) Delay(host string, delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delays[host] = delay
}

// Dial returns the registered client for host.
func (d *MockDialer) Dial(ctx context.Context, host string) (sshutil.Conn, error) {
	n := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)
	for {
		p := d.peak.Load()
		if n <= p || d.peak.CompareAndSwap(p, n) {
			break
		}
	}

	d.mu.Lock()
	d.dials[host]++
	client := d.clients[host]
	failure := d.failures[host]
	delay := d.delays[host]
	d.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if failure != nil {
		return nil, failure
	}
	if client == nil {
		return nil, fmt.Errorf("dial %s: no route to host", host)
	}

	client.mu.Lock()
	client.closed = false
	client.mu.Unlock()
	return client, nil
}

// Dials returns how many times host was dialed.
func (d *MockDialer) Dials(host string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[host]
}

// PeakInFlight returns the most dials observed running at once.
func (d *MockDialer) PeakInFlight() int {
	return int(d.peak.Load())
}
