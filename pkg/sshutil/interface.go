package sshutil

import "context"

// Conn is the connection capability handed to the collector.
// Both the real Client and the testing fake satisfy this interface, so
// pollers and runners can be exercised without a live sshd.
type Conn interface {
	// ExecContext runs a command and returns stdout, stderr, and exit code.
	// Exit code is -1 if the command couldn't be executed at all.
	// A non-zero exit code with nil error means the command ran but failed.
	// When ctx ends first the session is torn down and ctx.Err() is returned.
	ExecContext(ctx context.Context, cmd string) (stdout, stderr []byte, exitCode int, err error)

	// Alive reports whether the transport still answers a keepalive request
	// before ctx ends.
	Alive(ctx context.Context) bool

	// Close closes the SSH connection.
	Close() error

	// GetHost returns the original host/alias used to connect.
	GetHost() string

	// GetAddress returns the resolved host:port address.
	GetAddress() string
}
