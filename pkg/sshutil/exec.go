package sshutil

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/rileyhilliard/fleetwatch/internal/errors"
	"golang.org/x/crypto/ssh"
)

// ExecContext runs a command on the remote host, bounded by ctx.
// Returns stdout, stderr, exit code, and any error.
// Exit code is -1 if the command couldn't be executed at all.
//
// Opening the session is covered by ctx too. If ctx ends before the
// session is open the transport is not answering, so the whole client is
// closed.
func (c *Client) ExecContext(ctx context.Context, cmd string) (stdout, stderr []byte, exitCode int, err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, -1, err
	}

	var (
		mu        sync.Mutex
		session   *ssh.Session
		abandoned bool
	)
	var stdoutBuf, stderrBuf bytes.Buffer

	done := make(chan execOutcome, 1)
	go func() {
		s, err := c.Client.NewSession()
		if err != nil {
			done <- execOutcome{err: err}
			return
		}
		defer s.Close()
		s.Stdout = &stdoutBuf
		s.Stderr = &stderrBuf

		mu.Lock()
		if abandoned {
			mu.Unlock()
			done <- execOutcome{err: ctx.Err()}
			return
		}
		session = s
		mu.Unlock()

		done <- execOutcome{err: s.Run(cmd), opened: true}
	}()

	select {
	case <-ctx.Done():
		mu.Lock()
		abandoned = true
		s := session
		mu.Unlock()
		// Closing unblocks the goroutine; it drains into the buffered channel.
		if s != nil {
			_ = s.Close()
		} else {
			_ = c.Client.Close()
		}
		return nil, nil, -1, ctx.Err()
	case out := <-done:
		if !out.opened {
			return nil, nil, -1, errors.WrapWithCode(out.err, errors.ErrConnection,
				"Failed to create SSH session",
				"Connection may have been closed. It will be re-dialed next cycle.")
		}
		if out.err == nil {
			return stdoutBuf.Bytes(), stderrBuf.Bytes(), 0, nil
		}
		var exitErr *ssh.ExitError
		if stderrors.As(out.err, &exitErr) {
			return stdoutBuf.Bytes(), stderrBuf.Bytes(), exitErr.ExitStatus(), nil
		}
		return nil, nil, -1, errors.WrapWithCode(out.err, errors.ErrConnection,
			fmt.Sprintf("Failed to execute command: %s", cmd),
			"The session ended before the command reported an exit status.")
	}
}

type execOutcome struct {
	err    error
	opened bool
}

// Alive sends a keepalive global request on the SSH connection.
// This is cheaper than opening a session to probe liveness. A peer that
// does not answer before ctx ends is treated as gone and the client is
// closed.
func (c *Client) Alive(ctx context.Context) bool {
	if c == nil || c.Client == nil {
		return false
	}
	if ctx.Err() != nil {
		return false
	}

	reply := make(chan error, 1)
	go func() {
		_, _, err := c.Client.SendRequest("keepalive@openssh.com", true, nil)
		reply <- err
	}()

	select {
	case err := <-reply:
		return err == nil
	case <-ctx.Done():
		_ = c.Client.Close()
		return false
	}
}
