package monitor

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rileyhilliard/fleetwatch/internal/errors"
	"github.com/rileyhilliard/fleetwatch/pkg/sshutil"
)

// Runner executes one command on one live connection.
type Runner interface {
	Run(ctx context.Context, conn sshutil.Conn, host Host, spec CommandSpec) RawResult
}

// SSHRunner runs commands through sshutil.Conn.ExecContext, each bounded by
// Timeout as well as by ctx.
type SSHRunner struct {
	Timeout time.Duration
	Clock   clockwork.Clock
}

// NewSSHRunner creates a runner with the given per-command timeout.
func NewSSHRunner(timeout time.Duration, clock clockwork.Clock) *SSHRunner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SSHRunner{Timeout: timeout, Clock: clock}
}

// Run executes spec on conn. The result's Err is a TIMEOUT, EXIT or
// CONNECTION error, or nil when the command exited zero.
func (r *SSHRunner) Run(ctx context.Context, conn sshutil.Conn, host Host, spec CommandSpec) RawResult {
	result := RawResult{HostID: host.ID, Command: spec.Name, ExitCode: -1}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	start := r.Clock.Now()
	stdout, stderr, code, err := conn.ExecContext(ctx, spec.Command)
	result.Duration = r.Clock.Since(start)
	result.Stdout = stdout
	result.Stderr = stderr
	result.ExitCode = code

	switch {
	case err == nil && code == 0:
		return result
	case err == nil:
		result.Err = &errors.ExitError{Code: code, Stderr: string(stderr)}
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(err, context.Canceled):
		result.Err = errors.WrapWithCode(err, errors.ErrTimeout,
			fmt.Sprintf("%s on %s did not finish in time", spec.Name, host.ID),
			"Raise command_timeout or host_timeout if the command is just slow.")
	default:
		if errors.Kind(err) != errors.ErrConnection {
			err = errors.WrapWithCode(err, errors.ErrConnection,
				fmt.Sprintf("%s on %s lost its connection", spec.Name, host.ID), "")
		}
		result.Err = err
	}
	return result
}
