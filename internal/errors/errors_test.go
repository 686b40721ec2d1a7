package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCodes(t *testing.T) {
	codes := []string{
		ErrConfig,
		ErrSSH,
		ErrConnection,
		ErrTimeout,
		ErrExit,
		ErrParse,
		ErrAggregation,
	}

	seen := make(map[string]bool)
	for _, code := range codes {
		assert.NotEmpty(t, code, "error code should not be empty")
		assert.False(t, seen[code], "error code %q should be unique", code)
		seen[code] = true
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		code       string
		message    string
		suggestion string
	}{
		{
			name:       "config error",
			code:       ErrConfig,
			message:    "No hosts configured",
			suggestion: "Add at least one entry under 'hosts'",
		},
		{
			name:       "connection error",
			code:       ErrConnection,
			message:    "Can't reach 'web1'",
			suggestion: "Check the host is up",
		},
		{
			name:       "parse error",
			code:       ErrParse,
			message:    "no root filesystem found",
			suggestion: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, tt.suggestion)

			require.NotNil(t, err)
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.message, err.Message)
			assert.Equal(t, tt.suggestion, err.Suggestion)
			assert.Nil(t, err.Cause)
		})
	}
}

func TestErrorFormatting(t *testing.T) {
	err := WrapWithCode(
		errors.New("dial tcp 10.0.0.1:22: connect: connection refused"),
		ErrConnection,
		"Can't reach 'web1'",
		"Is SSH running on that box?",
	)

	output := err.Error()
	lines := strings.Split(output, "\n")

	assert.True(t, strings.HasPrefix(strings.TrimSpace(lines[0]), "✗"), "first line should start with failure symbol")
	assert.Contains(t, lines[0], "Can't reach 'web1'")
	assert.Contains(t, output, "connection refused")
	assert.Contains(t, output, "Is SSH running on that box?")
}

func TestWrap(t *testing.T) {
	cause := errors.New("underlying network error")
	wrapped := Wrap(cause, "SSH connection failed")

	require.NotNil(t, wrapped)
	assert.Equal(t, ErrSSH, wrapped.Code, "Wrap should default to ErrSSH code")
	assert.Equal(t, cause, wrapped.Cause)
	assert.True(t, errors.Is(wrapped, cause))
}

func TestIsCode(t *testing.T) {
	err := New(ErrConfig, "Config error", "")

	assert.True(t, IsCode(err, ErrConfig))
	assert.False(t, IsCode(err, ErrSSH))
	assert.False(t, IsCode(errors.New("standard error"), ErrConfig))
	assert.False(t, IsCode(nil, ErrConfig))
}

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "deadline", err: context.DeadlineExceeded, want: ErrTimeout},
		{name: "wrapped deadline", err: WrapWithCode(context.DeadlineExceeded, ErrConnection, "dial", ""), want: ErrTimeout},
		{name: "ssh maps to connection", err: New(ErrSSH, "handshake failed", ""), want: ErrConnection},
		{name: "parse", err: New(ErrParse, "bad", ""), want: ErrParse},
		{name: "exit", err: fmt.Errorf("run: %w", NewExitError(2)), want: ErrExit},
		{name: "plain error", err: errors.New("EOF"), want: ErrConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestShort(t *testing.T) {
	assert.Equal(t, "", Short(nil))
	assert.Equal(t, "plain", Short(errors.New("plain")))
	assert.Equal(t, "Can't reach 'db'", Short(New(ErrConnection, "Can't reach 'db'", "try again")))
	assert.Equal(t, "Can't reach 'db': i/o timeout",
		Short(WrapWithCode(errors.New("i/o timeout"), ErrConnection, "Can't reach 'db'", "")))
}

func TestExitError(t *testing.T) {
	err := NewExitError(137)
	assert.Equal(t, "exit status 137", err.Error())

	code, ok := GetExitCode(fmt.Errorf("wrapped: %w", err))
	assert.True(t, ok)
	assert.Equal(t, 137, code)

	_, ok = GetExitCode(errors.New("standard error"))
	assert.False(t, ok)
	_, ok = GetExitCode(nil)
	assert.False(t, ok)
}
