package monitor

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/rileyhilliard/fleetwatch/internal/errors"
	"github.com/rileyhilliard/fleetwatch/internal/monitor/parsers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailureFrom(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Failure
	}{
		{
			name: "parse error",
			err:  &parsers.ParseError{Parser: "df", Reason: "no root filesystem found"},
			want: Failure{Kind: KindParse, Reason: "no root filesystem found"},
		},
		{
			name: "deadline",
			err:  fmt.Errorf("exec: %w", context.DeadlineExceeded),
			want: Failure{Kind: KindTimeout, Reason: ReasonTimeout, Detail: "exec: context deadline exceeded"},
		},
		{
			name: "exit",
			err:  &errors.ExitError{Code: 2, Stderr: "df: /: No such file\nsecond line"},
			want: Failure{Kind: KindExit, Reason: "exit status 2", Detail: "df: /: No such file"},
		},
		{
			name: "connection",
			err:  errors.WrapWithCode(stderrors.New("EOF"), errors.ErrConnection, "Session died", ""),
			want: Failure{Kind: KindConnection, Reason: ReasonConnectionLost, Detail: "Session died: EOF"},
		},
		{
			name: "unknown",
			err:  stderrors.New("boom"),
			want: Failure{Kind: KindConnection, Reason: ReasonConnectionLost, Detail: "boom"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, failureFrom(tt.err))
		})
	}
}

func TestDefaultCommands(t *testing.T) {
	cmds := DefaultCommands()
	require.Len(t, cmds, 4)
	names := make([]string, len(cmds))
	for i, c := range cmds {
		names[i] = c.Name
		_, ok := parsers.Lookup(c.Parser)
		assert.True(t, ok, c.Parser)
	}
	assert.Equal(t, []string{"cpu", "mem", "disk", "net"}, names)
}

func TestSettings_Timeouts(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, 20*time.Second, s.hostTimeout(Host{}))
	assert.Equal(t, 3*time.Second, s.hostTimeout(Host{Timeout: 3 * time.Second}))
	assert.Equal(t, s.Interval, s.cycleDeadline())

	s.CycleDeadline = time.Second
	assert.Equal(t, time.Second, s.cycleDeadline())
}

func TestHostSnapshot_JSON(t *testing.T) {
	snap := sampleSnapshot()

	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var got FleetSnapshot
	require.NoError(t, json.Unmarshal(data, &got))

	web := got.Hosts["web1"]
	assert.Equal(t, "web1", web.HostID)
	assert.True(t, web.Timestamp.Equal(snap.Hosts["web1"].Timestamp))
	assert.IsType(t, parsers.CPU{}, web.Metrics["cpu"])
	assert.Equal(t, 1500*time.Millisecond, got.Duration)
}

func TestHostSnapshot_JSONBadMetric(t *testing.T) {
	var snap HostSnapshot
	err := json.Unmarshal([]byte(`{"host":"a","metrics":{"cpu":{"kind":"gpu"}}}`), &snap)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrAggregation))
}

func TestFleetSnapshot_Counts(t *testing.T) {
	snap := sampleSnapshot()
	ok := newHostSnapshot("ok", 1)
	ok.Metrics["cpu"] = parsers.CPU{}
	snap.Hosts["ok"] = ok

	healthy, degraded, down := snap.Counts()
	assert.Equal(t, 1, healthy)
	assert.Equal(t, 1, degraded)
	assert.Equal(t, 1, down)
	assert.Equal(t, []string{"db1", "ok", "web1"}, snap.HostIDs())
}
