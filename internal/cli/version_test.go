package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatVersion(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"dev", "dev"},
		{"1.2.3", "v1.2.3"},
		{"v1.2.3", "v1.2.3"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatVersion(tt.in))
	}
}

func TestVersionCommand(t *testing.T) {
	SetVersionInfo("1.0.0", "abc123", "2026-01-01")
	t.Cleanup(func() { SetVersionInfo("dev", "none", "unknown") })

	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionShort = false
	versionCmd.Run(versionCmd, nil)

	assert.Contains(t, out.String(), "fleetwatch v1.0.0")
	assert.Contains(t, out.String(), "commit: abc123")
	assert.Equal(t, "1.0.0", GetVersion())
}
