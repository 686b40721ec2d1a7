package config

import (
	"testing"
	"time"

	"github.com/rileyhilliard/fleetwatch/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Hosts["web1"] = Host{Address: "web1.example.com"}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		wantErr     bool
		errContains string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:        "future version",
			mutate:      func(c *Config) { c.Version = CurrentConfigVersion + 1 },
			wantErr:     true,
			errContains: "from the future",
		},
		{
			name:        "no hosts",
			mutate:      func(c *Config) { c.Hosts = map[string]Host{} },
			wantErr:     true,
			errContains: "No hosts configured",
		},
		{
			name:        "host without address",
			mutate:      func(c *Config) { c.Hosts["db"] = Host{} },
			wantErr:     true,
			errContains: "Host 'db' has no address",
		},
		{
			name:        "port out of range",
			mutate:      func(c *Config) { c.Hosts["db"] = Host{Address: "db", Port: 70000} },
			wantErr:     true,
			errContains: "invalid port 70000",
		},
		{
			name:        "negative host timeout",
			mutate:      func(c *Config) { c.Hosts["db"] = Host{Address: "db", Timeout: -time.Second} },
			wantErr:     true,
			errContains: "negative timeout",
		},
		{
			name: "custom commands",
			mutate: func(c *Config) {
				c.Commands = []Command{{Name: "cpu", Run: "cat /proc/stat", Parser: "procstat"}}
			},
		},
		{
			name: "duplicate command name",
			mutate: func(c *Config) {
				c.Commands = []Command{
					{Name: "cpu", Run: "cat /proc/stat", Parser: "procstat"},
					{Name: "cpu", Run: "top -bn1", Parser: "top"},
				}
			},
			wantErr:     true,
			errContains: "defined twice",
		},
		{
			name: "unknown parser",
			mutate: func(c *Config) {
				c.Commands = []Command{{Name: "gpu", Run: "nvidia-smi", Parser: "nvidia"}}
			},
			wantErr:     true,
			errContains: "unknown parser 'nvidia'",
		},
		{
			name: "command without run",
			mutate: func(c *Config) {
				c.Commands = []Command{{Name: "cpu", Parser: "top"}}
			},
			wantErr:     true,
			errContains: "nothing to run",
		},
		{
			name:        "zero interval",
			mutate:      func(c *Config) { c.Interval = 0 },
			wantErr:     true,
			errContains: "interval must be positive",
		},
		{
			name: "host timeout not shorter than interval",
			mutate: func(c *Config) {
				c.Interval = 10 * time.Second
				c.HostTimeout = 10 * time.Second
			},
			wantErr:     true,
			errContains: "must be shorter than interval",
		},
		{
			name: "host timeout override not shorter than interval",
			mutate: func(c *Config) {
				c.Interval = 10 * time.Second
				c.Hosts["db"] = Host{Address: "db", Timeout: 15 * time.Second}
			},
			wantErr:     true,
			errContains: "timeout for host 'db' (15s) must be shorter than interval",
		},
		{
			name: "host timeout override within interval",
			mutate: func(c *Config) {
				c.Interval = 10 * time.Second
				c.HostTimeout = 5 * time.Second
				c.Hosts["db"] = Host{Address: "db", Timeout: 8 * time.Second}
			},
		},
		{
			name:        "zero concurrency",
			mutate:      func(c *Config) { c.MaxConcurrency = 0 },
			wantErr:     true,
			errContains: "max_concurrency must be at least 1",
		},
		{
			name:        "zero connect attempts",
			mutate:      func(c *Config) { c.ConnectAttempts = 0 },
			wantErr:     true,
			errContains: "connect_attempts must be at least 1",
		},
		{
			name:        "bad log level",
			mutate:      func(c *Config) { c.Logs.Level = "verbose" },
			wantErr:     true,
			errContains: "invalid log level 'verbose'",
		},
		{
			name:        "bad log format",
			mutate:      func(c *Config) { c.Logs.Format = "xml" },
			wantErr:     true,
			errContains: "invalid log format 'xml'",
		},
		{
			name:        "bad listen address",
			mutate:      func(c *Config) { c.Server.Listen = "8080" },
			wantErr:     true,
			errContains: "isn't a host:port address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
			assert.True(t, errors.IsCode(err, errors.ErrConfig))
		})
	}
}
