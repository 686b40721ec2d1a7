package config

import (
	"fmt"
	"maps"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/rileyhilliard/fleetwatch/internal/errors"
	"github.com/rileyhilliard/fleetwatch/internal/monitor/parsers"
)

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
)

// Validate checks the config for errors and returns structured error messages.
func Validate(cfg *Config) error {
	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but fleetwatch only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Upgrade fleetwatch or lower the version field.")
	}

	if err := validateHosts(cfg.Hosts); err != nil {
		return err
	}

	if err := validateCommands(cfg.Commands); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'commands' section in "+ConfigFileName+".")
	}

	if err := validateTiming(cfg); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the timing settings in "+ConfigFileName+".")
	}

	if err := validateLogs(cfg.Logs); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'logs' section in "+ConfigFileName+".")
	}

	if cfg.Server.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.Server.Listen); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				fmt.Sprintf("server.listen %q isn't a host:port address", cfg.Server.Listen),
				"Use something like ':8080' or '127.0.0.1:9100'.")
		}
	}

	return nil
}

func validateHosts(hosts map[string]Host) error {
	if len(hosts) == 0 {
		return errors.New(errors.ErrConfig,
			"No hosts configured",
			"Add at least one entry under 'hosts', or run 'fleetwatch init'.")
	}

	for name, h := range hosts {
		if strings.TrimSpace(name) == "" {
			return errors.New(errors.ErrConfig,
				"Host with an empty name",
				"Give every entry under 'hosts' a name.")
		}
		if strings.TrimSpace(h.Address) == "" {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Host '%s' has no address", name),
				"Set 'address' to a hostname, user@host, or an ssh_config alias.")
		}
		if h.Port < 0 || h.Port > 65535 {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Host '%s' has invalid port %d", name, h.Port),
				"Ports are 1-65535. Leave it out to use 22 or your ssh_config.")
		}
		if h.Timeout < 0 {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Host '%s' has a negative timeout", name),
				"Remove the override or set a positive duration like '15s'.")
		}
	}
	return nil
}

func validateCommands(cmds []Command) error {
	seen := make(map[string]bool, len(cmds))
	for i, cmd := range cmds {
		if strings.TrimSpace(cmd.Name) == "" {
			return fmt.Errorf("command #%d has no name", i+1)
		}
		if seen[cmd.Name] {
			return fmt.Errorf("command '%s' is defined twice", cmd.Name)
		}
		seen[cmd.Name] = true

		if strings.TrimSpace(cmd.Run) == "" {
			return fmt.Errorf("command '%s' has nothing to run", cmd.Name)
		}
		if _, ok := parsers.Lookup(cmd.Parser); !ok {
			return fmt.Errorf("command '%s' uses unknown parser '%s' (known: %s)",
				cmd.Name, cmd.Parser, strings.Join(parsers.Selectors(), ", "))
		}
	}
	return nil
}

func validateTiming(cfg *Config) error {
	positive := []struct {
		name  string
		value time.Duration
	}{
		{"interval", cfg.Interval},
		{"host_timeout", cfg.HostTimeout},
		{"command_timeout", cfg.CommandTimeout},
		{"connect_timeout", cfg.ConnectTimeout},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", p.name, p.value)
		}
	}

	if cfg.ShutdownGrace < 0 {
		return fmt.Errorf("shutdown_grace can't be negative")
	}
	if cfg.ConnectRetryDelay < 0 {
		return fmt.Errorf("connect_retry_delay can't be negative")
	}
	if cfg.CycleDeadline < 0 {
		return fmt.Errorf("cycle_deadline can't be negative")
	}
	if cfg.HostTimeout >= cfg.Interval {
		return fmt.Errorf("host_timeout (%s) must be shorter than interval (%s)", cfg.HostTimeout, cfg.Interval)
	}
	for _, name := range slices.Sorted(maps.Keys(cfg.Hosts)) {
		if t := cfg.Hosts[name].Timeout; t >= cfg.Interval {
			return fmt.Errorf("timeout for host '%s' (%s) must be shorter than interval (%s)", name, t, cfg.Interval)
		}
	}
	if cfg.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1, got %d", cfg.MaxConcurrency)
	}
	if cfg.ConnectAttempts < 1 {
		return fmt.Errorf("connect_attempts must be at least 1, got %d", cfg.ConnectAttempts)
	}
	return nil
}

func validateLogs(logs LogConfig) error {
	if logs.Level != "" && !contains(validLogLevels, logs.Level) {
		return fmt.Errorf("invalid log level '%s' (valid: %s)", logs.Level, strings.Join(validLogLevels, ", "))
	}
	if logs.Format != "" && !contains(validLogFormats, logs.Format) {
		return fmt.Errorf("invalid log format '%s' (valid: %s)", logs.Format, strings.Join(validLogFormats, ", "))
	}
	return nil
}

func contains(slice []string, s string) bool {
	for _, item := range slice {
		if item == s {
			return true
		}
	}
	return false
}
