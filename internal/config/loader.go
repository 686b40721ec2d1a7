package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rileyhilliard/fleetwatch/internal/errors"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = "fleetwatch.yaml"
	// GlobalConfigDir is the directory for global config.
	GlobalConfigDir = ".config/fleetwatch"
	// GlobalConfigFile is the global config file name.
	GlobalConfigFile = "config.yaml"
	// EnvPrefix prefixes environment overrides, e.g. FLEETWATCH_INTERVAL=10s.
	EnvPrefix = "FLEETWATCH"
)

// Load reads config from the specified path. Scalar settings can be
// overridden from the environment.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Config file not found",
				"Run 'fleetwatch init' to create a config file, or specify one with --config")
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to read config file",
			"Check the file exists and is valid YAML")
	}

	return parseConfig(v, path)
}

// Find locates the config file using the search order:
// 1. Explicit path (from --config flag)
// 2. fleetwatch.yaml in current directory
// 3. ~/.config/fleetwatch/config.yaml
//
// Returns the path to the config file, or empty string if not found.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			if os.IsNotExist(err) {
				return "", errors.WrapWithCode(err, errors.ErrConfig,
					"Specified config file not found: "+explicit,
					"Check the path is correct")
			}
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot access config file: "+explicit,
				"Check file permissions")
		}
		return explicit, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot determine current directory",
			"Check directory permissions")
	}

	localConfig := filepath.Join(cwd, ConfigFileName)
	if _, err := os.Stat(localConfig); err == nil {
		return localConfig, nil
	}

	if home, err := os.UserHomeDir(); err == nil && home != "" {
		globalConfig := filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
		if _, err := os.Stat(globalConfig); err == nil {
			return globalConfig, nil
		}
	}

	return "", nil
}

// LoadFound finds and loads the config. Unlike init, collection needs a
// real file, so a missing config is an error.
func LoadFound(explicit string) (*Config, string, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, "", err
	}
	if path == "" {
		return nil, "", errors.New(errors.ErrConfig,
			"No config file found",
			"Run 'fleetwatch init' to create "+ConfigFileName+", or pass --config")
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// parseConfig converts viper config to our Config struct with defaults merged in.
func parseConfig(v *viper.Viper, path string) (*Config, error) {
	cfg := DefaultConfig()

	// time.Duration fields decode from strings like "30s" through viper's
	// default decode hooks.
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the YAML syntax in "+path)
	}

	if cfg.Hosts == nil {
		cfg.Hosts = make(map[string]Host)
	}
	for name, host := range cfg.Hosts {
		host.IdentityFile = Expand(host.IdentityFile)
		cfg.Hosts[name] = host
	}
	cfg.KnownHostsFile = Expand(cfg.KnownHostsFile)
	cfg.SSHConfigFile = Expand(cfg.SSHConfigFile)
	cfg.SnapshotFile = Expand(cfg.SnapshotFile)

	return cfg, nil
}

// setDefaults registers every scalar key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("version", d.Version)
	v.SetDefault("interval", d.Interval)
	v.SetDefault("max_concurrency", d.MaxConcurrency)
	v.SetDefault("host_timeout", d.HostTimeout)
	v.SetDefault("command_timeout", d.CommandTimeout)
	v.SetDefault("cycle_deadline", d.CycleDeadline)
	v.SetDefault("connect_timeout", d.ConnectTimeout)
	v.SetDefault("connect_attempts", d.ConnectAttempts)
	v.SetDefault("connect_retry_delay", d.ConnectRetryDelay)
	v.SetDefault("shutdown_grace", d.ShutdownGrace)
	v.SetDefault("reuse_connections", d.ReuseConnections)
	v.SetDefault("strict_host_key_checking", d.StrictHostKeyChecking)
	v.SetDefault("known_hosts_file", "")
	v.SetDefault("ssh_config_file", "")
	v.SetDefault("snapshot_file", "")
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("logs.level", d.Logs.Level)
	v.SetDefault("logs.format", d.Logs.Format)
}
