package config

import "time"

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Config represents the complete fleetwatch.yaml configuration file.
type Config struct {
	Version int `yaml:"version" mapstructure:"version"`

	// Hosts maps a host id to its connection settings.
	Hosts map[string]Host `yaml:"hosts" mapstructure:"hosts"`

	// Commands run on every host, in this order. Empty means the stock four.
	Commands []Command `yaml:"commands,omitempty" mapstructure:"commands"`

	Interval          time.Duration `yaml:"interval" mapstructure:"interval"`
	MaxConcurrency    int           `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	HostTimeout       time.Duration `yaml:"host_timeout" mapstructure:"host_timeout"`
	CommandTimeout    time.Duration `yaml:"command_timeout" mapstructure:"command_timeout"`
	CycleDeadline     time.Duration `yaml:"cycle_deadline,omitempty" mapstructure:"cycle_deadline"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
	ConnectAttempts   int           `yaml:"connect_attempts" mapstructure:"connect_attempts"`
	ConnectRetryDelay time.Duration `yaml:"connect_retry_delay" mapstructure:"connect_retry_delay"`
	ShutdownGrace     time.Duration `yaml:"shutdown_grace" mapstructure:"shutdown_grace"`

	ReuseConnections      bool   `yaml:"reuse_connections" mapstructure:"reuse_connections"`
	StrictHostKeyChecking bool   `yaml:"strict_host_key_checking" mapstructure:"strict_host_key_checking"`
	KnownHostsFile        string `yaml:"known_hosts_file,omitempty" mapstructure:"known_hosts_file"`
	SSHConfigFile         string `yaml:"ssh_config_file,omitempty" mapstructure:"ssh_config_file"`

	// SnapshotFile, when set, gets a copy of every published snapshot.
	SnapshotFile string `yaml:"snapshot_file,omitempty" mapstructure:"snapshot_file"`

	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Logs   LogConfig    `yaml:"logs" mapstructure:"logs"`
}

// Host defines a monitored machine.
type Host struct {
	// Address can be a hostname, user@hostname[:port], or an ssh_config alias.
	Address string `yaml:"address" mapstructure:"address"`

	User string `yaml:"user,omitempty" mapstructure:"user"`
	Port int    `yaml:"port,omitempty" mapstructure:"port"`

	// IdentityFile is a path to a private key. The key itself is read at
	// dial time and never stored.
	IdentityFile string `yaml:"identity_file,omitempty" mapstructure:"identity_file"`

	// Timeout overrides host_timeout for this host.
	Timeout time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout"`
}

// Command is one diagnostic command and the parser for its output.
type Command struct {
	Name   string `yaml:"name" mapstructure:"name"`
	Run    string `yaml:"run" mapstructure:"run"`
	Parser string `yaml:"parser" mapstructure:"parser"`
}

// ServerConfig controls the HTTP endpoint.
type ServerConfig struct {
	Listen string `yaml:"listen" mapstructure:"listen"`
}

// LogConfig controls process logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultConfig returns a config with sensible defaults and no hosts.
func DefaultConfig() *Config {
	return &Config{
		Version:               CurrentConfigVersion,
		Hosts:                 make(map[string]Host),
		Interval:              30 * time.Second,
		MaxConcurrency:        8,
		HostTimeout:           20 * time.Second,
		CommandTimeout:        10 * time.Second,
		ConnectTimeout:        5 * time.Second,
		ConnectAttempts:       2,
		ConnectRetryDelay:     500 * time.Millisecond,
		ShutdownGrace:         5 * time.Second,
		ReuseConnections:      true,
		StrictHostKeyChecking: true,
		Server: ServerConfig{
			Listen: ":8080",
		},
		Logs: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
