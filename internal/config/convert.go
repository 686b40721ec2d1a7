package config

import (
	"sort"

	"github.com/rileyhilliard/fleetwatch/internal/monitor"
)

// ToSettings maps the config onto engine tuning.
func (c *Config) ToSettings() monitor.Settings {
	return monitor.Settings{
		Interval:              c.Interval,
		MaxConcurrency:        c.MaxConcurrency,
		HostTimeout:           c.HostTimeout,
		CommandTimeout:        c.CommandTimeout,
		ConnectTimeout:        c.ConnectTimeout,
		ConnectAttempts:       c.ConnectAttempts,
		ConnectRetryDelay:     c.ConnectRetryDelay,
		ShutdownGrace:         c.ShutdownGrace,
		CycleDeadline:         c.CycleDeadline,
		ReuseConnections:      c.ReuseConnections,
		StrictHostKeyChecking: c.StrictHostKeyChecking,
		KnownHostsFile:        c.KnownHostsFile,
		SSHConfigFile:         c.SSHConfigFile,
	}
}

// ToHosts returns the host list sorted by id.
func (c *Config) ToHosts() []monitor.Host {
	names := make([]string, 0, len(c.Hosts))
	for name := range c.Hosts {
		names = append(names, name)
	}
	sort.Strings(names)

	hosts := make([]monitor.Host, 0, len(names))
	for _, name := range names {
		h := c.Hosts[name]
		hosts = append(hosts, monitor.Host{
			ID:           name,
			Address:      h.Address,
			User:         h.User,
			Port:         h.Port,
			IdentityFile: ExpandTilde(h.IdentityFile),
			Timeout:      h.Timeout,
		})
	}
	return hosts
}

// ToCommands returns the configured commands, or the stock set when none
// are configured.
func (c *Config) ToCommands() []monitor.CommandSpec {
	if len(c.Commands) == 0 {
		return monitor.DefaultCommands()
	}
	specs := make([]monitor.CommandSpec, 0, len(c.Commands))
	for _, cmd := range c.Commands {
		specs = append(specs, monitor.CommandSpec{
			Name:    cmd.Name,
			Command: cmd.Run,
			Parser:  cmd.Parser,
		})
	}
	return specs
}
