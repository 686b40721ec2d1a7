package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rileyhilliard/fleetwatch/internal/config"
	"github.com/rileyhilliard/fleetwatch/internal/errors"
	"github.com/rileyhilliard/fleetwatch/internal/monitor"
	"github.com/rileyhilliard/fleetwatch/internal/ui"
	"github.com/rileyhilliard/fleetwatch/pkg/sshutil"
)

// InitOptions holds options for the init command.
type InitOptions struct {
	Hosts          []string // "name=address" or just "address"
	Output         string
	Interval       time.Duration
	Overwrite      bool
	NonInteractive bool
	Check          bool // dial every host before writing
}

var initOpts InitOptions

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter fleetwatch.yaml",
	Long: `Write a fleetwatch.yaml with the default commands and your hosts.

Interactively, hosts can be picked from ~/.ssh/config. Without a terminal,
or with --non-interactive, pass hosts with --host.

Examples:
  fleetwatch init
  fleetwatch init --host web1=deploy@10.0.0.5 --host db-primary
  fleetwatch init --host web1.example.com --check --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := initOpts
		if !ui.IsTerminal(os.Stdin) {
			opts.NonInteractive = true
		}
		return Init(cmd.Context(), cmd.OutOrStdout(), opts)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringArrayVar(&initOpts.Hosts, "host", nil, "host to monitor, as name=address or address (repeatable)")
	initCmd.Flags().StringVarP(&initOpts.Output, "output", "o", config.ConfigFileName, "where to write the config")
	initCmd.Flags().DurationVar(&initOpts.Interval, "interval", 0, "polling interval (default 30s)")
	initCmd.Flags().BoolVar(&initOpts.Overwrite, "force", false, "overwrite an existing config")
	initCmd.Flags().BoolVar(&initOpts.NonInteractive, "non-interactive", false, "don't prompt; use flags only")
	initCmd.Flags().BoolVar(&initOpts.Check, "check", false, "try an SSH connection to every host first")
}

// starterFile is the on-disk shape init writes. Durations are strings so
// the file reads the way people write it by hand.
type starterFile struct {
	Version        int                    `yaml:"version"`
	Hosts          map[string]config.Host `yaml:"hosts"`
	Commands       []config.Command       `yaml:"commands"`
	Interval       string                 `yaml:"interval"`
	MaxConcurrency int                    `yaml:"max_concurrency"`
	HostTimeout    string                 `yaml:"host_timeout"`
	CommandTimeout string                 `yaml:"command_timeout"`
	Server         config.ServerConfig    `yaml:"server"`
	Logs           config.LogConfig       `yaml:"logs"`
}

// Init writes a starter config.
func Init(ctx context.Context, out io.Writer, opts InitOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Output == "" {
		opts.Output = config.ConfigFileName
	}

	if _, err := os.Stat(opts.Output); err == nil && !opts.Overwrite {
		if opts.NonInteractive {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Config file already exists: %s", opts.Output),
				"Use --force to overwrite")
		}

		var overwrite bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Config file '%s' already exists. Overwrite?", opts.Output)).
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to get user input",
				"Try running with --force to overwrite")
		}
		if !overwrite {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	hosts, err := parseHostFlags(opts.Hosts)
	if err != nil {
		return err
	}
	interval := opts.Interval

	if !opts.NonInteractive {
		entries, _ := sshutil.ParseSSHConfig()
		picked, pickedInterval, err := promptHosts(entries)
		if err != nil {
			return err
		}
		for name, h := range picked {
			hosts[name] = h
		}
		if pickedInterval > 0 {
			interval = pickedInterval
		}
	}

	if len(hosts) == 0 {
		return errors.New(errors.ErrConfig,
			"No hosts to monitor",
			"Pass at least one --host, e.g. --host web1=deploy@10.0.0.5")
	}

	if opts.Check {
		checkHosts(ctx, out, hosts)
	}

	file := buildStarterFile(hosts, interval)
	if err := writeStarterFile(opts.Output, file); err != nil {
		return err
	}

	// Load it back so a bad starter never lands on disk unnoticed.
	cfg, err := config.Load(opts.Output)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	success := lipgloss.NewStyle().Foreground(ui.ColorSuccess)
	fmt.Fprintf(out, "%s Wrote %s with %d host(s)\n", success.Render(ui.SymbolHealthy), opts.Output, len(hosts))
	fmt.Fprintln(out, "  Try it with: fleetwatch collect")
	return nil
}

var nonNameChars = regexp.MustCompile(`[^a-z0-9_-]+`)

// hostNameFor derives a config key from an address. Config keys are
// case-insensitive and can't contain dots, so both are normalized away.
func hostNameFor(address string) string {
	name := address
	if i := strings.LastIndex(name, "@"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, ":"); i >= 0 && !strings.Contains(name[:i], ":") {
		name = name[:i]
	}
	name = nonNameChars.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(name, "-")
}

func parseHostFlags(values []string) (map[string]config.Host, error) {
	hosts := make(map[string]config.Host, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		name, address, ok := strings.Cut(v, "=")
		if !ok {
			address = name
			name = hostNameFor(address)
		} else {
			name = hostNameFor(name)
		}
		address = strings.TrimSpace(address)
		if name == "" || address == "" {
			return nil, errors.New(errors.ErrConfig,
				fmt.Sprintf("Can't make sense of --host %q", v),
				"Use name=address or just an address, e.g. --host web1=deploy@10.0.0.5")
		}
		if _, dup := hosts[name]; dup {
			return nil, errors.New(errors.ErrConfig,
				fmt.Sprintf("Host name '%s' used twice", name),
				"Give one of them an explicit name with name=address.")
		}
		hosts[name] = config.Host{Address: address}
	}
	return hosts, nil
}

func promptHosts(entries []sshutil.SSHHostEntry) (map[string]config.Host, time.Duration, error) {
	var selected []string
	var extra string
	intervalStr := config.DefaultConfig().Interval.String()

	var groups []*huh.Group
	if len(entries) > 0 {
		options := make([]huh.Option[string], 0, len(entries))
		for _, e := range entries {
			options = append(options, huh.NewOption(fmt.Sprintf("%s (%s)", e.Alias, e.Description()), e.Alias))
		}
		groups = append(groups, huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Hosts from your SSH config").
				Description("Space to toggle, enter to confirm").
				Options(options...).
				Value(&selected),
		))
	}
	groups = append(groups,
		huh.NewGroup(
			huh.NewInput().
				Title("Other hosts (optional)").
				Description("Comma-separated hostnames or user@host[:port]").
				Placeholder("web1.example.com, deploy@10.0.0.5").
				Value(&extra),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Polling interval").
				Value(&intervalStr).
				Validate(func(s string) error {
					d, err := time.ParseDuration(strings.TrimSpace(s))
					if err != nil {
						return fmt.Errorf("use a duration like 30s or 1m")
					}
					if d <= 0 {
						return fmt.Errorf("interval must be positive")
					}
					return nil
				}),
		),
	)

	if err := huh.NewForm(groups...).Run(); err != nil {
		return nil, 0, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to get user input",
			"Check terminal compatibility or use --non-interactive with --host")
	}

	values := append([]string{}, selected...)
	for _, part := range strings.Split(extra, ",") {
		values = append(values, part)
	}
	hosts, err := parseHostFlags(values)
	if err != nil {
		return nil, 0, err
	}
	interval, _ := time.ParseDuration(strings.TrimSpace(intervalStr))
	return hosts, interval, nil
}

// checkHosts dials each host once and reports the outcome. Failures are
// informational; the config is written either way.
func checkHosts(ctx context.Context, out io.Writer, hosts map[string]config.Host) {
	settings := config.DefaultConfig().ToSettings()
	dial := monitor.SSHDialer(settings)

	names := make([]string, 0, len(hosts))
	for name := range hosts {
		names = append(names, name)
	}
	sort.Strings(names)

	okStyle := lipgloss.NewStyle().Foreground(ui.ColorSuccess)
	failStyle := lipgloss.NewStyle().Foreground(ui.ColorError)
	for _, name := range names {
		h := hosts[name]
		start := time.Now()
		conn, err := dial(ctx, monitor.Host{ID: name, Address: h.Address, User: h.User, Port: h.Port, IdentityFile: h.IdentityFile})
		if err != nil {
			fmt.Fprintf(out, "  %s %s: %s\n", failStyle.Render(ui.SymbolDown), name, errors.Short(err))
			continue
		}
		_ = conn.Close()
		fmt.Fprintf(out, "  %s %s (%s)\n", okStyle.Render(ui.SymbolHealthy), name, time.Since(start).Round(time.Millisecond))
	}
}

func buildStarterFile(hosts map[string]config.Host, interval time.Duration) starterFile {
	d := config.DefaultConfig()
	if interval <= 0 {
		interval = d.Interval
	}
	hostTimeout := d.HostTimeout
	if hostTimeout >= interval {
		hostTimeout = interval * 2 / 3
	}
	commandTimeout := d.CommandTimeout
	if commandTimeout > hostTimeout {
		commandTimeout = hostTimeout
	}

	cmds := monitor.DefaultCommands()
	commands := make([]config.Command, 0, len(cmds))
	for _, c := range cmds {
		commands = append(commands, config.Command{Name: c.Name, Run: c.Command, Parser: c.Parser})
	}

	return starterFile{
		Version:        config.CurrentConfigVersion,
		Hosts:          hosts,
		Commands:       commands,
		Interval:       interval.String(),
		MaxConcurrency: d.MaxConcurrency,
		HostTimeout:    hostTimeout.String(),
		CommandTimeout: commandTimeout.String(),
		Server:         d.Server,
		Logs:           d.Logs,
	}
}

func writeStarterFile(path string, file starterFile) error {
	data, err := yaml.Marshal(file)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to generate config",
			"This shouldn't happen - please report this bug")
	}

	header := "# fleetwatch configuration\n# Docs: fleetwatch init --help\n\n"
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig, "Couldn't create "+dir, "Check directory permissions")
		}
	}
	if err := os.WriteFile(path, append([]byte(header), data...), 0644); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to write "+path,
			"Check file permissions")
	}
	return nil
}
