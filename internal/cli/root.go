package cli

import (
	stderrors "errors"
	"fmt"
	"os"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/fleetwatch/internal/errors"
	"github.com/rileyhilliard/fleetwatch/internal/logger"
	"github.com/rileyhilliard/fleetwatch/internal/ui"
)

// Global flags
var (
	cfgFile   string
	logLevel  string
	logFormat string
	noColor   bool
)

var rootCmd = &cobra.Command{
	Use:   "fleetwatch",
	Short: "Poll a fleet of hosts over SSH and serve their metrics",
	Long: `fleetwatch runs diagnostic commands on every configured host over SSH,
parses the output into CPU, memory, disk and network metrics, and serves the
latest fleet snapshot as JSON.

Get started with 'fleetwatch init', then 'fleetwatch collect' for a single
cycle or 'fleetwatch serve' to keep polling.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.ConfigureColors(cmd.OutOrStdout(), noColor)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./fleetwatch.yaml, then ~/.config/fleetwatch/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides logs.level)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json (overrides logs.format)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command and exits with a non-zero status on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if isUnknownCommandError(err) {
			msg := err.Error()
			if name := extractUnknownCommand(err); name != "" {
				msg = fmt.Sprintf("Unknown command '%s'", name)
			}
			fmt.Fprintf(os.Stderr, "%s %s\n\nRun 'fleetwatch --help' for usage.\n", ui.SymbolDown, msg)
			os.Exit(2)
		}
		fmt.Fprint(os.Stderr, formatError(err))
		os.Exit(1)
	}
}

// formatError renders structured errors as-is and wraps anything else so
// every failure ends with a newline.
func formatError(err error) string {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e.Error()
	}
	return fmt.Sprintf("%s %v\n", ui.SymbolDown, err)
}

var (
	unknownCommandRe = regexp.MustCompile(`unknown command "([^"]+)"`)
	unknownFlagRe    = regexp.MustCompile(`^unknown (shorthand )?flag`)
)

func isUnknownCommandError(err error) bool {
	msg := err.Error()
	return unknownCommandRe.MatchString(msg) || unknownFlagRe.MatchString(msg)
}

func extractUnknownCommand(err error) string {
	m := unknownCommandRe.FindStringSubmatch(err.Error())
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// newLogger builds the process logger from config, with flags taking
// precedence, and installs it as the package default.
func newLogger(level, format string) (logger.Logger, error) {
	if logLevel != "" {
		level = logLevel
	}
	if logFormat != "" {
		format = logFormat
	}
	log, err := logger.New(logger.Options{Level: level, Format: logger.Format(format)})
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid logging settings",
			"Use --log-level debug|info|warn|error and --log-format text|json.")
	}
	logger.SetDefault(log)
	return log, nil
}
