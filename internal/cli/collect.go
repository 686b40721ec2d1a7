package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/fleetwatch/internal/errors"
	"github.com/rileyhilliard/fleetwatch/internal/monitor"
	"github.com/rileyhilliard/fleetwatch/internal/ui"
)

var collectJSON bool

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one collection cycle and print the snapshot",
	Long: `Poll every configured host once and print the resulting fleet snapshot.

Hosts that fail are still reported, with a reason for every failed command.
The command exits successfully as long as the cycle ran.

Examples:
  fleetwatch collect
  fleetwatch collect --json > metrics.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := newLogger(cfg.Logs.Level, cfg.Logs.Format)
		if err != nil {
			return err
		}
		eng, err := newEngine(cfg, log, nil, nil)
		if err != nil {
			return err
		}
		defer eng.Close()

		return runCollect(cmd.Context(), eng, cmd.OutOrStdout(), collectJSON)
	},
}

func init() {
	rootCmd.AddCommand(collectCmd)
	collectCmd.Flags().BoolVar(&collectJSON, "json", false, "print the snapshot as JSON")
}

func runCollect(ctx context.Context, eng *engine, out io.Writer, asJSON bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	snap, err := eng.scheduler.RunCycle(ctx)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrAggregation, "Collection cycle didn't run", "")
	}
	return printSnapshot(out, snap, eng.clock.Now(), asJSON)
}

// printSnapshot writes snap as indented JSON or as the fleet table.
func printSnapshot(out io.Writer, snap *monitor.FleetSnapshot, now time.Time, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	_, err := fmt.Fprint(out, ui.RenderFleetTable(snap, now))
	return err
}
