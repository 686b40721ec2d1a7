package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/spf13/cobra"

	"github.com/rileyhilliard/fleetwatch/internal/errors"
	"github.com/rileyhilliard/fleetwatch/internal/monitor"
)

var (
	statusURL     string
	statusJSON    bool
	statusWait    time.Duration
	statusTimeout time.Duration
)

// errNoSnapshot is returned while the server hasn't finished a cycle.
var errNoSnapshot = errors.New(errors.ErrAggregation,
	"The server hasn't published a snapshot yet",
	"Wait for the first cycle to finish, or pass --wait 30s.")

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest snapshot from a running server",
	Long: `Fetch /metrics from a running 'fleetwatch serve' and render it as a table.

Examples:
  fleetwatch status
  fleetwatch status --url http://monitor.internal:8080
  fleetwatch status --wait 1m --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		snap, err := fetchSnapshot(ctx, statusURL, statusTimeout, statusWait)
		if err != nil {
			return err
		}
		return printSnapshot(cmd.OutOrStdout(), snap, time.Now(), statusJSON)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusURL, "url", "http://localhost:8080", "base URL of the fleetwatch server")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the snapshot as JSON")
	statusCmd.Flags().DurationVar(&statusWait, "wait", 0, "keep retrying this long while no snapshot is published")
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 10*time.Second, "HTTP request timeout")
}

// fetchSnapshot GETs base/metrics. While the server answers 503 it retries
// every second until wait runs out.
func fetchSnapshot(ctx context.Context, base string, timeout, wait time.Duration) (*monitor.FleetSnapshot, error) {
	client := &http.Client{Timeout: timeout}
	url := strings.TrimRight(base, "/") + "/metrics"

	attempts := uint(1)
	if wait > 0 {
		attempts += uint(wait / time.Second)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}

	return retry.DoWithData(
		func() (*monitor.FleetSnapshot, error) {
			snap, err := getSnapshot(ctx, client, url)
			if err != nil && err != errNoSnapshot {
				return nil, retry.Unrecoverable(err)
			}
			return snap, err
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return err == errNoSnapshot }),
	)
}

func getSnapshot(ctx context.Context, client *http.Client, url string) (*monitor.FleetSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid server URL: "+url,
			"Pass something like --url http://localhost:8080")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConnection,
			"Couldn't reach the fleetwatch server at "+url,
			"Is 'fleetwatch serve' running? Check --url.")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusServiceUnavailable:
		return nil, errNoSnapshot
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.New(errors.ErrConnection,
			fmt.Sprintf("Server answered %s", resp.Status),
			strings.TrimSpace(string(body)))
	}

	var snap monitor.FleetSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrParse,
			"Server sent a snapshot we couldn't decode",
			"Check that client and server run the same fleetwatch version.")
	}
	return &snap, nil
}
