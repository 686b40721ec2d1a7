// Package cli implements the fleetwatch command-line interface.
//
// Commands are Cobra commands that delegate to the engine in
// internal/monitor:
//
//	fleetwatch serve     - poll the fleet on an interval and serve /metrics
//	fleetwatch collect   - run a single cycle and print the snapshot
//	fleetwatch status    - fetch /metrics from a running server
//	fleetwatch init      - write a starter fleetwatch.yaml
//	fleetwatch version   - print build information
//
// Configuration is found with config.Find and validated before any host
// is contacted; an invalid config is the only fatal error at startup.
package cli
