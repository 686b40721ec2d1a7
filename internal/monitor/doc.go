// Package monitor polls a fleet of hosts over SSH and publishes the results
// as immutable snapshots.
//
// # Cycle
//
// The Scheduler runs one cycle per interval tick:
//
//	Idle -> Polling -> Aggregating -> Published -> Idle
//
// During Polling a Poller runs for every host, at most max_concurrency at
// once. Each Poller acquires a connection from the Pool, runs the configured
// commands in order through the Runner, and hands each output to its parser.
// Whatever happens on the host (refused connection, hung command, non-zero
// exit, unparseable output) ends up as a Failure entry in its HostSnapshot.
// A tick that arrives while a cycle is still running is skipped.
//
// # Snapshots
//
// Every configured command name appears in exactly one of
// HostSnapshot.Metrics or HostSnapshot.Failures. A FleetSnapshot is
// published even when every host failed, so readers can judge staleness
// from its timestamp.
//
// The Store holds the current and previous FleetSnapshot behind a single
// atomic pointer. Readers never lock.
package monitor
