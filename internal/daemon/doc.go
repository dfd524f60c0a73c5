// Package daemon wires the agent's long-running process together.
//
// A Daemon takes the single-instance lock, opens the ledger and the journal,
// builds the snapshotter, deployer and optional fsnotify watcher from
// configuration, and runs the monitor and watcher in one errgroup until the
// context is cancelled. The offline helpers (Status, PruneLedger, Audit)
// serve the CLI and refuse to mutate the ledger while the lock is held.
package daemon
