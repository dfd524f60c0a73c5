// Package main hosts the snare CLI entrypoint and command graph.
//
// `snare run` starts the agent in the foreground. The remaining commands
// inspect the state directory offline: status, the ledger, the event journal
// and decoy audits. `snare audit` exits 2 when a decoy was modified or
// removed. Configuration resolution lives here so subcommands only deal with
// presentation.
package main
