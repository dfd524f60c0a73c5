// Package monitor drives the snapshot, diff, react and advance cycle.
//
// A Monitor owns the baseline snapshot and the pending retry set. It is the
// only writer of the ledger while the agent runs. Each cycle:
//
//   - takes a fresh snapshot of the root; a walk failure skips the cycle
//   - diffs it against the baseline
//   - plants decoys in created directories and in pending ones, subject to
//     the deploy budget
//   - reconciles the ledger against deleted directories
//   - replaces the baseline unless a ledger write failed
//
// The only suspension point is the sleep between cycles, which a watcher
// nudge may cut short.
package monitor
