// Package journal stores the agent's event history and decoy digests in
// SQLite.
//
// The journal is auxiliary to the ledger: the ledger CSV remains the durable
// record of where decoys live, while the journal keeps what the ledger format
// cannot, namely per-cycle create/delete/deploy/reconcile/tamper events and
// the SHA-256 digest of every decoy at deployment time. The audit command and
// `snare events` read it; a journal failure is logged by callers and never
// blocks the ledger path.
package journal
