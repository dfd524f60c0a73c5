// Package audit verifies planted decoys against the digests recorded when
// they were deployed.
//
// Each ledger entry is hashed with SHA-256 and compared with the journal's
// digest for the same path. Findings are classified as intact, modified,
// missing, or untracked (no digest on record) and returned sorted by path.
package audit
