// Package ledger persists the table of deployed decoys.
//
// The ledger is a headerless CSV file with one `name,extension,directory` row
// per decoy, in deployment order. External report tooling reads it directly,
// so the format is part of the agent's interface.
//
// Appends are O_APPEND writes followed by fsync. Removals rewrite the whole
// table through a temp file that is fsynced and renamed over the original, so
// a crash mid-rewrite leaves the previous table intact. A crash mid-append can
// leave a torn final row; Open drops it and repairs the file.
//
// A Ledger has a single owner (the monitor). It is safe for concurrent use,
// but nothing else should write the file while the agent runs.
package ledger
