// Package decoy plants honeypot files into directories and records them in
// the ledger.
//
// A Deployer writes exactly one decoy per directory: it consults the ledger
// first and refuses directories that are already seeded, picks a
// human-plausible name (`<adjective>_<noun>_<suffix>`, optionally with a short
// random tag), delegates the file content to a PayloadCreator, and appends the
// ledger row. A decoy whose payload fails is never recorded, and a decoy whose
// ledger row cannot be written is removed again, so every decoy on disk has a
// ledger row and every row has a decoy.
package decoy
