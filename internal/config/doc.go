// Package config loads, normalizes, and validates Snare configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and layers SNARE_* environment overrides on
// top. The Config type centralizes every knob the agent and CLI need: the
// monitored root, the ledger and state locations, polling cadence, decoy
// naming vocabulary, and logging.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, folded vocabularies, and clear validation errors.
package config
