// Package logging assembles structured slog loggers and formatting helpers used
// across Snare.
//
// It owns the console and JSON handlers, level and output plumbing, and the
// standardized field keys (component, cycle_id, event_type, error_hint,
// impact). Context helpers tag log lines with the current monitor cycle so a
// single poll can be followed across the snapshot, deploy, and reconcile
// steps. A no-op logger is provided for tests and wiring code that cannot
// fail.
package logging
