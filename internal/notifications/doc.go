// Package notifications delivers agent alerts via ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers publish unconditionally. Tamper alerts are sent at high priority;
// everything else uses the server default.
package notifications
