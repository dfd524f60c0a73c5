package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldCycleID identifies one monitor poll cycle.
	FieldCycleID = "cycle_id"
	// FieldPath is the standardized key for filesystem paths.
	FieldPath = "path"
	// FieldDir is the standardized key for root-relative directory keys.
	FieldDir = "dir"
	// FieldEventType is the standardized key for machine-readable event names.
	FieldEventType = "event_type"
	// FieldErrorHint is the standardized key for operator remediation hints.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldAlert flags anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

type contextKey int

const cycleIDKey contextKey = iota

// WithCycleID returns a context carrying the monitor cycle identifier.
func WithCycleID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, cycleIDKey, id)
}

// CycleID extracts the monitor cycle identifier, if any.
func CycleID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(cycleIDKey).(string)
	return id, ok && id != ""
}

// WithContext returns logger tagged with the cycle carried by ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if id, ok := CycleID(ctx); ok {
		return logger.With(slog.String(FieldCycleID, id))
	}
	return logger
}
