package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Kind classifies journal events.
type Kind string

const (
	KindCreated      Kind = "created"
	KindDeleted      Kind = "deleted"
	KindDeployed     Kind = "deployed"
	KindDeployFailed Kind = "deploy_failed"
	KindReconciled   Kind = "reconciled"
	KindTamper       Kind = "tamper"
	KindWalkFailed   Kind = "walk_failed"
)

// AllKinds lists every event kind in display order.
func AllKinds() []Kind {
	return []Kind{KindCreated, KindDeleted, KindDeployed, KindDeployFailed, KindReconciled, KindTamper, KindWalkFailed}
}

// ParseKind converts a string to a Kind.
func ParseKind(value string) (Kind, bool) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(value)))
	for _, k := range AllKinds() {
		if k == normalized {
			return k, true
		}
	}
	return "", false
}

// Event is one journaled observation or action.
type Event struct {
	ID        int64
	CycleID   string
	Kind      Kind
	Path      string
	Detail    string
	CreatedAt time.Time
}

// Record inserts events in one transaction. Events without a timestamp are
// stamped with the current time.
func (s *Store) Record(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	now := s.now()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO events (cycle_id, kind, path, detail, created_at) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, evt := range events {
			created := evt.CreatedAt
			if created.IsZero() {
				created = now
			}
			if _, err := stmt.ExecContext(ctx, evt.CycleID, string(evt.Kind), evt.Path, evt.Detail, formatTime(created)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record events: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first, optionally restricted to
// the given kinds. A limit <= 0 returns all events.
func (s *Store) Recent(ctx context.Context, limit int, kinds ...Kind) ([]Event, error) {
	ctx = ensureContext(ctx)
	query := `SELECT id, cycle_id, kind, path, detail, created_at FROM events`
	args := make([]any, 0, len(kinds)+1)
	if len(kinds) > 0 {
		query += ` WHERE kind IN (` + makePlaceholders(len(kinds)) + `)`
		for _, k := range kinds {
			args = append(args, string(k))
		}
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			evt     Event
			kind    string
			created string
		)
		if err := rows.Scan(&evt.ID, &evt.CycleID, &kind, &evt.Path, &evt.Detail, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt.Kind = Kind(kind)
		evt.CreatedAt = parseTime(created)
		events = append(events, evt)
	}
	return events, rows.Err()
}

// Counts returns the number of events per kind.
func (s *Store) Counts(ctx context.Context) (map[Kind]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(1) FROM events GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("event counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[Kind]int)
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		counts[Kind(kind)] = count
	}
	return counts, rows.Err()
}

// PruneEvents deletes events recorded before cutoff and returns how many were
// removed.
func (s *Store) PruneEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM events WHERE created_at < ?`, formatTime(cutoff))
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return removed, nil
}
