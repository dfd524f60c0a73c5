package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Decoy records the digest of a decoy at deployment time.
type Decoy struct {
	Path       string
	Dir        string
	SHA256     string
	Size       int64
	DeployedAt time.Time
}

// RecordDecoy stores or replaces the digest for d.Path.
func (s *Store) RecordDecoy(ctx context.Context, d Decoy) error {
	deployed := d.DeployedAt
	if deployed.IsZero() {
		deployed = s.now()
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO decoys (path, dir, sha256, size, deployed_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(path) DO UPDATE SET dir = excluded.dir, sha256 = excluded.sha256,
			 size = excluded.size, deployed_at = excluded.deployed_at`,
			d.Path, d.Dir, d.SHA256, d.Size, formatTime(deployed))
		return err
	})
	if err != nil {
		return fmt.Errorf("record decoy %s: %w", d.Path, err)
	}
	return nil
}

// Decoys returns every recorded digest ordered by path.
func (s *Store) Decoys(ctx context.Context) ([]Decoy, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT path, dir, sha256, size, deployed_at FROM decoys ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("query decoys: %w", err)
	}
	defer rows.Close()

	var out []Decoy
	for rows.Next() {
		var d Decoy
		var deployed string
		if err := rows.Scan(&d.Path, &d.Dir, &d.SHA256, &d.Size, &deployed); err != nil {
			return nil, fmt.Errorf("scan decoy: %w", err)
		}
		d.DeployedAt = parseTime(deployed)
		out = append(out, d)
	}
	return out, rows.Err()
}

// DecoyByPath returns the digest recorded for path.
func (s *Store) DecoyByPath(ctx context.Context, path string) (Decoy, bool, error) {
	ctx = ensureContext(ctx)
	var d Decoy
	var deployed string
	err := s.db.QueryRowContext(ctx,
		`SELECT path, dir, sha256, size, deployed_at FROM decoys WHERE path = ?`, path,
	).Scan(&d.Path, &d.Dir, &d.SHA256, &d.Size, &deployed)
	if errors.Is(err, sql.ErrNoRows) {
		return Decoy{}, false, nil
	}
	if err != nil {
		return Decoy{}, false, fmt.Errorf("query decoy %s: %w", path, err)
	}
	d.DeployedAt = parseTime(deployed)
	return d, true, nil
}

// ForgetDirs removes digests for decoys in the given directories and returns
// how many rows were deleted.
func (s *Store) ForgetDirs(ctx context.Context, dirs []string) (int64, error) {
	if len(dirs) == 0 {
		return 0, nil
	}
	args := make([]any, len(dirs))
	for i, dir := range dirs {
		args[i] = dir
	}
	var removed int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM decoys WHERE dir IN (`+makePlaceholders(len(dirs))+`)`, args...)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("forget decoys: %w", err)
	}
	return removed, nil
}
