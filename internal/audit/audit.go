package audit

import (
	"context"
	"errors"
	"io/fs"
	"sort"

	"golang.org/x/sync/errgroup"

	"snare/internal/fileutil"
	"snare/internal/journal"
	"snare/internal/ledger"
)

// Status classifies a decoy after verification.
type Status string

const (
	StatusIntact    Status = "intact"
	StatusModified  Status = "modified"
	StatusMissing   Status = "missing"
	StatusUntracked Status = "untracked"
)

// hashWorkers bounds concurrent file hashing.
const hashWorkers = 4

// Finding describes one verified decoy.
type Finding struct {
	Path     string `json:"path"`
	Dir      string `json:"dir"`
	Status   Status `json:"status"`
	Expected string `json:"expected_sha256,omitempty"`
	Actual   string `json:"actual_sha256,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Report is the outcome of one audit run.
type Report struct {
	Findings []Finding `json:"findings"`
}

// Tampered reports whether any decoy was modified or removed.
func (r Report) Tampered() bool {
	for _, f := range r.Findings {
		if f.Status == StatusModified || f.Status == StatusMissing {
			return true
		}
	}
	return false
}

// Counts tallies findings per status.
func (r Report) Counts() map[Status]int {
	counts := make(map[Status]int, 4)
	for _, f := range r.Findings {
		counts[f.Status]++
	}
	return counts
}

// Run hashes every ledger entry and compares it with its recorded digest.
// Digests for paths the ledger no longer tracks are ignored. Run only fails
// when ctx is cancelled; per-file read errors become findings.
func Run(ctx context.Context, entries []ledger.Entry, digests []journal.Decoy) (Report, error) {
	expected := make(map[string]journal.Decoy, len(digests))
	for _, d := range digests {
		expected[d.Path] = d
	}

	findings := make([]Finding, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hashWorkers)
	for i, entry := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			digest, ok := expected[entry.Path()]
			findings[i] = verify(entry, digest, ok)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	sort.Slice(findings, func(i, j int) bool {
		return findings[i].Path < findings[j].Path
	})
	return Report{Findings: findings}, nil
}

func verify(entry ledger.Entry, digest journal.Decoy, tracked bool) Finding {
	f := Finding{Path: entry.Path(), Dir: entry.Dir}
	if tracked {
		f.Expected = digest.SHA256
	}

	sum, size, err := fileutil.HashFile(f.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		f.Status = StatusMissing
		return f
	case err != nil:
		// Unreadable decoys are reported as modified: permissions changed.
		f.Status = StatusModified
		f.Detail = err.Error()
		return f
	}
	f.Actual = sum
	f.Size = size

	switch {
	case !tracked:
		f.Status = StatusUntracked
	case sum != digest.SHA256:
		f.Status = StatusModified
	default:
		f.Status = StatusIntact
	}
	return f
}
