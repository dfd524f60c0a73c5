package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"snare/internal/audit"
	"snare/internal/config"
	"snare/internal/journal"
	"snare/internal/ledger"
	"snare/internal/logging"
)

// Status is a point-in-time view of the agent's state on disk.
type Status struct {
	Running       bool
	LockPath      string
	RootDir       string
	LedgerPath    string
	LedgerEntries int
	JournalPath   string
	JournalErr    error
	EventCounts   map[journal.Kind]int
	Recent        []journal.Event
}

// ReadStatus inspects the lock, ledger and journal without mutating them.
// A missing or unreadable journal is reported in JournalErr.
func ReadStatus(ctx context.Context, cfg *config.Config, recent int) (Status, error) {
	status := Status{
		LockPath:    cfg.LockPath(),
		RootDir:     cfg.Paths.RootDir,
		LedgerPath:  cfg.Paths.LedgerPath,
		JournalPath: cfg.JournalPath(),
	}

	if _, err := os.Stat(cfg.Paths.StateDir); err == nil {
		held, err := LockHeld(status.LockPath)
		if err != nil {
			return status, err
		}
		status.Running = held
	}

	entries, err := ledger.Load(cfg.Paths.LedgerPath)
	if err != nil {
		return status, err
	}
	status.LedgerEntries = len(entries)

	store, err := openExistingJournal(cfg)
	if err != nil {
		status.JournalErr = err
		return status, nil
	}
	defer store.Close()

	if status.EventCounts, err = store.Counts(ctx); err != nil {
		status.JournalErr = err
		return status, nil
	}
	if recent > 0 {
		if status.Recent, err = store.Recent(ctx, recent); err != nil {
			status.JournalErr = err
		}
	}
	return status, nil
}

// PruneLedger removes rows whose directory no longer exists. It refuses to
// run while an agent holds the lock, and holds the lock itself while
// rewriting. Removed decoy digests are dropped from the journal when it is
// available.
func PruneLedger(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]ledger.Entry, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	lock, err := acquireLock(cfg.LockPath())
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Unlock() }()

	led, err := ledger.Open(cfg.Paths.LedgerPath, logger)
	if err != nil {
		return nil, err
	}
	defer led.Close()

	var statErr error
	removed, err := led.RemoveWhere(func(e ledger.Entry) bool {
		info, err := os.Stat(e.Dir)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return true
		case err != nil:
			statErr = errors.Join(statErr, err)
			return false
		default:
			return !info.IsDir()
		}
	})
	if err != nil {
		return nil, err
	}
	if statErr != nil {
		logging.WarnWithContext(logger, "some ledger directories could not be checked", "ledger_prune_partial",
			logging.Error(statErr),
			logging.String(logging.FieldImpact, "rows for unreadable directories were kept"),
		)
	}
	if len(removed) == 0 {
		return nil, nil
	}

	store, err := journal.Open(cfg.JournalPath())
	if err != nil {
		logger.Debug("journal unavailable during prune", logging.Error(err))
		return removed, nil
	}
	defer store.Close()
	dirs := make([]string, len(removed))
	events := make([]journal.Event, len(removed))
	for i, e := range removed {
		dirs[i] = e.Dir
		events[i] = journal.Event{Kind: journal.KindReconciled, Path: e.FileName(), Detail: e.Dir}
	}
	if _, err := store.ForgetDirs(ctx, dirs); err != nil {
		logger.Warn("journal forget failed", logging.Error(err))
	}
	if err := store.Record(ctx, events...); err != nil {
		logger.Warn("journal write failed", logging.Error(err))
	}
	return removed, nil
}

// Audit verifies every ledger decoy against its recorded digest. Tamper
// findings are journaled when the journal is writable; a failed write is
// logged and does not change the report.
func Audit(ctx context.Context, cfg *config.Config, logger *slog.Logger) (audit.Report, error) {
	logger = logging.NewComponentLogger(logger, "audit")
	entries, err := ledger.Load(cfg.Paths.LedgerPath)
	if err != nil {
		return audit.Report{}, err
	}

	var digests []journal.Decoy
	store, err := openExistingJournal(cfg)
	if err == nil {
		defer store.Close()
		if digests, err = store.Decoys(ctx); err != nil {
			return audit.Report{}, fmt.Errorf("read decoy digests: %w", err)
		}
	}

	report, err := audit.Run(ctx, entries, digests)
	if err != nil {
		return audit.Report{}, err
	}

	if store != nil && report.Tampered() {
		var events []journal.Event
		for _, f := range report.Findings {
			if f.Status == audit.StatusModified || f.Status == audit.StatusMissing {
				events = append(events, journal.Event{Kind: journal.KindTamper, Path: f.Path, Detail: "audit: " + string(f.Status)})
			}
		}
		if err := store.Record(ctx, events...); err != nil {
			logging.WarnWithContext(logger, "journal write failed; audit findings not recorded", "journal_write_failed",
				logging.Path(store.Path()),
				logging.Int("findings", len(events)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "status and events omit these tamper findings"),
			)
		}
	}
	return report, nil
}

// openExistingJournal opens an existing journal; it does not create one.
func openExistingJournal(cfg *config.Config) (*journal.Store, error) {
	path := cfg.JournalPath()
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return journal.Open(path)
}
