package monitor

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"sort"
	"time"

	"snare/internal/changeset"
	"snare/internal/decoy"
	"snare/internal/journal"
	"snare/internal/ledger"
	"snare/internal/logging"
	"snare/internal/notifications"
	"snare/internal/snapshot"
)

// Result summarizes one cycle.
type Result struct {
	CycleID    string
	Changes    changeset.ChangeSet
	Deployed   []ledger.Entry
	Reconciled []ledger.Entry
	// Tampered lists relative paths of tracked decoys that disappeared while
	// their directory remained.
	Tampered []string
	Deferred []string
	Failed   []string
	// Advanced is false when a ledger write failed and the baseline was kept.
	Advanced bool
}

// cycle carries per-cycle state through the react phase.
type cycle struct {
	ctx    context.Context
	id     string
	logger *slog.Logger
	snap   *snapshot.Snapshot
	events []journal.Event
	result Result
	// ledgerErr aborts the remaining ledger work for this cycle.
	ledgerErr error
}

// Cycle runs one snapshot, diff, react and advance pass. Without a baseline
// it behaves like Init. A walk failure
// returns the *snapshot.IOError with the baseline untouched. A ledger write
// failure returns the ledger error after the cycle's other work is logged.
// Once the snapshot is taken the react phase runs to completion even if ctx
// is cancelled.
func (m *Monitor) Cycle(ctx context.Context) (Result, error) {
	if m.baseline == nil {
		return Result{Advanced: true}, m.Init(ctx)
	}
	started := m.now()
	id := m.newID()
	ctx = logging.WithCycleID(ctx, id)
	logger := logging.WithContext(ctx, m.logger)

	snap, err := m.snapshotter.Take(ctx, m.root)
	if err != nil {
		if ctx.Err() != nil {
			return Result{CycleID: id}, ctx.Err()
		}
		m.metrics.WalkFailed()
		logging.WarnWithContext(logger, "walk failed; cycle skipped", "walk_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that paths.root_dir exists and is readable"),
			logging.String(logging.FieldImpact, "changes are picked up on the next successful walk"),
		)
		m.record(context.WithoutCancel(ctx), logger, journal.Event{CycleID: id, Kind: journal.KindWalkFailed, Detail: err.Error()})
		return Result{CycleID: id}, err
	}

	c := &cycle{
		ctx:    context.WithoutCancel(ctx),
		id:     id,
		logger: logger,
		snap:   snap,
		result: Result{CycleID: id, Changes: changeset.Between(m.baseline, snap)},
	}

	m.logChanges(c)
	m.deploy(c)
	m.reconcile(c)
	m.advance(c, started)

	m.record(c.ctx, logger, c.events...)
	if c.ledgerErr != nil {
		m.notify(c, notifications.EventLedgerFailure, notifications.Payload{"error": c.ledgerErr.Error()})
	}
	return c.result, c.ledgerErr
}

func (m *Monitor) logChanges(c *cycle) {
	changes := c.result.Changes
	if changes.Empty() {
		c.logger.Debug("no structural changes")
		return
	}

	var created, deleted int
	for _, ch := range changes.Created {
		if ch.Kind == changeset.File && m.isOwnDecoy(c.snap, ch.Path) {
			continue
		}
		created++
		c.logger.Debug("path created", logging.Path(ch.Path), logging.String("kind", ch.Kind.String()))
		c.events = append(c.events, journal.Event{CycleID: c.id, Kind: journal.KindCreated, Path: ch.Path, Detail: ch.Kind.String()})
	}
	for _, ch := range changes.Deleted {
		if ch.Kind == changeset.File && m.isOwnDecoy(c.snap, ch.Path) {
			m.reportTamper(c, ch.Path)
			continue
		}
		deleted++
		c.logger.Debug("path deleted", logging.Path(ch.Path), logging.String("kind", ch.Kind.String()))
		c.events = append(c.events, journal.Event{CycleID: c.id, Kind: journal.KindDeleted, Path: ch.Path, Detail: ch.Kind.String()})
	}
	if created > 0 || deleted > 0 {
		c.logger.Info("changes detected",
			logging.Int("created", created),
			logging.Int("deleted", deleted),
			logging.Int("created_dirs", len(changes.CreatedDirs())),
			logging.Int("deleted_dirs", len(changes.DeletedDirs())),
			logging.String(logging.FieldEventType, "changes_detected"),
		)
	}
}

// isOwnDecoy reports whether rel names the decoy the ledger tracks for its
// directory.
func (m *Monitor) isOwnDecoy(snap *snapshot.Snapshot, rel string) bool {
	dir, name := path.Split(rel)
	dir = path.Clean(dir)
	entry, ok := m.ledger.Lookup(snap.Abs(dir))
	return ok && entry.FileName() == name
}

func (m *Monitor) reportTamper(c *cycle, rel string) {
	if _, seen := m.tampered[rel]; seen {
		c.logger.Debug("decoy removal already reported", logging.Path(rel))
		return
	}
	m.tampered[rel] = struct{}{}
	c.result.Tampered = append(c.result.Tampered, rel)
	m.metrics.Tamper("poll")
	logging.ErrorWithContext(c.logger, "decoy removed while its directory remains", "decoy_tamper",
		logging.Path(rel),
		logging.Alert("decoy_missing"),
		logging.String(logging.FieldErrorHint, "inspect recent access to the directory"),
	)
	c.events = append(c.events, journal.Event{CycleID: c.id, Kind: journal.KindTamper, Path: rel, Detail: "removed"})
	m.notify(c, notifications.EventTamper, notifications.Payload{"path": rel, "source": "poll", "detail": "removed"})
}

func (m *Monitor) notify(c *cycle, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(c.ctx, event, payload); err != nil {
		c.logger.Warn("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}

// deploy seeds created directories and retries pending ones.
func (m *Monitor) deploy(c *cycle) {
	targets := c.result.Changes.CreatedDirs()
	seen := make(map[string]struct{}, len(targets))
	for _, dir := range targets {
		seen[dir] = struct{}{}
	}
	for _, dir := range m.Pending() {
		if _, dup := seen[dir]; dup {
			continue
		}
		if !c.snap.Has(dir) {
			delete(m.pending, dir)
			continue
		}
		targets = append(targets, dir)
	}
	sort.Strings(targets)

	for _, rel := range targets {
		if c.ledgerErr != nil {
			// Unvisited directories stay in the diff because the baseline is
			// not advanced.
			return
		}
		m.deployOne(c, rel)
	}
	if len(c.result.Deferred) > 0 {
		c.logger.Info("deployments deferred by budget",
			logging.Int("deferred", len(c.result.Deferred)),
			logging.Int("pending", len(m.pending)),
			logging.String(logging.FieldEventType, "deploy_deferred"),
		)
	}
}

func (m *Monitor) deployOne(c *cycle, rel string) {
	abs := c.snap.Abs(rel)
	if m.limiter != nil && !m.limiter.Allow() {
		m.pending[rel] = struct{}{}
		c.result.Deferred = append(c.result.Deferred, rel)
		return
	}

	entry, err := m.deployer.Deploy(c.ctx, abs)
	var deployErr *decoy.DeployError
	switch {
	case err == nil:
		delete(m.pending, rel)
		c.result.Deployed = append(c.result.Deployed, entry)
		m.metrics.Deployed()
		decoyRel := snapshot.Join(rel, entry.FileName())
		c.logger.Info("decoy deployed",
			logging.Dir(rel),
			logging.Path(decoyRel),
			logging.String(logging.FieldEventType, "decoy_deployed"),
		)
		c.events = append(c.events, journal.Event{CycleID: c.id, Kind: journal.KindDeployed, Path: decoyRel, Detail: entry.Dir})
		m.recordDigest(c, entry)
	case errors.Is(err, decoy.ErrAlreadySeeded), errors.Is(err, ledger.ErrDuplicateDir):
		delete(m.pending, rel)
		c.logger.Debug("directory already seeded", logging.Dir(rel))
	case errors.As(err, &deployErr):
		c.result.Failed = append(c.result.Failed, rel)
		m.metrics.DeployFailed(deployErr.Reason)
		c.events = append(c.events, journal.Event{CycleID: c.id, Kind: journal.KindDeployFailed, Path: rel, Detail: deployErr.Error()})
		// Only a vanished directory leaves pending; permission and name
		// check failures are retried.
		if deployErr.Reason == decoy.ReasonDirUnavailable {
			delete(m.pending, rel)
			c.logger.Debug("directory gone before deployment", logging.Dir(rel), logging.Error(err))
			return
		}
		m.pending[rel] = struct{}{}
		logging.WarnWithContext(c.logger, "decoy deployment failed; will retry", "deploy_failed",
			logging.Dir(rel),
			logging.String("reason", deployErr.Reason),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and write permission on the directory"),
			logging.String(logging.FieldImpact, "directory stays unseeded until a retry succeeds"),
		)
	default:
		c.ledgerErr = err
		logging.ErrorWithContext(c.logger, "ledger append failed; cycle abandoned", "ledger_write_failed",
			logging.Dir(rel),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.ledger_path disk space and permissions"),
		)
	}
}

func (m *Monitor) recordDigest(c *cycle, entry ledger.Entry) {
	if m.journal == nil {
		return
	}
	sum, size, err := m.hashFile(entry.Path())
	if err != nil {
		c.logger.Debug("decoy digest skipped", logging.Path(entry.Path()), logging.Error(err))
		return
	}
	err = m.journal.RecordDecoy(c.ctx, journal.Decoy{
		Path:       entry.Path(),
		Dir:        entry.Dir,
		SHA256:     sum,
		Size:       size,
		DeployedAt: m.now(),
	})
	if err != nil {
		m.journalFailed(c.logger, err)
	}
}

// reconcile drops ledger rows for deleted directories.
func (m *Monitor) reconcile(c *cycle) {
	if c.ledgerErr != nil {
		return
	}
	rels := c.result.Changes.DeletedDirs()
	if len(rels) == 0 {
		return
	}
	dirs := make([]string, len(rels))
	for i, rel := range rels {
		delete(m.pending, rel)
		dirs[i] = c.snap.Abs(rel)
	}

	removed, err := m.ledger.Reconcile(dirs)
	if err != nil {
		c.ledgerErr = err
		logging.ErrorWithContext(c.logger, "ledger reconcile failed; cycle abandoned", "ledger_write_failed",
			logging.Int("deleted_dirs", len(dirs)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.ledger_path disk space and permissions"),
		)
		return
	}
	if len(removed) == 0 {
		return
	}

	c.result.Reconciled = removed
	m.metrics.Reconciled(len(removed))
	forgotten := make([]string, len(removed))
	for i, e := range removed {
		forgotten[i] = e.Dir
		c.events = append(c.events, journal.Event{CycleID: c.id, Kind: journal.KindReconciled, Path: e.FileName(), Detail: e.Dir})
	}
	c.logger.Info("ledger reconciled",
		logging.Int("removed", len(removed)),
		logging.Int("remaining", m.ledger.Len()),
		logging.String(logging.FieldEventType, "ledger_reconciled"),
	)
	if m.journal != nil {
		if _, err := m.journal.ForgetDirs(c.ctx, forgotten); err != nil {
			m.journalFailed(c.logger, err)
		}
	}
}

func (m *Monitor) advance(c *cycle, started time.Time) {
	if c.ledgerErr == nil {
		m.baseline = c.snap
		c.result.Advanced = true
		clear(m.tampered)
		m.syncWatcher()
	}

	finished := m.now()
	m.metrics.CycleCompleted(finished.Sub(started), finished)
	m.metrics.SetLedgerEntries(m.ledger.Len())
	m.metrics.SetPending(len(m.pending))
	if m.textfile != "" {
		if err := m.metrics.WriteTextfile(m.textfile); err != nil {
			logging.WarnWithContext(c.logger, "metrics textfile write failed", "metrics_write_failed",
				logging.Path(m.textfile),
				logging.Error(err),
				logging.String(logging.FieldImpact, "exported metrics are stale"),
			)
		}
	}
}

func (m *Monitor) record(ctx context.Context, logger *slog.Logger, events ...journal.Event) {
	if m.journal == nil || len(events) == 0 {
		return
	}
	if err := m.journal.Record(ctx, events...); err != nil {
		m.journalFailed(logger, err)
	}
}

func (m *Monitor) journalFailed(logger *slog.Logger, err error) {
	logging.WarnWithContext(logger, "journal write failed", "journal_write_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the journal database in paths.state_dir"),
		logging.String(logging.FieldImpact, "event history and audit digests are incomplete"),
	)
}
