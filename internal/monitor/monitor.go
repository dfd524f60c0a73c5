package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"snare/internal/fileutil"
	"snare/internal/journal"
	"snare/internal/ledger"
	"snare/internal/logging"
	"snare/internal/metrics"
	"snare/internal/notifications"
	"snare/internal/snapshot"
)

// Snapshotter takes structural snapshots of a directory tree.
type Snapshotter interface {
	Take(ctx context.Context, root string) (*snapshot.Snapshot, error)
}

// Deployer plants a decoy into one directory.
type Deployer interface {
	Deploy(ctx context.Context, dir string) (ledger.Entry, error)
}

// Ledger is the subset of *ledger.Ledger the monitor uses.
type Ledger interface {
	Lookup(dir string) (ledger.Entry, bool)
	Reconcile(deleted []string) ([]ledger.Entry, error)
	Entries() []ledger.Entry
	Len() int
}

// Journal receives auxiliary records. Failures are logged, never fatal.
type Journal interface {
	Record(ctx context.Context, events ...journal.Event) error
	RecordDecoy(ctx context.Context, d journal.Decoy) error
	ForgetDirs(ctx context.Context, dirs []string) (int64, error)
}

// Watcher follows the baseline's directories and wakes the monitor early.
type Watcher interface {
	Sync(dirs, decoys []string) int
	Nudges() <-chan struct{}
}

// Options configures a Monitor. Snapshotter, Deployer and Ledger are
// required.
type Options struct {
	Root        string
	Interval    time.Duration
	Snapshotter Snapshotter
	Deployer    Deployer
	Ledger      Ledger
	Journal     Journal
	Watcher     Watcher
	Metrics     *metrics.Recorder
	// Notifier receives tamper and ledger-failure alerts.
	Notifier notifications.Service
	// Limiter caps deployments; nil means unlimited.
	Limiter *rate.Limiter
	// MetricsTextfile, when set, receives the registry after every cycle.
	MetricsTextfile string
	Logger          *slog.Logger

	hashFile func(path string) (string, int64, error)
	newID    func() string
	now      func() time.Time
}

// Monitor runs the change-detection loop.
type Monitor struct {
	root        string
	interval    time.Duration
	snapshotter Snapshotter
	deployer    Deployer
	ledger      Ledger
	journal     Journal
	watcher     Watcher
	metrics     *metrics.Recorder
	notifier    notifications.Service
	limiter     *rate.Limiter
	textfile    string
	logger      *slog.Logger

	hashFile func(path string) (string, int64, error)
	newID    func() string
	now      func() time.Time

	baseline *snapshot.Snapshot
	pending  map[string]struct{}
	// tampered holds decoy paths already reported against the current
	// baseline.
	tampered map[string]struct{}
}

// New validates opts and returns an idle Monitor.
func New(opts Options) (*Monitor, error) {
	switch {
	case opts.Root == "":
		return nil, errors.New("monitor requires a root directory")
	case opts.Snapshotter == nil:
		return nil, errors.New("monitor requires a snapshotter")
	case opts.Deployer == nil:
		return nil, errors.New("monitor requires a deployer")
	case opts.Ledger == nil:
		return nil, errors.New("monitor requires a ledger")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	m := &Monitor{
		root:        opts.Root,
		interval:    interval,
		snapshotter: opts.Snapshotter,
		deployer:    opts.Deployer,
		ledger:      opts.Ledger,
		journal:     opts.Journal,
		watcher:     opts.Watcher,
		metrics:     opts.Metrics,
		notifier:    opts.Notifier,
		limiter:     opts.Limiter,
		textfile:    opts.MetricsTextfile,
		logger:      logging.NewComponentLogger(opts.Logger, "monitor"),
		hashFile:    opts.hashFile,
		newID:       opts.newID,
		now:         opts.now,
		pending:     make(map[string]struct{}),
		tampered:    make(map[string]struct{}),
	}
	if m.hashFile == nil {
		m.hashFile = fileutil.HashFile
	}
	if m.newID == nil {
		m.newID = func() string { return uuid.NewString() }
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

// Baseline returns the snapshot the next cycle diffs against, or nil before
// Init succeeds.
func (m *Monitor) Baseline() *snapshot.Snapshot {
	return m.baseline
}

// Pending returns the directories awaiting a deployment retry, sorted.
func (m *Monitor) Pending() []string {
	out := make([]string, 0, len(m.pending))
	for dir := range m.pending {
		out = append(out, dir)
	}
	sort.Strings(out)
	return out
}

// Run takes the baseline, then cycles every interval until ctx is cancelled.
// It returns nil on cancellation and an error only when the ledger has been
// closed underneath it.
func (m *Monitor) Run(ctx context.Context) error {
	for m.baseline == nil {
		if err := m.Init(ctx); err != nil && ctx.Err() == nil {
			logging.WarnWithContext(m.logger, "baseline walk failed; retrying", "baseline_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that paths.root_dir is readable"),
				logging.String(logging.FieldImpact, "no changes are tracked until a baseline exists"),
			)
		}
		if m.baseline == nil && !m.sleep(ctx) {
			return nil
		}
	}

	for {
		if !m.sleep(ctx) {
			return nil
		}
		if _, err := m.Cycle(ctx); err != nil {
			if errors.Is(err, ledger.ErrClosed) {
				return fmt.Errorf("monitor stopped: %w", err)
			}
			if ctx.Err() != nil {
				return nil
			}
		}
	}
}

// Init records the first snapshot as the baseline without deploying.
func (m *Monitor) Init(ctx context.Context) error {
	snap, err := m.snapshotter.Take(ctx, m.root)
	if err != nil {
		m.metrics.WalkFailed()
		return err
	}
	m.baseline = snap
	m.syncWatcher()
	m.metrics.SetLedgerEntries(m.ledger.Len())
	m.logger.Info("baseline recorded",
		logging.String("root", m.root),
		logging.Int("dirs", snap.Len()),
		logging.Int("ledger_entries", m.ledger.Len()),
		logging.String(logging.FieldEventType, "baseline_recorded"),
	)
	return nil
}

func (m *Monitor) sleep(ctx context.Context) bool {
	timer := time.NewTimer(m.interval)
	defer timer.Stop()

	var nudges <-chan struct{}
	if m.watcher != nil {
		nudges = m.watcher.Nudges()
	}
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-nudges:
		m.logger.Debug("woken early by filesystem event")
		return true
	}
}

func (m *Monitor) syncWatcher() {
	if m.watcher == nil || m.baseline == nil {
		return
	}
	rels := m.baseline.Dirs()
	dirs := make([]string, len(rels))
	for i, rel := range rels {
		dirs[i] = m.baseline.Abs(rel)
	}
	entries := m.ledger.Entries()
	decoys := make([]string, len(entries))
	for i, e := range entries {
		decoys[i] = e.Path()
	}
	m.metrics.SetWatched(m.watcher.Sync(dirs, decoys))
}

// NewLimiter builds the deploy budget limiter; a rate of 0 disables it.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
