package monitor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"snare/internal/config"
	"snare/internal/decoy"
	"snare/internal/journal"
	"snare/internal/ledger"
	"snare/internal/logging"
	"snare/internal/metrics"
	"snare/internal/notifications"
	"snare/internal/snapshot"
	"snare/internal/testsupport"
)

type harness struct {
	cfg     *config.Config
	root    string
	ledger  *ledger.Ledger
	journal *journal.Store
	alerts  *recordingNotifier
	monitor *Monitor
}

type recordingNotifier struct {
	events []notifications.Event
	paths  []string
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.events = append(r.events, event)
	if p, ok := payload["path"].(string); ok {
		r.paths = append(r.paths, p)
	}
	return nil
}

type harnessConfig struct {
	payload      decoy.PayloadCreator
	deployer     Deployer
	wrapDeployer func(Deployer) Deployer
	wrapLedger   func(*ledger.Ledger) Ledger
	limiter      *rate.Limiter
}

type harnessOption func(*harnessConfig)

func withPayload(p decoy.PayloadCreator) harnessOption {
	return func(c *harnessConfig) { c.payload = p }
}

func withDeployer(d Deployer) harnessOption {
	return func(c *harnessConfig) { c.deployer = d }
}

// withDeployerWrap intercepts the harness's real deployer.
func withDeployerWrap(wrap func(Deployer) Deployer) harnessOption {
	return func(c *harnessConfig) { c.wrapDeployer = wrap }
}

// withLedgerWrap hands the monitor a wrapper around the harness's ledger.
// The deployer still appends to the real ledger.
func withLedgerWrap(wrap func(*ledger.Ledger) Ledger) harnessOption {
	return func(c *harnessConfig) { c.wrapLedger = wrap }
}

func withLimiter(l *rate.Limiter) harnessOption {
	return func(c *harnessConfig) { c.limiter = l }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithMetricsTextfile())
	require.NoError(t, cfg.EnsureDirectories())

	l, err := ledger.Open(cfg.Paths.LedgerPath, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	store := testsupport.MustOpenJournal(t, cfg)

	hc := harnessConfig{
		payload: decoy.PayloadFunc(func(_ context.Context, path string) error {
			return os.WriteFile(path, []byte("decoy:"+filepath.Base(path)), 0o644)
		}),
	}
	for _, opt := range opts {
		opt(&hc)
	}
	if hc.deployer == nil {
		namer, err := decoy.NewNamer(decoy.NameOptions{
			Adjectives: []string{"quiet", "sly"},
			Nouns:      []string{"owl", "fox"},
			Suffix:     "hpot",
			Unique:     true,
			Source:     rand.NewPCG(7, 7),
		})
		require.NoError(t, err)
		d, err := decoy.NewDeployer(decoy.Options{
			Ledger:    l,
			Payload:   hc.payload,
			Namer:     namer,
			Extension: ".jpg",
			Logger:    logging.NewNop(),
		})
		require.NoError(t, err)
		hc.deployer = d
	}
	if hc.wrapDeployer != nil {
		hc.deployer = hc.wrapDeployer(hc.deployer)
	}
	var monitorLedger Ledger = l
	if hc.wrapLedger != nil {
		monitorLedger = hc.wrapLedger(l)
	}

	alerts := &recordingNotifier{}
	var seq atomic.Int64
	m, err := New(Options{
		Root:            cfg.Paths.RootDir,
		Interval:        10 * time.Millisecond,
		Snapshotter:     snapshot.NewSnapshotter(snapshot.Options{Logger: logging.NewNop()}),
		Deployer:        hc.deployer,
		Ledger:          monitorLedger,
		Journal:         store,
		Metrics:         metrics.New(),
		Notifier:        alerts,
		Limiter:         hc.limiter,
		MetricsTextfile: cfg.Metrics.Textfile,
		Logger:          logging.NewNop(),
		newID:           func() string { return fmt.Sprintf("cycle-%d", seq.Add(1)) },
	})
	require.NoError(t, err)
	return &harness{cfg: cfg, root: cfg.Paths.RootDir, ledger: l, journal: store, alerts: alerts, monitor: m}
}

func (h *harness) cycle(t *testing.T) Result {
	t.Helper()
	res, err := h.monitor.Cycle(context.Background())
	require.NoError(t, err)
	return res
}

func TestScenarioSubdirectoryLifecycle(t *testing.T) {
	h := newHarness(t)
	testsupport.MkdirAll(t, h.root, "a")
	require.NoError(t, h.monitor.Init(context.Background()))

	res := h.cycle(t)
	require.Empty(t, res.Deployed, "baseline directories are not seeded")

	testsupport.MkdirAll(t, h.root, "a/sub")
	res = h.cycle(t)
	require.Len(t, res.Deployed, 1)
	sub := filepath.Join(h.root, "a", "sub")
	require.Equal(t, sub, res.Deployed[0].Dir)
	require.FileExists(t, res.Deployed[0].Path())
	require.Equal(t, 1, h.ledger.Len())

	rows, err := ledger.Load(h.cfg.Paths.LedgerPath)
	require.NoError(t, err)
	require.Equal(t, res.Deployed, rows)

	digest, ok, err := h.journal.DecoyByPath(context.Background(), res.Deployed[0].Path())
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, digest.SHA256)

	// The decoy shows up in the next diff but is not logged as a user change.
	res = h.cycle(t)
	require.Empty(t, res.Deployed)
	require.Len(t, res.Changes.CreatedFiles(), 1)
	created, err := h.journal.Recent(context.Background(), 0, journal.KindCreated)
	require.NoError(t, err)
	for _, evt := range created {
		require.NotContains(t, evt.Path, "_hpot")
	}

	testsupport.RemoveAll(t, h.root, "a/sub")
	res = h.cycle(t)
	require.Len(t, res.Reconciled, 1)
	require.Equal(t, 0, h.ledger.Len())
	rows, err = ledger.Load(h.cfg.Paths.LedgerPath)
	require.NoError(t, err)
	require.Empty(t, rows)
	decoys, err := h.journal.Decoys(context.Background())
	require.NoError(t, err)
	require.Empty(t, decoys)

	data, err := os.ReadFile(h.cfg.Metrics.Textfile)
	require.NoError(t, err)
	require.Contains(t, string(data), "snare_decoy_deployed_total 1")
}

func TestSeedingIsIdempotent(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.monitor.Init(context.Background()))
	testsupport.MkdirAll(t, h.root, "x", "y/z")

	res := h.cycle(t)
	require.Len(t, res.Deployed, 3)
	for range 3 {
		res = h.cycle(t)
		require.Empty(t, res.Deployed)
	}
	require.Equal(t, 3, h.ledger.Len())

	for _, rel := range []string{"x", "y", "y/z"} {
		entries, err := os.ReadDir(filepath.Join(h.root, filepath.FromSlash(rel)))
		require.NoError(t, err)
		decoys := 0
		for _, e := range entries {
			if !e.IsDir() {
				decoys++
			}
		}
		require.Equal(t, 1, decoys, "directory %s", rel)
	}
}

func TestWalkFailureKeepsBaseline(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.monitor.Init(context.Background()))
	before := h.monitor.Baseline()

	require.NoError(t, os.RemoveAll(h.root))
	res, err := h.monitor.Cycle(context.Background())
	require.ErrorIs(t, err, snapshot.ErrIO)
	require.False(t, res.Advanced)
	require.Same(t, before, h.monitor.Baseline())

	events, err := h.journal.Recent(context.Background(), 0, journal.KindWalkFailed)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestDeployFailureIsRetriedFromPending(t *testing.T) {
	var calls atomic.Int32
	flaky := decoy.PayloadFunc(func(_ context.Context, path string) error {
		if calls.Add(1) == 1 {
			return errors.New("disk full")
		}
		return os.WriteFile(path, []byte("ok"), 0o644)
	})
	h := newHarness(t, withPayload(flaky))
	require.NoError(t, h.monitor.Init(context.Background()))
	testsupport.MkdirAll(t, h.root, "new")

	res := h.cycle(t)
	require.Equal(t, []string{"new"}, res.Failed)
	require.Equal(t, []string{"new"}, h.monitor.Pending())
	require.Equal(t, 0, h.ledger.Len())

	res = h.cycle(t)
	require.Len(t, res.Deployed, 1)
	require.Empty(t, h.monitor.Pending())
	require.Equal(t, 1, h.ledger.Len())
}

func TestPendingDroppedWhenDirectoryDeleted(t *testing.T) {
	failing := decoy.PayloadFunc(func(context.Context, string) error { return errors.New("denied") })
	h := newHarness(t, withPayload(failing))
	require.NoError(t, h.monitor.Init(context.Background()))
	testsupport.MkdirAll(t, h.root, "gone")
	h.cycle(t)
	require.Equal(t, []string{"gone"}, h.monitor.Pending())

	testsupport.RemoveAll(t, h.root, "gone")
	h.cycle(t)
	require.Empty(t, h.monitor.Pending())
}

type deniedDeployer struct {
	deny atomic.Bool
	next Deployer
}

func (d *deniedDeployer) Deploy(ctx context.Context, dir string) (ledger.Entry, error) {
	if d.deny.Load() {
		return ledger.Entry{}, &decoy.DeployError{Dir: dir, Reason: decoy.ReasonNameCheck, Err: fs.ErrPermission}
	}
	return d.next.Deploy(ctx, dir)
}

func TestNameCheckFailureKeepsDirectoryPending(t *testing.T) {
	denied := &deniedDeployer{}
	h := newHarness(t, withDeployerWrap(func(next Deployer) Deployer {
		denied.next = next
		return denied
	}))
	require.NoError(t, h.monitor.Init(context.Background()))
	testsupport.MkdirAll(t, h.root, "locked")

	denied.deny.Store(true)
	res := h.cycle(t)
	require.Equal(t, []string{"locked"}, res.Failed)
	require.Equal(t, []string{"locked"}, h.monitor.Pending())

	res = h.cycle(t)
	require.Equal(t, []string{"locked"}, res.Failed)
	require.Equal(t, []string{"locked"}, h.monitor.Pending())

	denied.deny.Store(false)
	res = h.cycle(t)
	require.Len(t, res.Deployed, 1)
	require.Equal(t, filepath.Join(h.root, "locked"), res.Deployed[0].Dir)
	require.Empty(t, h.monitor.Pending())
}

func TestUnsearchableDirectoryIsSeededOnceReadable(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	h := newHarness(t)
	require.NoError(t, h.monitor.Init(context.Background()))
	locked := filepath.Join(h.root, "locked")
	require.NoError(t, os.Mkdir(locked, 0o600))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	res := h.cycle(t)
	require.Equal(t, []string{"locked"}, res.Failed)
	require.Equal(t, []string{"locked"}, h.monitor.Pending())
	require.Equal(t, 0, h.ledger.Len())

	require.NoError(t, os.Chmod(locked, 0o755))
	res = h.cycle(t)
	require.Len(t, res.Deployed, 1)
	require.Equal(t, locked, res.Deployed[0].Dir)
	require.Empty(t, h.monitor.Pending())
}

type ledgerFailDeployer struct {
	fail atomic.Bool
	next Deployer
}

func (d *ledgerFailDeployer) Deploy(ctx context.Context, dir string) (ledger.Entry, error) {
	if d.fail.Load() {
		return ledger.Entry{}, &ledger.IOError{Op: "append", Path: "file_info.csv", Err: errors.New("no space left on device")}
	}
	return d.next.Deploy(ctx, dir)
}

func TestLedgerFailureDoesNotAdvanceBaseline(t *testing.T) {
	wrapper := &ledgerFailDeployer{}
	h := newHarness(t, withDeployer(wrapper))
	namer, err := decoy.NewNamer(decoy.NameOptions{Adjectives: []string{"calm"}, Nouns: []string{"elk"}, Suffix: "hpot"})
	require.NoError(t, err)
	inner, err := decoy.NewDeployer(decoy.Options{
		Ledger:    h.ledger,
		Payload:   decoy.PayloadFunc(func(_ context.Context, p string) error { return os.WriteFile(p, nil, 0o644) }),
		Namer:     namer,
		Extension: ".jpg",
	})
	require.NoError(t, err)
	wrapper.next = inner

	require.NoError(t, h.monitor.Init(context.Background()))
	before := h.monitor.Baseline()
	testsupport.MkdirAll(t, h.root, "d1")

	wrapper.fail.Store(true)
	res, err := h.monitor.Cycle(context.Background())
	require.ErrorIs(t, err, ledger.ErrIO)
	require.False(t, res.Advanced)
	require.Same(t, before, h.monitor.Baseline())
	require.Equal(t, []notifications.Event{notifications.EventLedgerFailure}, h.alerts.events)

	wrapper.fail.Store(false)
	res = h.cycle(t)
	require.True(t, res.Advanced)
	require.Len(t, res.Deployed, 1)
	require.Equal(t, filepath.Join(h.root, "d1"), res.Deployed[0].Dir)
}

func TestRemovedDecoyIsReportedAsTamper(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.monitor.Init(context.Background()))
	testsupport.MkdirAll(t, h.root, "bait")
	res := h.cycle(t)
	require.Len(t, res.Deployed, 1)
	planted := res.Deployed[0]
	h.cycle(t)

	require.NoError(t, os.Remove(planted.Path()))
	res = h.cycle(t)
	require.Equal(t, []string{"bait/" + planted.FileName()}, res.Tampered)
	require.Equal(t, 1, h.ledger.Len(), "tampering does not drop the ledger row")

	events, err := h.journal.Recent(context.Background(), 0, journal.KindTamper)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, []notifications.Event{notifications.EventTamper}, h.alerts.events)
	require.Equal(t, res.Tampered, h.alerts.paths)
}

type reconcileFailLedger struct {
	*ledger.Ledger
	fail atomic.Bool
}

func (l *reconcileFailLedger) Reconcile(deleted []string) ([]ledger.Entry, error) {
	if l.fail.Load() {
		return nil, &ledger.IOError{Op: "rewrite", Path: "file_info.csv", Err: errors.New("read-only file system")}
	}
	return l.Ledger.Reconcile(deleted)
}

func TestReconcileFailureDoesNotAdvanceBaseline(t *testing.T) {
	var wrapped *reconcileFailLedger
	h := newHarness(t, withLedgerWrap(func(l *ledger.Ledger) Ledger {
		wrapped = &reconcileFailLedger{Ledger: l}
		return wrapped
	}))
	require.NoError(t, h.monitor.Init(context.Background()))
	testsupport.MkdirAll(t, h.root, "d1")
	res := h.cycle(t)
	require.Len(t, res.Deployed, 1)
	h.cycle(t)

	testsupport.RemoveAll(t, h.root, "d1")
	before := h.monitor.Baseline()
	wrapped.fail.Store(true)
	res, err := h.monitor.Cycle(context.Background())
	require.ErrorIs(t, err, ledger.ErrIO)
	require.False(t, res.Advanced)
	require.Same(t, before, h.monitor.Baseline())
	require.Equal(t, 1, h.ledger.Len())
	require.Equal(t, []notifications.Event{notifications.EventLedgerFailure}, h.alerts.events)

	wrapped.fail.Store(false)
	res = h.cycle(t)
	require.True(t, res.Advanced)
	require.Len(t, res.Reconciled, 1)
	require.Equal(t, filepath.Join(h.root, "d1"), res.Reconciled[0].Dir)
	require.Equal(t, 0, h.ledger.Len())
	rows, err := ledger.Load(h.cfg.Paths.LedgerPath)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestTamperReportedOnceWhileBaselineHeld(t *testing.T) {
	var wrapped *reconcileFailLedger
	h := newHarness(t, withLedgerWrap(func(l *ledger.Ledger) Ledger {
		wrapped = &reconcileFailLedger{Ledger: l}
		return wrapped
	}))
	require.NoError(t, h.monitor.Init(context.Background()))
	testsupport.MkdirAll(t, h.root, "bait", "doomed")
	res := h.cycle(t)
	require.Len(t, res.Deployed, 2)
	var bait ledger.Entry
	for _, e := range res.Deployed {
		if e.Dir == filepath.Join(h.root, "bait") {
			bait = e
		}
	}
	h.cycle(t)

	// A failing reconcile of "doomed" holds the baseline across cycles.
	wrapped.fail.Store(true)
	testsupport.RemoveAll(t, h.root, "doomed")
	require.NoError(t, os.Remove(bait.Path()))
	for range 3 {
		_, err := h.monitor.Cycle(context.Background())
		require.ErrorIs(t, err, ledger.ErrIO)
	}
	tamperPath := "bait/" + bait.FileName()
	require.Equal(t, []string{tamperPath}, h.alerts.paths)
	events, err := h.journal.Recent(context.Background(), 0, journal.KindTamper)
	require.NoError(t, err)
	require.Len(t, events, 1)

	wrapped.fail.Store(false)
	res = h.cycle(t)
	require.True(t, res.Advanced)
	require.Empty(t, res.Tampered)
	require.Equal(t, []string{tamperPath}, h.alerts.paths)
}

func TestDeployBudgetDefersToPending(t *testing.T) {
	h := newHarness(t, withLimiter(rate.NewLimiter(rate.Every(time.Hour), 1)))
	require.NoError(t, h.monitor.Init(context.Background()))
	testsupport.MkdirAll(t, h.root, "a", "b", "c")

	res := h.cycle(t)
	require.Len(t, res.Deployed, 1)
	require.Equal(t, []string{"b", "c"}, res.Deferred)
	require.Equal(t, []string{"b", "c"}, h.monitor.Pending())
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.monitor.Init(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.monitor.Run(ctx) }()

	testsupport.MkdirAll(t, h.root, "later")
	require.Eventually(t, func() bool {
		return h.ledger.Len() == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestNewLimiter(t *testing.T) {
	require.Nil(t, NewLimiter(0, 5))
	l := NewLimiter(2, 0)
	require.NotNil(t, l)
	require.Equal(t, 1, l.Burst())
}
