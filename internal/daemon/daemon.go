package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"snare/internal/config"
	"snare/internal/decoy"
	"snare/internal/journal"
	"snare/internal/ledger"
	"snare/internal/logging"
	"snare/internal/metrics"
	"snare/internal/monitor"
	"snare/internal/notifications"
	"snare/internal/snapshot"
	"snare/internal/watch"
)

// Daemon runs the monitor loop and its auxiliaries for one configuration.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	payload decoy.PayloadCreator
	running atomic.Bool
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithPayload replaces the default JPEG decoy payload.
func WithPayload(p decoy.PayloadCreator) Option {
	return func(d *Daemon) { d.payload = p }
}

// New constructs a daemon. Nothing is opened until Run.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires a config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	if d.payload == nil {
		d.payload = decoy.NewJPEGPayload()
	}
	return d, nil
}

// Running reports whether Run is in progress.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Run holds the lock and runs until ctx is cancelled or a component fails.
// Startup failures (lock held, missing root, unreadable ledger) are returned
// before any cycle runs. The ledger and journal are closed before Run
// returns.
func (d *Daemon) Run(ctx context.Context) (err error) {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer d.running.Store(false)

	cfg := d.cfg
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	lock, err := acquireLock(cfg.LockPath())
	if err != nil {
		return err
	}
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			d.logger.Warn("release lock failed", logging.Path(cfg.LockPath()), logging.Error(unlockErr))
		}
	}()

	if err := cfg.CheckRoot(); err != nil {
		return err
	}

	led, err := ledger.Open(cfg.Paths.LedgerPath, d.logger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() {
		if closeErr := led.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	var jrnl monitor.Journal
	store, jerr := journal.Open(cfg.JournalPath())
	if jerr != nil {
		logging.WarnWithContext(d.logger, "journal unavailable; continuing without history", "journal_open_failed",
			logging.Path(cfg.JournalPath()),
			logging.Error(jerr),
			logging.String(logging.FieldErrorHint, "delete the journal file if its schema is outdated"),
			logging.String(logging.FieldImpact, "events and audit digests are not recorded"),
		)
	} else {
		jrnl = store
		defer store.Close()
	}

	rec := metrics.New()
	notifier := notifications.NewService(cfg)

	namer, err := decoy.NewNamer(decoy.NameOptions{
		Adjectives: cfg.Decoy.Adjectives,
		Nouns:      cfg.Decoy.Nouns,
		Suffix:     cfg.Decoy.Suffix,
		Unique:     cfg.Decoy.UniqueSuffix,
	})
	if err != nil {
		return err
	}
	deployer, err := decoy.NewDeployer(decoy.Options{
		Ledger:    led,
		Payload:   d.payload,
		Namer:     namer,
		Extension: cfg.Decoy.Extension,
		Hidden:    cfg.Decoy.Hidden,
		Logger:    d.logger,
	})
	if err != nil {
		return err
	}

	snapper := snapshot.NewSnapshotter(snapshot.Options{
		Ignore:  cfg.Monitor.IgnorePatterns,
		Exclude: d.excludedPaths(),
		Logger:  d.logger,
	})

	var watcher *watch.Watcher
	monOpts := monitor.Options{
		Root:            cfg.Paths.RootDir,
		Interval:        cfg.PollInterval(),
		Snapshotter:     snapper,
		Deployer:        deployer,
		Ledger:          led,
		Journal:         jrnl,
		Metrics:         rec,
		Notifier:        notifier,
		Limiter:         monitor.NewLimiter(cfg.Monitor.DeployRate, cfg.Monitor.DeployBurst),
		MetricsTextfile: cfg.Metrics.Textfile,
		Logger:          d.logger,
	}
	if cfg.Watch.Enabled {
		watcher, err = watch.New(watch.Options{
			MaxDirs:  cfg.Watch.MaxDirs,
			ArmDelay: watch.DefaultArmDelay,
			Logger:   d.logger,
			OnTamper: d.tamperHandler(ctx, jrnl, rec, notifier),
		})
		if err != nil {
			logging.WarnWithContext(d.logger, "watcher unavailable; polling only", "watch_unavailable",
				logging.Error(err),
				logging.String(logging.FieldImpact, "no early wake-ups or live tamper alerts"),
			)
			watcher = nil
		} else {
			monOpts.Watcher = watcher
		}
	}

	mon, err := monitor.New(monOpts)
	if err != nil {
		return err
	}

	d.logger.Info("snare agent started",
		logging.String("root", cfg.Paths.RootDir),
		logging.Path(cfg.Paths.LedgerPath),
		logging.Int("ledger_entries", led.Len()),
		logging.Duration("poll_interval", cfg.PollInterval()),
		logging.Bool("watch", watcher != nil),
		logging.String(logging.FieldEventType, "agent_started"),
	)
	if err := notifier.Publish(ctx, notifications.EventAgentStarted, notifications.Payload{
		"root":    cfg.Paths.RootDir,
		"entries": led.Len(),
	}); err != nil {
		d.logger.Warn("startup notification failed", logging.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mon.Run(gctx) })
	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}
	err = g.Wait()

	d.logger.Info("snare agent stopped",
		logging.Int("ledger_entries", led.Len()),
		logging.String(logging.FieldEventType, "agent_stopped"),
	)
	return err
}

// excludedPaths keeps the agent's own files out of snapshots when they live
// under the monitored root.
func (d *Daemon) excludedPaths() []string {
	paths := []string{
		d.cfg.Paths.StateDir,
		d.cfg.Paths.LedgerPath,
		d.cfg.Paths.LogDir,
		d.cfg.LockPath(),
		d.cfg.JournalPath(),
	}
	if d.cfg.Metrics.Textfile != "" {
		paths = append(paths, d.cfg.Metrics.Textfile)
	}
	return paths
}

func (d *Daemon) tamperHandler(ctx context.Context, jrnl monitor.Journal, rec *metrics.Recorder, notifier notifications.Service) func(watch.Alert) {
	logger := logging.NewComponentLogger(d.logger, "watch")
	return func(alert watch.Alert) {
		rec.Tamper("watch")
		logging.ErrorWithContext(logger, "decoy accessed", "decoy_tamper",
			logging.Path(alert.Path),
			logging.Alert("decoy_"+alert.Op),
			logging.String("op", alert.Op),
			logging.String(logging.FieldErrorHint, "inspect recent access to the directory"),
		)
		err := notifier.Publish(context.WithoutCancel(ctx), notifications.EventTamper, notifications.Payload{
			"path":   alert.Path,
			"source": "watch",
			"detail": alert.Op,
		})
		if err != nil {
			logger.Warn("notification failed", logging.Error(err))
		}
		if jrnl == nil {
			return
		}
		err = jrnl.Record(context.WithoutCancel(ctx), journal.Event{
			Kind:      journal.KindTamper,
			Path:      alert.Path,
			Detail:    alert.Op,
			CreatedAt: alert.At,
		})
		if err != nil {
			logger.Warn("journal write failed", logging.Error(err))
		}
	}
}
