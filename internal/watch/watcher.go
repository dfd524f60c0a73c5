package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"snare/internal/logging"
)

// DefaultArmDelay is how long a newly synced decoy is ignored so the agent's
// own writes are not reported as tampering.
const DefaultArmDelay = time.Second

// Alert describes an event on a tracked decoy.
type Alert struct {
	Path string
	Op   string
	At   time.Time
}

// Options configures a Watcher.
type Options struct {
	// MaxDirs caps the number of watched directories; 0 means unlimited.
	MaxDirs  int
	ArmDelay time.Duration
	Logger   *slog.Logger
	OnTamper func(Alert)
	Now      func() time.Time
}

// Watcher tracks baseline directories and decoy files with fsnotify.
type Watcher struct {
	fw       *fsnotify.Watcher
	nudge    chan struct{}
	maxDirs  int
	armDelay time.Duration
	logger   *slog.Logger
	onTamper func(Alert)
	now      func() time.Time

	mu      sync.Mutex
	watched map[string]struct{}
	decoys  map[string]time.Time
	capped  bool
}

// New creates a watcher. Call Sync to choose directories and Run to process
// events.
func New(opts Options) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	armDelay := opts.ArmDelay
	if armDelay < 0 {
		armDelay = 0
	}
	return &Watcher{
		fw:       fw,
		nudge:    make(chan struct{}, 1),
		maxDirs:  opts.MaxDirs,
		armDelay: armDelay,
		logger:   logging.NewComponentLogger(logger, "watch"),
		onTamper: opts.OnTamper,
		now:      now,
		watched:  make(map[string]struct{}),
		decoys:   make(map[string]time.Time),
	}, nil
}

// Nudges delivers at most one pending wake-up signal at a time.
func (w *Watcher) Nudges() <-chan struct{} {
	return w.nudge
}

// Sync replaces the watched directory set with dirs (absolute paths) and the
// tracked decoy set with decoys. Shallow directories win when the cap is hit.
// It returns the number of directories being watched.
func (w *Watcher) Sync(dirs, decoys []string) int {
	want := append([]string(nil), dirs...)
	sort.Slice(want, func(i, j int) bool {
		di, dj := depth(want[i]), depth(want[j])
		if di != dj {
			return di < dj
		}
		return want[i] < want[j]
	})
	capped := false
	if w.maxDirs > 0 && len(want) > w.maxDirs {
		want = want[:w.maxDirs]
		capped = true
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	wanted := make(map[string]struct{}, len(want))
	for _, dir := range want {
		wanted[dir] = struct{}{}
	}
	for dir := range w.watched {
		if _, keep := wanted[dir]; keep {
			continue
		}
		_ = w.fw.Remove(dir)
		delete(w.watched, dir)
	}
	for _, dir := range want {
		if _, ok := w.watched[dir]; ok {
			continue
		}
		if err := w.fw.Add(dir); err != nil {
			w.logger.Debug("watch add skipped", logging.Dir(dir), logging.Error(err))
			continue
		}
		w.watched[dir] = struct{}{}
	}

	if capped && !w.capped {
		logging.WarnWithContext(w.logger, "watch directory cap reached; deeper directories rely on polling",
			"watch_capped",
			logging.Int("max_dirs", w.maxDirs),
			logging.Int("baseline_dirs", len(dirs)),
			logging.String(logging.FieldErrorHint, "raise watch.max_dirs or fs.inotify.max_user_watches"),
			logging.String(logging.FieldImpact, "changes in unwatched directories are seen at the next poll"),
		)
	}
	w.capped = capped

	armAt := w.now().Add(w.armDelay)
	next := make(map[string]time.Time, len(decoys))
	for _, path := range decoys {
		if at, ok := w.decoys[path]; ok {
			next[path] = at
			continue
		}
		next[path] = armAt
	}
	w.decoys = next
	return len(w.watched)
}

// Watched returns the watched directories sorted.
func (w *Watcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.watched))
	for dir := range w.watched {
		out = append(out, dir)
	}
	sort.Strings(out)
	return out
}

// Run processes events until ctx is cancelled, then releases the fsnotify
// handle.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fw.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(w.logger, "watch error; polling continues", "watch_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "inotify queue may have overflowed"),
				logging.String(logging.FieldImpact, "changes are picked up by the next poll"),
			)
			w.signal()
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	w.mu.Lock()
	armAt, tracked := w.decoys[path]
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		delete(w.watched, path)
	}
	w.mu.Unlock()

	if tracked && tampering(event.Op) && !w.now().Before(armAt) {
		alert := Alert{Path: path, Op: opName(event.Op), At: w.now()}
		if w.onTamper != nil {
			w.onTamper(alert)
		}
	}
	if event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.signal()
	}
}

func (w *Watcher) signal() {
	select {
	case w.nudge <- struct{}{}:
	default:
	}
}

func tampering(op fsnotify.Op) bool {
	return op.Has(fsnotify.Write) || op.Has(fsnotify.Chmod) || op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename)
}

func opName(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Chmod):
		return "chmod"
	default:
		return strings.ToLower(op.String())
	}
}

func depth(path string) int {
	return strings.Count(filepath.ToSlash(filepath.Clean(path)), "/")
}
