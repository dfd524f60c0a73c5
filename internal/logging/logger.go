package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"snare/internal/config"
)

// LogFilePattern matches per-run agent logs under paths.log_dir.
const LogFilePattern = "snare-*.log"

// RunLogName returns the per-run log file name for a process started at t.
func RunLogName(t time.Time) string {
	return "snare-" + t.UTC().Format("20060102T150405") + ".log"
}

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// OutputPaths lists sinks: "stdout", "stderr" or file paths. Empty means
	// stdout.
	OutputPaths []string
	// ErrorOutputPaths are merged into OutputPaths; records are not split by
	// level.
	ErrorOutputPaths []string
	Development      bool
	// RunID, when set, is stamped on every record.
	RunID string
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	addSource := opts.Development || level <= slog.LevelDebug

	w, err := openSinks(append(append([]string(nil), opts.OutputPaths...), opts.ErrorOutputPaths...))
	if err != nil {
		return nil, err
	}

	var handler slog.Handler
	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "", "console":
		handler = newPrettyHandler(w, level, addSource)
	case "json":
		handler = newJSONHandler(w, level, addSource)
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
	return slog.New(newRunIDHandler(handler, opts.RunID)), nil
}

// NewFromConfig creates a logger that writes to stdout and to the per-run log
// file <log_dir>/snare-<started>.log.
func NewFromConfig(cfg *config.Config, runID string, started time.Time) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", RunID: runID})
	}
	sinks := []string{"stdout"}
	if cfg.Paths.LogDir != "" {
		sinks = append(sinks, filepath.Join(cfg.Paths.LogDir, RunLogName(started)))
	}
	return New(Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: sinks,
		RunID:       runID,
	})
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openSinks opens each distinct sink once. stderr is honored only when it is
// the sole sink, so a console agent never prints records twice.
func openSinks(paths []string) (io.Writer, error) {
	seen := make(map[string]bool, len(paths))
	var names []string
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p != "" && !seen[p] {
			seen[p] = true
			names = append(names, p)
		}
	}
	if len(names) == 0 {
		return os.Stdout, nil
	}

	var writers []io.Writer
	for _, name := range names {
		switch name {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			if len(names) == 1 {
				writers = append(writers, os.Stderr)
			}
		default:
			if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
				return nil, fmt.Errorf("ensure log dir for %s: %w", name, err)
			}
			f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", name, err)
			}
			writers = append(writers, f)
		}
	}
	if len(writers) == 1 {
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}
