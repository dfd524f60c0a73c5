package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"snare/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test:
// <base>/root is the monitored tree and <base>/state holds agent state. The
// root directory is created; state directories are left to EnsureDirectories.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.RootDir = filepath.Join(base, "root")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LedgerPath = filepath.Join(base, "state", "file_info.csv")
	cfgVal.Paths.LogDir = filepath.Join(base, "state", "logs")
	cfgVal.Monitor.PollInterval = 1

	if err := os.MkdirAll(cfgVal.Paths.RootDir, 0o755); err != nil {
		t.Fatalf("mkdir root: %v", err)
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithVocabulary replaces the decoy word lists.
func WithVocabulary(adjectives, nouns []string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Decoy.Adjectives = append([]string(nil), adjectives...)
		b.cfg.Decoy.Nouns = append([]string(nil), nouns...)
	}
}

// WithDeployRate sets the deployment budget.
func WithDeployRate(rate float64, burst int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Monitor.DeployRate = rate
		b.cfg.Monitor.DeployBurst = burst
	}
}

// WithMetricsTextfile enables the metrics textfile under the state dir.
func WithMetricsTextfile() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Metrics.Textfile = filepath.Join(b.baseDir, "state", "snare.prom")
	}
}

// WithWatch enables the filesystem watcher.
func WithWatch() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Watch.Enabled = true
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
