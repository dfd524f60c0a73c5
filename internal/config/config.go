package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// EnvPrefix prefixes every environment override, e.g. SNARE_PATHS_ROOT_DIR.
const EnvPrefix = "SNARE_"

// Paths contains the monitored root and the agent's own storage locations.
type Paths struct {
	RootDir    string `toml:"root_dir" env:"ROOT_DIR"`
	StateDir   string `toml:"state_dir" env:"STATE_DIR"`
	LedgerPath string `toml:"ledger_path" env:"LEDGER_PATH"`
	LogDir     string `toml:"log_dir" env:"LOG_DIR"`
}

// Monitor contains polling cadence and deployment pacing.
type Monitor struct {
	PollInterval   int      `toml:"poll_interval" env:"POLL_INTERVAL"`
	DeployRate     float64  `toml:"deploy_rate" env:"DEPLOY_RATE"`
	DeployBurst    int      `toml:"deploy_burst" env:"DEPLOY_BURST"`
	IgnorePatterns []string `toml:"ignore_patterns" env:"IGNORE_PATTERNS" envSeparator:","`
}

// Decoy contains naming and placement settings for planted files.
type Decoy struct {
	Extension    string   `toml:"extension" env:"EXTENSION"`
	Suffix       string   `toml:"suffix" env:"SUFFIX"`
	Adjectives   []string `toml:"adjectives" env:"ADJECTIVES" envSeparator:","`
	Nouns        []string `toml:"nouns" env:"NOUNS" envSeparator:","`
	Hidden       bool     `toml:"hidden" env:"HIDDEN"`
	UniqueSuffix bool     `toml:"unique_suffix" env:"UNIQUE_SUFFIX"`
}

// Watch contains settings for the optional filesystem event watcher.
type Watch struct {
	Enabled bool `toml:"enabled" env:"ENABLED"`
	MaxDirs int  `toml:"max_dirs" env:"MAX_DIRS"`
}

// Metrics contains Prometheus textfile export settings.
type Metrics struct {
	Textfile string `toml:"textfile" env:"TEXTFILE"`
}

// Notify contains ntfy alert delivery settings.
type Notify struct {
	NtfyTopic      string `toml:"ntfy_topic" env:"NTFY_TOPIC"`
	RequestTimeout int    `toml:"request_timeout" env:"REQUEST_TIMEOUT"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format" env:"FORMAT"`
	Level         string `toml:"level" env:"LEVEL"`
	RetentionDays int    `toml:"retention_days" env:"RETENTION_DAYS"`
}

// Config encapsulates all configuration values for Snare.
//
// Configuration sections by subsystem:
//   - Paths: monitored root, state directory, ledger file, logs
//   - Monitor: poll interval, deploy budget, ignore patterns
//   - Decoy: decoy naming vocabulary and placement
//   - Watch: fsnotify-based early wake and tamper alerts
//   - Metrics: Prometheus textfile export
//   - Notify: ntfy tamper alerts
//   - Logging: log format, level, and retention
type Config struct {
	Paths   Paths   `toml:"paths" envPrefix:"PATHS_"`
	Monitor Monitor `toml:"monitor" envPrefix:"MONITOR_"`
	Decoy   Decoy   `toml:"decoy" envPrefix:"DECOY_"`
	Watch   Watch   `toml:"watch" envPrefix:"WATCH_"`
	Metrics Metrics `toml:"metrics" envPrefix:"METRICS_"`
	Notify  Notify  `toml:"notify" envPrefix:"NOTIFY_"`
	Logging Logging `toml:"logging" envPrefix:"LOGGING_"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/snare/config.toml")
}

// Load locates, parses, and validates a configuration file. Environment
// overrides are applied after the file and before normalization. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, "", false, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("snare.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the agent writes into. The
// monitored root is never created; see CheckRoot.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StateDir, c.Paths.LogDir, filepath.Dir(c.Paths.LedgerPath)}
	if strings.TrimSpace(c.Metrics.Textfile) != "" {
		dirs = append(dirs, filepath.Dir(c.Metrics.Textfile))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CheckRoot verifies the monitored root exists and is a directory. A missing
// root is fatal at startup; once running, walk failures are retried instead.
func (c *Config) CheckRoot() error {
	info, err := os.Stat(c.Paths.RootDir)
	if err != nil {
		return fmt.Errorf("paths.root_dir %q: %w", c.Paths.RootDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("paths.root_dir %q is not a directory", c.Paths.RootDir)
	}
	return nil
}

// PollInterval returns the monitor cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Monitor.PollInterval) * time.Second
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "snare.lock")
}

// JournalPath returns the SQLite event journal location.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.StateDir, "journal.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
