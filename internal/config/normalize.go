package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeMonitor()
	c.normalizeDecoy()
	c.Notify.NtfyTopic = strings.TrimSpace(c.Notify.NtfyTopic)
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.RootDir) == "" {
		c.Paths.RootDir = defaultRootDir
	}
	if c.Paths.RootDir, err = expandPath(c.Paths.RootDir); err != nil {
		return fmt.Errorf("paths.root_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LedgerPath) == "" {
		c.Paths.LedgerPath = filepath.Join(c.Paths.StateDir, defaultLedgerName)
	}
	if c.Paths.LedgerPath, err = expandPath(c.Paths.LedgerPath); err != nil {
		return fmt.Errorf("paths.ledger_path: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, defaultLogDirName)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Metrics.Textfile) != "" {
		if c.Metrics.Textfile, err = expandPath(c.Metrics.Textfile); err != nil {
			return fmt.Errorf("metrics.textfile: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeMonitor() {
	patterns := c.Monitor.IgnorePatterns[:0]
	for _, pattern := range c.Monitor.IgnorePatterns {
		if trimmed := strings.TrimSpace(pattern); trimmed != "" {
			patterns = append(patterns, trimmed)
		}
	}
	c.Monitor.IgnorePatterns = patterns
	if c.Monitor.DeployBurst <= 0 && c.Monitor.DeployRate > 0 {
		c.Monitor.DeployBurst = defaultDeployBurst
	}
	if c.Watch.MaxDirs == 0 {
		c.Watch.MaxDirs = defaultWatchMaxDirs
	}
}

func (c *Config) normalizeDecoy() {
	c.Decoy.Extension = strings.ToLower(strings.TrimSpace(c.Decoy.Extension))
	if c.Decoy.Extension != "" && !strings.HasPrefix(c.Decoy.Extension, ".") {
		c.Decoy.Extension = "." + c.Decoy.Extension
	}
	c.Decoy.Suffix = strings.TrimSpace(c.Decoy.Suffix)
	c.Decoy.Adjectives = foldWords(c.Decoy.Adjectives)
	c.Decoy.Nouns = foldWords(c.Decoy.Nouns)
}

// foldWords lowercases, trims, and dedupes a vocabulary list, keeping the
// first occurrence order.
func foldWords(words []string) []string {
	caser := cases.Lower(language.Und)
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, word := range words {
		folded := caser.String(strings.TrimSpace(word))
		if folded == "" {
			continue
		}
		if _, ok := seen[folded]; ok {
			continue
		}
		seen[folded] = struct{}{}
		out = append(out, folded)
	}
	return out
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
