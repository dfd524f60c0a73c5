package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateMonitor(); err != nil {
		return err
	}
	if err := c.validateDecoy(); err != nil {
		return err
	}
	if err := c.validateWatch(); err != nil {
		return err
	}
	if err := c.validateNotify(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.RootDir == "" {
		return errors.New("paths.root_dir must be set")
	}
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateMonitor() error {
	if c.Monitor.PollInterval <= 0 {
		return errors.New("monitor.poll_interval must be positive")
	}
	if c.Monitor.DeployRate < 0 {
		return errors.New("monitor.deploy_rate must be >= 0")
	}
	if c.Monitor.DeployRate > 0 && c.Monitor.DeployBurst < 1 {
		return errors.New("monitor.deploy_burst must be >= 1 when deploy_rate is set")
	}
	for _, pattern := range c.Monitor.IgnorePatterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("monitor.ignore_patterns: invalid pattern %q: %w", pattern, err)
		}
	}
	return nil
}

func (c *Config) validateDecoy() error {
	ext := c.Decoy.Extension
	if len(ext) < 2 || !strings.HasPrefix(ext, ".") {
		return fmt.Errorf("decoy.extension %q must be a dot followed by at least one character", ext)
	}
	if strings.ContainsAny(ext[1:], `./\`) {
		return fmt.Errorf("decoy.extension %q must not contain separators or extra dots", ext)
	}
	if c.Decoy.Suffix == "" {
		return errors.New("decoy.suffix must be set")
	}
	if !isNameToken(c.Decoy.Suffix) {
		return fmt.Errorf("decoy.suffix %q must contain only letters, digits, or hyphens", c.Decoy.Suffix)
	}
	if len(c.Decoy.Adjectives) == 0 {
		return errors.New("decoy.adjectives must not be empty")
	}
	if len(c.Decoy.Nouns) == 0 {
		return errors.New("decoy.nouns must not be empty")
	}
	for _, word := range c.Decoy.Adjectives {
		if !isNameToken(word) {
			return fmt.Errorf("decoy.adjectives: invalid word %q", word)
		}
	}
	for _, word := range c.Decoy.Nouns {
		if !isNameToken(word) {
			return fmt.Errorf("decoy.nouns: invalid word %q", word)
		}
	}
	return nil
}

func (c *Config) validateWatch() error {
	if c.Watch.MaxDirs < 0 {
		return errors.New("watch.max_dirs must be positive")
	}
	return nil
}

func (c *Config) validateNotify() error {
	topic := c.Notify.NtfyTopic
	if topic != "" && !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notify.ntfy_topic %q must be an http(s) URL", topic)
	}
	if c.Notify.RequestTimeout < 0 {
		return errors.New("notify.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be console or json", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn, or error", c.Logging.Level)
	}
	return nil
}

// isNameToken reports whether s can appear between underscores in a decoy
// name without ambiguity.
func isNameToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}
