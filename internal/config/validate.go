package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/text/unicode/norm"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateScan(); err != nil {
		return err
	}
	if err := c.validateDirectories(); err != nil {
		return err
	}
	return c.validateSFTP()
}

func (c *Config) validateServer() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Interval <= 0 {
		return errors.New("interval must be positive (seconds)")
	}
	switch c.Metrics.FilenameLabel {
	case FilenameLabelBasename, FilenameLabelRelative:
	default:
		return fmt.Errorf("metrics.filename_label must be %q or %q, got %q",
			FilenameLabelBasename, FilenameLabelRelative, c.Metrics.FilenameLabel)
	}
	return nil
}

func (c *Config) validateScan() error {
	if c.Scan.Workers < 1 {
		return errors.New("scan.workers must be >= 1")
	}
	return nil
}

func (c *Config) validateDirectories() error {
	names := make(map[string]int, len(c.Directories))
	for i, dir := range c.Directories {
		if dir.Path == "" {
			return fmt.Errorf("directories[%d].path must be set", i)
		}
		label := LabelValue(dir.Name)
		if prev, dup := names[label]; dup {
			return fmt.Errorf("directories[%d].name %q duplicates directories[%d]; metric labels must be unique", i, dir.Name, prev)
		}
		names[label] = i
		for _, pattern := range dir.IncludePatterns {
			if strings.Contains(pattern, "/") {
				return fmt.Errorf("directories[%d].include_patterns: %q must not contain '/'; patterns match file basenames", i, pattern)
			}
			if !doublestar.ValidatePattern(pattern) {
				return fmt.Errorf("directories[%d].include_patterns: invalid glob %q", i, pattern)
			}
		}
		for _, name := range dir.IncludeDirs {
			if strings.ContainsAny(name, `/\`) {
				return fmt.Errorf("directories[%d].include_dirs: %q must be a directory basename", i, name)
			}
		}
	}
	return nil
}

func (c *Config) validateSFTP() error {
	if c.SFTP.TimeoutSeconds <= 0 {
		return errors.New("sftp.timeout_seconds must be positive")
	}
	for _, dir := range c.Directories {
		if !dir.IsRemote() {
			continue
		}
		if !c.SFTP.InsecureIgnoreHostKey && strings.TrimSpace(c.SFTP.KnownHosts) == "" {
			return errors.New("sftp.known_hosts must be set unless sftp.insecure_ignore_host_key is true")
		}
		break
	}
	return nil
}

// LabelValue returns s as it appears in a metric label: invalid UTF-8 is
// replaced with U+FFFD and the result is NFC-normalized, so names that differ
// only in composition map to one value.
func LabelValue(s string) string {
	return norm.NFC.String(strings.ToValidUTF8(s, "\uFFFD"))
}
