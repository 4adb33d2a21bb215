package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeMetrics()
	if err := c.normalizeDirectories(); err != nil {
		return err
	}
	if err := c.normalizeDaemon(); err != nil {
		return err
	}
	if err := c.normalizeSFTP(); err != nil {
		return err
	}
	return c.normalizeLogging()
}

func (c *Config) normalizeMetrics() {
	c.Metrics.ListenAddress = strings.TrimSpace(c.Metrics.ListenAddress)
	c.Metrics.Path = strings.TrimSpace(c.Metrics.Path)
	if c.Metrics.Path == "" {
		c.Metrics.Path = defaultMetricsPath
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		c.Metrics.Path = "/" + c.Metrics.Path
	}
	c.Metrics.FilenameLabel = strings.ToLower(strings.TrimSpace(c.Metrics.FilenameLabel))
	if c.Metrics.FilenameLabel == "" {
		c.Metrics.FilenameLabel = defaultFilenameLabel
	}
	if c.Scan.Workers == 0 {
		c.Scan.Workers = defaultWorkers
	}
}

func (c *Config) normalizeDirectories() error {
	for i := range c.Directories {
		dir := &c.Directories[i]
		dir.Path = strings.TrimSpace(dir.Path)
		dir.Name = strings.TrimSpace(dir.Name)
		if dir.Name == "" {
			dir.Name = dir.Path
		}
		if dir.Path != "" && !dir.IsRemote() {
			expanded, err := expandPath(dir.Path)
			if err != nil {
				return fmt.Errorf("directories[%d].path: %w", i, err)
			}
			dir.Path = expanded
		}
		dir.IncludePatterns = trimNonEmpty(dir.IncludePatterns)
		if len(dir.IncludePatterns) == 0 {
			dir.IncludePatterns = []string{defaultIncludePattern}
		}
		dir.IncludeDirs = trimNonEmpty(dir.IncludeDirs)
	}
	return nil
}

func (c *Config) normalizeDaemon() error {
	var err error
	if strings.TrimSpace(c.Daemon.LockPath) == "" {
		c.Daemon.LockPath = defaultLockPath
	}
	if c.Daemon.LockPath, err = expandPath(c.Daemon.LockPath); err != nil {
		return fmt.Errorf("daemon.lock_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeSFTP() error {
	var err error
	if c.SFTP.KnownHosts, err = expandPath(strings.TrimSpace(c.SFTP.KnownHosts)); err != nil {
		return fmt.Errorf("sftp.known_hosts: %w", err)
	}
	files := trimNonEmpty(c.SFTP.IdentityFiles)
	for i, file := range files {
		if files[i], err = expandPath(file); err != nil {
			return fmt.Errorf("sftp.identity_files[%d]: %w", i, err)
		}
	}
	c.SFTP.IdentityFiles = files
	if c.SFTP.TimeoutSeconds == 0 {
		c.SFTP.TimeoutSeconds = defaultSFTPTimeout
	}
	return nil
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if strings.TrimSpace(c.Logging.File) != "" {
		var err error
		if c.Logging.File, err = expandPath(strings.TrimSpace(c.Logging.File)); err != nil {
			return fmt.Errorf("logging.file: %w", err)
		}
	}
	return nil
}

func trimNonEmpty(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
