package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

//go:embed sample_config.toml
var sampleConfig string

// Directory describes one scan target. When Name is blank the path is used
// as the metric label value.
type Directory struct {
	Path            string   `toml:"path" yaml:"path"`
	Name            string   `toml:"name" yaml:"name"`
	Recursive       bool     `toml:"recursive" yaml:"recursive"`
	IncludePatterns []string `toml:"include_patterns" yaml:"include_patterns"`
	IncludeDirs     []string `toml:"include_dirs" yaml:"include_dirs"`
}

// IsRemote reports whether the directory lives behind an sftp:// URL.
func (d Directory) IsRemote() bool {
	return strings.HasPrefix(d.Path, "sftp://")
}

// Metrics contains configuration for the scrape endpoint and gauge lifecycle.
type Metrics struct {
	ListenAddress string `toml:"listen_address" yaml:"listen_address"`
	Path          string `toml:"path" yaml:"path"`
	// PruneStale removes per-file series for files missing from the latest scan.
	PruneStale bool `toml:"prune_stale" yaml:"prune_stale"`
	// FilenameLabel selects "basename" or "relative" per-file label values.
	FilenameLabel string `toml:"filename_label" yaml:"filename_label"`
}

// Scan contains configuration for the scan worker pool.
type Scan struct {
	Workers int `toml:"workers" yaml:"workers"`
}

// Daemon contains process-level settings.
type Daemon struct {
	LockPath string `toml:"lock_path" yaml:"lock_path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format" yaml:"format"`
	Level  string `toml:"level" yaml:"level"`
	File   string `toml:"file" yaml:"file"`
}

// SFTP contains connection settings shared by all sftp:// directories.
type SFTP struct {
	KnownHosts            string   `toml:"known_hosts" yaml:"known_hosts"`
	IdentityFiles         []string `toml:"identity_files" yaml:"identity_files"`
	InsecureIgnoreHostKey bool     `toml:"insecure_ignore_host_key" yaml:"insecure_ignore_host_key"`
	TimeoutSeconds        int      `toml:"timeout_seconds" yaml:"timeout_seconds"`
}

// Config encapsulates all configuration values for the exporter.
//
// Port, Interval and Directories sit at the top level so plain config.yml
// files with only those keys load unchanged; the remaining sections are
// optional.
type Config struct {
	Port        int         `toml:"port" yaml:"port"`
	Interval    int         `toml:"interval" yaml:"interval"`
	Directories []Directory `toml:"directories" yaml:"directories"`
	Metrics     Metrics     `toml:"metrics" yaml:"metrics"`
	Scan        Scan        `toml:"scan" yaml:"scan"`
	Daemon      Daemon      `toml:"daemon" yaml:"daemon"`
	Logging     Logging     `toml:"logging" yaml:"logging"`
	SFTP        SFTP        `toml:"sftp" yaml:"sftp"`
}

// Load parses, normalizes, and validates the configuration file at path.
// Unlike the daemon's other inputs the file must exist: there is nothing
// useful to scan without one.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("config path is required")
	}
	resolved, err := expandPath(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file %s does not exist (create one with 'fileexporter config init')", resolved)
		}
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	cfg, err := Decode(file, formatForPath(resolved))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Format identifies a configuration file encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

func formatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

// Decode reads configuration in the given format on top of Default and
// returns the normalized, validated result.
func Decode(r io.Reader, format Format) (*Config, error) {
	cfg := Default()

	switch format {
	case FormatYAML:
		decoder := yaml.NewDecoder(r)
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case FormatTOML, "":
		decoder := toml.NewDecoder(r)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	default:
		return nil, fmt.Errorf("parse config: unsupported format %q", format)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SampleConfig returns the annotated sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes the sample configuration to path, refusing to
// overwrite an existing file.
func CreateSample(path string) error {
	resolved, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(resolved); err == nil {
		return fmt.Errorf("config file %s already exists", resolved)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(resolved, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// BindAddress returns the host:port the metrics server listens on.
func (c *Config) BindAddress() string {
	return net.JoinHostPort(c.Metrics.ListenAddress, strconv.Itoa(c.Port))
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
