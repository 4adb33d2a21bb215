package testsupport

import (
	"path/filepath"
	"testing"

	"fileexporter/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config whose lock file lives in a unique temp
// directory per test. It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Daemon.LockPath = filepath.Join(base, "fileexporter.lock")
	cfgVal.Metrics.ListenAddress = "127.0.0.1"
	cfgVal.Interval = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return builder.cfg
}

// WithDirectory appends a scan target. Blank names default to the path and
// empty pattern lists to "*", as config loading would do.
func WithDirectory(dir config.Directory) ConfigOption {
	return func(b *configBuilder) {
		if dir.Name == "" {
			dir.Name = dir.Path
		}
		if len(dir.IncludePatterns) == 0 {
			dir.IncludePatterns = []string{"*"}
		}
		b.cfg.Directories = append(b.cfg.Directories, dir)
	}
}

// WithWorkers sets the scan worker pool size.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scan.Workers = n
	}
}

// WithPruneStale toggles stale per-file series pruning.
func WithPruneStale(prune bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Metrics.PruneStale = prune
	}
}

// WithFilenameLabel sets the per-file label mode.
func WithFilenameLabel(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Metrics.FilenameLabel = mode
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Daemon.LockPath)
}
