package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"

	"fileexporter/internal/config"
	"fileexporter/internal/logging"
	"fileexporter/internal/metrics"
	"fileexporter/internal/remote"
	"fileexporter/internal/scanner"
)

// Daemon runs scan cycles on a fixed interval and serves their results.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	registry  *prometheus.Registry
	publisher *metrics.Publisher
	server    *metrics.Server
	scanner   *scanner.Scanner
	resolver  *remote.Resolver

	dirs     []scanner.Directory
	interval time.Duration
	workers  int

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	cycles   atomic.Int64
	lastDone atomic.Int64
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	Cycles        int64
	LastCycle     time.Time
	Directories   int
	LockFilePath  string
	ListenAddress string
}

// Option configures a Daemon.
type Option func(*options)

type options struct {
	bind       string
	resolver   scanner.Resolver
	clock      func() time.Time
	withServer bool
}

// WithBindAddress overrides the configured host:port of the metrics server.
func WithBindAddress(addr string) Option {
	return func(o *options) { o.bind = addr }
}

// WithResolver replaces the local/SFTP resolver used by the scanner.
func WithResolver(r scanner.Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithClock overrides the time source used for file ages.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// WithoutServer skips the metrics server. Start then only runs the loop.
func WithoutServer() Option {
	return func(o *options) { o.withServer = false }
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	o := options{bind: cfg.BindAddress(), withServer: true}
	for _, opt := range opts {
		opt(&o)
	}

	registry := metrics.NewRegistry()
	publisher, err := metrics.NewPublisher(registry,
		metrics.WithPruneStale(cfg.Metrics.PruneStale),
		metrics.WithFilenameLabel(cfg.Metrics.FilenameLabel),
		metrics.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create publisher: %w", err)
	}

	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		registry:  registry,
		publisher: publisher,
		dirs:      Directories(cfg),
		interval:  time.Duration(cfg.Interval) * time.Second,
		workers:   max(cfg.Scan.Workers, 1),
		lockPath:  cfg.Daemon.LockPath,
	}
	if d.lockPath != "" {
		d.lock = flock.New(d.lockPath)
	}

	resolver := o.resolver
	if resolver == nil {
		d.resolver = remote.NewResolver(remote.OptionsFromConfig(cfg.SFTP), logger)
		resolver = d.resolver
	}
	scanOpts := []scanner.Option{scanner.WithResolver(resolver)}
	if o.clock != nil {
		scanOpts = append(scanOpts, scanner.WithClock(o.clock))
	}
	d.scanner = scanner.New(logger, scanOpts...)

	if o.withServer {
		d.server, err = metrics.NewServer(o.bind, registry, logger, metrics.WithPath(cfg.Metrics.Path))
		if err != nil {
			publisher.Unregister()
			return nil, fmt.Errorf("create metrics server: %w", err)
		}
	}
	return d, nil
}

// Directories converts the configured targets into scanner input.
func Directories(cfg *config.Config) []scanner.Directory {
	dirs := make([]scanner.Directory, 0, len(cfg.Directories))
	for _, dir := range cfg.Directories {
		dirs = append(dirs, scanner.Directory{
			Path:            dir.Path,
			Name:            dir.Name,
			Recursive:       dir.Recursive,
			IncludePatterns: append([]string(nil), dir.IncludePatterns...),
			IncludeDirs:     append([]string(nil), dir.IncludeDirs...),
		})
	}
	return dirs
}

// Start acquires the daemon lock, starts the metrics server and launches the
// scan loop. The first cycle runs immediately.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if d.lock != nil {
		if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
			return fmt.Errorf("create lock directory: %w", err)
		}
		ok, err := d.lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return fmt.Errorf("another fileexporter instance holds %s", d.lockPath)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	if d.server != nil {
		if err := d.server.Start(runCtx); err != nil {
			cancel()
			d.unlock()
			return err
		}
	}

	d.cancel = cancel
	d.running.Store(true)
	d.wg.Add(1)
	go d.loop(runCtx)

	d.logger.Info("fileexporter daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("address", d.Addr()),
		logging.Int("directories", len(d.dirs)),
		logging.Duration("interval", d.interval),
		logging.Int("workers", d.workers),
	)
	return nil
}

func (d *Daemon) loop(ctx context.Context) {
	defer d.wg.Done()

	d.RunCycle(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.RunCycle(ctx)
		}
	}
}

// Stop ends the scan loop, shuts the server down and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if d.server != nil {
		d.server.Stop()
	}
	d.unlock()
	d.running.Store(false)
	d.logger.Info("fileexporter daemon stopped", logging.Int64("cycles", d.cycles.Load()))
}

func (d *Daemon) unlock() {
	if d.lock == nil {
		return
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

// Close stops the daemon and releases every resource it owns.
func (d *Daemon) Close() error {
	d.Stop()
	d.publisher.Unregister()
	if d.resolver != nil {
		return d.resolver.Close()
	}
	return nil
}

// Addr returns the metrics server's bound address, or "" when not serving.
func (d *Daemon) Addr() string {
	if d.server == nil {
		return ""
	}
	return d.server.Addr()
}

// Gatherer exposes the daemon's private registry.
func (d *Daemon) Gatherer() prometheus.Gatherer {
	return d.registry
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	status := Status{
		Running:       d.running.Load(),
		Cycles:        d.cycles.Load(),
		Directories:   len(d.dirs),
		LockFilePath:  d.lockPath,
		ListenAddress: d.Addr(),
	}
	if ts := d.lastDone.Load(); ts > 0 {
		status.LastCycle = time.Unix(0, ts)
	}
	return status
}
