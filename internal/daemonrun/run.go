package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"fileexporter/internal/config"
	"fileexporter/internal/daemon"
	"fileexporter/internal/logging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
	// DaemonOptions are passed through to daemon.New.
	DaemonOptions []daemon.Option
	// Ready, when set, is called once the daemon is serving.
	Ready func(*daemon.Daemon)
}

// Run starts the exporter and blocks until ctx is cancelled or the process
// receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := logging.NewFromConfig(cfg, opts.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logConfigSnapshot(logger, cfg)

	d, err := daemon.New(cfg, logger, opts.DaemonOptions...)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that no other instance is running and the metrics port is free"),
		)
		return fmt.Errorf("start daemon: %w", err)
	}
	if opts.Ready != nil {
		opts.Ready(d)
	}

	<-signalCtx.Done()
	logger.Info("fileexporter shutting down")
	return nil
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	remoteDirs := 0
	for _, dir := range cfg.Directories {
		if dir.IsRemote() {
			remoteDirs++
		}
	}
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("bind", cfg.BindAddress()),
		logging.String("metrics_path", cfg.Metrics.Path),
		logging.Int("interval_seconds", cfg.Interval),
		logging.Int("directories", len(cfg.Directories)),
		logging.Int("remote_directories", remoteDirs),
		logging.Int("workers", cfg.Scan.Workers),
		logging.Bool("prune_stale", cfg.Metrics.PruneStale),
		logging.String("filename_label", cfg.Metrics.FilenameLabel),
	)
	if len(cfg.Directories) == 0 {
		logging.WarnWithContext(logger, "no directories configured", "config_no_directories",
			logging.String(logging.FieldErrorHint, "add [[directories]] entries to the config file"),
			logging.String(logging.FieldImpact, "only exporter self-metrics will be served"),
		)
	}
}
