package config

const (
	defaultPort           = 8000
	defaultInterval       = 30
	defaultMetricsPath    = "/metrics"
	defaultFilenameLabel  = FilenameLabelBasename
	defaultWorkers        = 1
	defaultLockPath       = "~/.local/state/fileexporter/fileexporter.lock"
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
	defaultKnownHosts     = "~/.ssh/known_hosts"
	defaultSFTPTimeout    = 15
	defaultIncludePattern = "*"
)

// Filename label modes accepted by metrics.filename_label.
const (
	FilenameLabelBasename = "basename"
	FilenameLabelRelative = "relative"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Port:     defaultPort,
		Interval: defaultInterval,
		Metrics: Metrics{
			Path:          defaultMetricsPath,
			PruneStale:    true,
			FilenameLabel: defaultFilenameLabel,
		},
		Scan: Scan{
			Workers: defaultWorkers,
		},
		Daemon: Daemon{
			LockPath: defaultLockPath,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		SFTP: SFTP{
			KnownHosts:     defaultKnownHosts,
			TimeoutSeconds: defaultSFTPTimeout,
		},
	}
}
