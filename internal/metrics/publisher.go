package metrics

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"fileexporter/internal/config"
	"fileexporter/internal/logging"
	"fileexporter/internal/scanner"
)

const (
	labelDirectory = "directory"
	labelFilename  = "filename"
	labelReason    = "reason"

	selfNamespace = "fileexporter"
)

// Publisher maps scanner results onto gauge families registered in a
// caller-supplied registry.
type Publisher struct {
	reg    prometheus.Registerer
	logger *slog.Logger

	pruneStale    bool
	filenameLabel string

	fileAge *prometheus.GaugeVec
	count   *prometheus.GaugeVec
	size    *prometheus.GaugeVec
	oldest  *prometheus.GaugeVec
	newest  *prometheus.GaugeVec

	scanDuration *prometheus.GaugeVec
	lastScan     *prometheus.GaugeVec
	failures     *prometheus.CounterVec
	warnings     *prometheus.CounterVec

	mu sync.Mutex
	// published holds the filename labels set for each directory label by
	// the most recent Publish.
	published map[string]map[string]struct{}
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithPruneStale controls whether per-file series missing from the latest
// result are deleted.
func WithPruneStale(prune bool) PublisherOption {
	return func(p *Publisher) {
		p.pruneStale = prune
	}
}

// WithFilenameLabel selects how the filename label is derived: basename or
// relative path.
func WithFilenameLabel(mode string) PublisherOption {
	return func(p *Publisher) {
		if mode != "" {
			p.filenameLabel = mode
		}
	}
}

// WithLogger attaches a logger used for label and registration problems.
func WithLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPublisher creates the gauge families and registers them with reg.
func NewPublisher(reg prometheus.Registerer, opts ...PublisherOption) (*Publisher, error) {
	if reg == nil {
		return nil, errors.New("metrics publisher: registerer is required")
	}
	p := &Publisher{
		reg:           reg,
		logger:        logging.NewNop(),
		pruneStale:    true,
		filenameLabel: config.FilenameLabelBasename,
		published:     make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	switch p.filenameLabel {
	case config.FilenameLabelBasename, config.FilenameLabelRelative:
	default:
		return nil, fmt.Errorf("metrics publisher: unknown filename label mode %q", p.filenameLabel)
	}
	p.logger = logging.NewComponentLogger(p.logger, "metrics")

	p.fileAge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "file_age_seconds",
		Help: "Age of a file in seconds since its last modification.",
	}, []string{labelDirectory, labelFilename})
	p.count = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "file_count_total",
		Help: "Number of files matching the directory's patterns.",
	}, []string{labelDirectory})
	p.size = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "file_size_bytes_total",
		Help: "Total size in bytes of the matching files.",
	}, []string{labelDirectory})
	p.oldest = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "file_age_oldest_seconds",
		Help: "Age of the oldest matching file in seconds, 0 when there is none.",
	}, []string{labelDirectory})
	p.newest = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "file_age_newest_seconds",
		Help: "Age of the newest matching file in seconds, 0 when there is none.",
	}, []string{labelDirectory})

	p.scanDuration = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: selfNamespace,
		Name:      "scan_duration_seconds",
		Help:      "Wall time of the last scan of the directory.",
	}, []string{labelDirectory})
	p.lastScan = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: selfNamespace,
		Name:      "last_scan_timestamp_seconds",
		Help:      "Unix time at which the directory was last scanned.",
	}, []string{labelDirectory})
	p.failures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: selfNamespace,
		Name:      "scan_failures_total",
		Help:      "Scans that could not read the directory at all, by reason.",
	}, []string{labelDirectory, labelReason})
	p.warnings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: selfNamespace,
		Name:      "scan_warnings_total",
		Help:      "Files and subdirectories skipped because they could not be read.",
	}, []string{labelDirectory})

	var registered []prometheus.Collector
	for _, c := range p.collectors() {
		if err := reg.Register(c); err != nil {
			for _, done := range registered {
				reg.Unregister(done)
			}
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		registered = append(registered, c)
	}
	return p, nil
}

func (p *Publisher) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		p.fileAge, p.count, p.size, p.oldest, p.newest,
		p.scanDuration, p.lastScan, p.failures, p.warnings,
	}
}

// Unregister removes every family from the registry.
func (p *Publisher) Unregister() {
	for _, c := range p.collectors() {
		p.reg.Unregister(c)
	}
}

// Publish writes res into the gauge families. Aggregates are always set, so a
// failed or empty scan reports zeros rather than the previous cycle's values.
// Publishing the same result twice leaves the file_* gauge families in the
// same state. The scan_failures_total and scan_warnings_total counters are
// incremented on every call.
func (p *Publisher) Publish(res scanner.Result) {
	dir := config.LabelValue(res.Name)

	p.setGauge(p.count, float64(res.Count), dir)
	p.setGauge(p.size, float64(res.TotalSize), dir)
	p.setGauge(p.oldest, res.OldestAge, dir)
	p.setGauge(p.newest, res.NewestAge, dir)

	ages := p.fileLabels(res.Files)
	for label, age := range ages {
		p.setGauge(p.fileAge, age, dir, label)
	}
	p.prune(dir, ages)

	p.setGauge(p.scanDuration, res.Duration.Seconds(), dir)
	if !res.ScannedAt.IsZero() {
		p.setGauge(p.lastScan, float64(res.ScannedAt.UnixNano())/1e9, dir)
	}
	if res.Warnings > 0 {
		if c, err := p.warnings.GetMetricWithLabelValues(dir); err == nil {
			c.Add(float64(res.Warnings))
		}
	}
	if res.Failed() {
		if c, err := p.failures.GetMetricWithLabelValues(dir, scanner.KindOf(res.Err).String()); err == nil {
			c.Inc()
		}
	}
}

// fileLabels returns the age to publish per filename label. Equal basenames
// collapse onto one label which keeps the largest age.
func (p *Publisher) fileLabels(files []scanner.FileAge) map[string]float64 {
	ages := make(map[string]float64, len(files))
	for _, f := range files {
		name := f.Name
		if p.filenameLabel == config.FilenameLabelRelative && f.RelPath != "" {
			name = filepath.ToSlash(f.RelPath)
		}
		label := config.LabelValue(name)
		if prev, ok := ages[label]; ok && prev >= f.Age {
			continue
		}
		ages[label] = f.Age
	}
	return ages
}

func (p *Publisher) prune(dir string, current map[string]float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	previous := p.published[dir]
	next := make(map[string]struct{}, len(current))
	for label := range current {
		next[label] = struct{}{}
	}
	if !p.pruneStale {
		for label := range previous {
			next[label] = struct{}{}
		}
		p.published[dir] = next
		return
	}

	removed := 0
	for label := range previous {
		if _, ok := current[label]; ok {
			continue
		}
		if p.fileAge.DeleteLabelValues(dir, label) {
			removed++
		}
	}
	if removed > 0 {
		p.logger.Debug("pruned stale file series",
			logging.String(logging.FieldDirectory, dir),
			logging.Int("removed", removed),
		)
	}
	p.published[dir] = next
}

func (p *Publisher) setGauge(vec *prometheus.GaugeVec, value float64, labels ...string) {
	g, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		p.logger.Warn("metric update rejected",
			logging.String(logging.FieldEventType, "metric_label_invalid"),
			logging.String("labels", strings.Join(labels, ",")),
			logging.Error(err),
		)
		return
	}
	g.Set(value)
}
