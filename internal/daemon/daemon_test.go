package daemon_test

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"fileexporter/internal/config"
	"fileexporter/internal/daemon"
	"fileexporter/internal/logging"
	"fileexporter/internal/testsupport"
)

var refNow = time.Unix(1_700_000_000, 0)

func newDaemon(t *testing.T, cfg *config.Config, opts ...daemon.Option) *daemon.Daemon {
	t.Helper()
	opts = append([]daemon.Option{
		daemon.WithBindAddress("127.0.0.1:0"),
		daemon.WithClock(testsupport.FixedClock(refNow)),
	}, opts...)
	d, err := daemon.New(cfg, logging.NewNop(), opts...)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// gaugeValue returns the value of the series of family name whose labels
// match, and whether it exists.
func gaugeValue(t *testing.T, g prometheus.Gatherer, name string, labels map[string]string) (float64, bool) {
	t.Helper()
	families, err := g.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m.GetLabel(), labels) {
				if m.GetGauge() != nil {
					return m.GetGauge().GetValue(), true
				}
				return m.GetCounter().GetValue(), true
			}
		}
	}
	return 0, false
}

func labelsMatch(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, p := range pairs {
		if want[p.GetName()] != p.GetValue() {
			return false
		}
	}
	return true
}

func TestRunCyclePublishesInConfigOrder(t *testing.T) {
	base := t.TempDir()
	logs := filepath.Join(base, "logs")
	spool := filepath.Join(base, "spool")
	testsupport.WriteFileAt(t, filepath.Join(logs, "a.log"), 10, refNow.Add(-10*time.Second))
	testsupport.WriteFileAt(t, filepath.Join(logs, "b.txt"), 20, refNow.Add(-100*time.Second))
	testsupport.WriteFileAt(t, filepath.Join(spool, "job.dat"), 5, refNow.Add(-60*time.Second))

	cfg := testsupport.NewConfig(t,
		testsupport.WithDirectory(config.Directory{Path: logs, Name: "logs", IncludePatterns: []string{"*.log"}}),
		testsupport.WithDirectory(config.Directory{Path: spool, Name: "spool"}),
		testsupport.WithWorkers(2),
	)
	d := newDaemon(t, cfg, daemon.WithoutServer())

	results := d.RunCycle(context.Background())
	if len(results) != 2 || results[0].Name != "logs" || results[1].Name != "spool" {
		t.Fatalf("unexpected results order: %+v", results)
	}

	g := d.Gatherer()
	if v, _ := gaugeValue(t, g, "file_count_total", map[string]string{"directory": "logs"}); v != 1 {
		t.Fatalf("logs count = %v, want 1", v)
	}
	if v, _ := gaugeValue(t, g, "file_age_oldest_seconds", map[string]string{"directory": "logs"}); v != 10 {
		t.Fatalf("logs oldest = %v, want 10", v)
	}
	if v, _ := gaugeValue(t, g, "file_age_seconds", map[string]string{"directory": "spool", "filename": "job.dat"}); v != 60 {
		t.Fatalf("spool job.dat age = %v, want 60", v)
	}
	if v, _ := gaugeValue(t, g, "file_size_bytes_total", map[string]string{"directory": "spool"}); v != 5 {
		t.Fatalf("spool size = %v, want 5", v)
	}
	if got := d.Status().Cycles; got != 1 {
		t.Fatalf("cycles = %d, want 1", got)
	}
}

func TestRunCycleIsolatesFailures(t *testing.T) {
	base := t.TempDir()
	good := filepath.Join(base, "good")
	testsupport.WriteFileAt(t, filepath.Join(good, "x.log"), 3, refNow.Add(-5*time.Second))

	cfg := testsupport.NewConfig(t,
		testsupport.WithDirectory(config.Directory{Path: filepath.Join(base, "missing"), Name: "missing"}),
		testsupport.WithDirectory(config.Directory{Path: good, Name: "good"}),
	)
	d := newDaemon(t, cfg, daemon.WithoutServer())

	results := d.RunCycle(context.Background())
	if !results[0].Failed() || results[1].Failed() {
		t.Fatalf("expected only the first directory to fail: %v / %v", results[0].Err, results[1].Err)
	}

	g := d.Gatherer()
	if v, ok := gaugeValue(t, g, "file_count_total", map[string]string{"directory": "missing"}); !ok || v != 0 {
		t.Fatalf("missing count = %v (present %v), want 0", v, ok)
	}
	if v, _ := gaugeValue(t, g, "file_count_total", map[string]string{"directory": "good"}); v != 1 {
		t.Fatalf("good count = %v, want 1", v)
	}
	if v, _ := gaugeValue(t, g, "fileexporter_scan_failures_total", map[string]string{"directory": "missing", "reason": "not_found"}); v != 1 {
		t.Fatalf("failures = %v, want 1", v)
	}
}

func TestRunCycleZeroesAfterDirectoryDisappears(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "data")
	testsupport.WriteFileAt(t, filepath.Join(dir, "a.log"), 3, refNow.Add(-5*time.Second))

	cfg := testsupport.NewConfig(t, testsupport.WithDirectory(config.Directory{Path: dir, Name: "data"}))
	d := newDaemon(t, cfg, daemon.WithoutServer())
	d.RunCycle(context.Background())

	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("remove: %v", err)
	}
	d.RunCycle(context.Background())

	g := d.Gatherer()
	if v, _ := gaugeValue(t, g, "file_count_total", map[string]string{"directory": "data"}); v != 0 {
		t.Fatalf("count = %v, want 0", v)
	}
	if _, ok := gaugeValue(t, g, "file_age_seconds", map[string]string{"directory": "data", "filename": "a.log"}); ok {
		t.Fatal("expected per-file series to be pruned after failure")
	}
}

func TestRunCycleCancelledDoesNotPublish(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "a.log"), 1)
	cfg := testsupport.NewConfig(t, testsupport.WithDirectory(config.Directory{Path: dir, Name: "data"}))
	d := newDaemon(t, cfg, daemon.WithoutServer())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := d.RunCycle(ctx)
	if len(results) != 1 || results[0].Err == nil {
		t.Fatalf("expected cancelled result, got %+v", results)
	}
	if _, ok := gaugeValue(t, d.Gatherer(), "file_count_total", map[string]string{"directory": "data"}); ok {
		t.Fatal("cancelled scan must not be published")
	}
	if got := d.Status().Cycles; got != 0 {
		t.Fatalf("cycles = %d, want 0", got)
	}
}

func TestDaemonStartServesAndLocks(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteFileAt(t, filepath.Join(dir, "a.log"), 7, refNow.Add(-3*time.Second))
	cfg := testsupport.NewConfig(t, testsupport.WithDirectory(config.Directory{Path: dir, Name: "data"}))

	d := newDaemon(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	other := newDaemon(t, cfg)
	if err := other.Start(ctx); err == nil {
		other.Stop()
		t.Fatal("expected second instance to be refused by the lock")
	}

	deadline := time.Now().Add(5 * time.Second)
	for d.Status().Cycles == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first cycle did not complete")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get("http://" + d.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `file_count_total{directory="data"} 1`) {
		t.Fatalf("scrape output missing file count:\n%s", body)
	}

	d.Stop()
	if d.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}

	// The lock is released on Stop.
	if err := other.Start(ctx); err != nil {
		t.Fatalf("start after release: %v", err)
	}
	other.Stop()
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := daemon.New(nil, logging.NewNop()); err == nil {
		t.Fatal("expected error for nil config")
	}
}
