package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"fileexporter/internal/logging"
	"fileexporter/internal/scanner"
)

// RunCycle scans every configured directory once and publishes the results
// in configuration order. Results of scans interrupted by ctx are returned
// but not published, so a shutdown never zeroes the last good values.
func (d *Daemon) RunCycle(ctx context.Context) []scanner.Result {
	cycleID := uuid.NewString()
	ctx = logging.WithCycleID(ctx, cycleID)
	logger := logging.WithContext(ctx, d.logger)
	started := time.Now()

	results := make([]scanner.Result, len(d.dirs))
	var g errgroup.Group
	g.SetLimit(d.workers)
	for i, dir := range d.dirs {
		g.Go(func() error {
			results[i] = d.scanner.Scan(ctx, dir)
			return nil
		})
	}
	_ = g.Wait()

	var failed, warnings, skipped int
	for _, res := range results {
		if interrupted(ctx, res.Err) {
			skipped++
			continue
		}
		d.publisher.Publish(res)
		if res.Failed() {
			failed++
		}
		warnings += res.Warnings
	}

	if skipped > 0 {
		logger.Info("scan cycle interrupted; keeping previous values",
			logging.String(logging.FieldEventType, "scan_cycle_interrupted"),
			logging.Int("skipped", skipped),
		)
		return results
	}

	d.cycles.Add(1)
	d.lastDone.Store(time.Now().UnixNano())

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "scan_cycle_completed"),
		logging.Int("directories", len(results)),
		logging.Int("failed", failed),
		logging.Int("warnings", warnings),
		logging.Duration("duration", time.Since(started)),
	}
	if failed > 0 {
		logging.WarnWithContext(logger, "scan cycle completed with failures", "scan_cycle_completed",
			append(attrs,
				logging.String(logging.FieldErrorHint, "see directory_scan_failed entries for the affected paths"),
				logging.String(logging.FieldImpact, "failed directories report zero values this cycle"),
			)...,
		)
		return results
	}
	logger.Info("scan cycle completed", logging.Args(attrs...)...)
	return results
}

func interrupted(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
