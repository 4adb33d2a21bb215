// Package metrics turns scan results into Prometheus series and serves them.
//
// A Publisher owns the exported gauge families and every piece of
// bookkeeping that decides which per-file series still exist. It registers
// into whatever prometheus.Registerer it is handed, so tests and the daemon
// each work against their own registry instead of the process-wide default.
//
// Server exposes a Gatherer over HTTP for scraping together with a small
// health endpoint.
package metrics
