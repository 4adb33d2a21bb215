// Package daemon coordinates the long-running exporter process.
//
// It wires configuration, the scanner, the metrics publisher and the scrape
// server into a single lifecycle with flock-based locking to prevent multiple
// instances. Each cycle scans every configured directory through a bounded
// worker pool and publishes the results in configuration order.
//
// Keep orchestration here: traversal rules belong to the scanner and series
// bookkeeping to the metrics package.
package daemon
