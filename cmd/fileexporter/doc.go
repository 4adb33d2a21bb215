// Command fileexporter scans directories on an interval and serves file age,
// count and size gauges for Prometheus.
//
// Running it with --config starts the daemon. The scan subcommand runs a
// single cycle and prints the results; config init and config validate
// manage the configuration file.
package main
