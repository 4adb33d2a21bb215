// Package daemonrun hosts the foreground exporter process: logger setup,
// signal handling and the daemon lifecycle.
package daemonrun
