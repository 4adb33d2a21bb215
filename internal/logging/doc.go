// Package logging builds the exporter's slog loggers.
//
// Two handlers are provided: a single-line console format that prints the
// component as a prefix, and JSON for the optional log file. NewFromConfig
// tees them when a file is configured. The attribute helpers and
// WarnWithContext keep event_type, error_hint and impact keys consistent
// across packages, and WithContext stamps the scan cycle ID onto loggers.
package logging
