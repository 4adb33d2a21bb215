// Package config loads, normalizes, and validates exporter configuration.
//
// Files are TOML unless they end in .yaml or .yml. The YAML form accepts the
// flat port/interval/directories layout used by existing deployments. After
// Load every directory has its label name, include patterns and absolute
// local path resolved, so the scanner and publisher can treat the Config as
// read-only.
package config
