// Package config loads, normalizes, and validates Parley configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// PARLEY_ANALYZER_API_KEY. The Config type centralizes every knob the daemon
// needs so downstream code receives sanitized paths, canonical log formats,
// and clear validation errors.
package config
