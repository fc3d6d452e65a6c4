// Package logging builds the daemon's slog loggers and centralizes the
// structured field names used across components. Console and JSON output
// formats are supported; file outputs are appended alongside stdout/stderr.
package logging
