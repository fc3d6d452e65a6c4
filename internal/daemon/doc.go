// Package daemon coordinates the long-running Parley process.
//
// It wires the store, blob storage, task dispatcher, notification hub, and
// HTTP API into a single lifecycle with flock-based locking to prevent
// multiple instances, and owns the retention sweep schedule. Stage logic
// lives in internal/pipeline; the daemon focuses on startup, shutdown, and
// high level coordination.
package daemon
