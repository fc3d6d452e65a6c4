// Package taskqueue runs the durable background work the rest of the system
// enqueues: transcription, analysis, and retention sweeps. Tasks live in
// SQLite, survive restarts, and are claimed under short leases so a crashed
// worker's task is requeued exactly once before being abandoned.
package taskqueue
