// Package store persists conversations, audio parts, and queue tasks in
// SQLite. All state transitions are expressed as conditional updates so that
// concurrent workers race safely on the database rather than on in-process
// locks; callers learn whether they won a transition from the returned bool.
package store
