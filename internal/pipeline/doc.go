// Package pipeline implements the asynchronous audio processing stages:
// transcription of uploaded audio parts, aggregation of completed parts into
// a conversation ready for analysis, the analysis stage itself, and the
// retention sweep that removes orphaned audio blobs.
//
// All stages run as handlers on the durable task queue, so every stage must
// tolerate replay. The completion aggregator's conditional status update on
// the conversation row is the single exactly-once gate: it decides which
// worker enqueues analysis when both parts of a paired conversation finish
// near-simultaneously.
package pipeline
