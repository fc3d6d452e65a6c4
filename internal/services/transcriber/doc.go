// Package transcriber provides the HTTP client for the external
// speech-to-text service. Responses are classified into the retry taxonomy
// used by the task queue: quota exhaustion retains source audio, permanent
// rejections skip retry entirely, and everything else is transient.
package transcriber
