// Package analyzer provides the chat-completion client used to analyze
// assembled conversation transcripts.
package analyzer
