// Package api defines the JSON payload types exchanged between the daemon's
// HTTP endpoints and its clients, plus converters from store types.
//
// The CLI renders these types directly, so field additions here surface in
// both the HTTP responses and the table output without further plumbing.
package api
