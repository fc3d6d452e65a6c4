// Command parleyd runs the Parley conversation processing daemon and
// provides operational subcommands (status, queue, sweep, show, token,
// config) that talk to a running daemon over its HTTP API.
package main
