// Package ws implements the topic-scoped notification fan-out. Clients
// authenticate the websocket handshake with a signed token, subscribe to
// conversation topics, and receive stage-transition events as the pipeline
// advances. Subscribing is unrestricted; publishing an upload status into a
// topic requires a live subscription to that topic.
package ws
