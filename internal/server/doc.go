// Package server implements the HTTP and WebSocket front of the relay.
//
// The implementation is organized into specialized files for configuration,
// origin checks, the WebSocket transport adapter, routing, and HTTP handlers.
// Group membership, routing and per-connection state live in the group,
// router and session packages; this package wires them to the network.
package server
