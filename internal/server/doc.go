// Package server provides the HTTP dashboard over a keywatch store.
//
// This package is internal to keywatch and serves three views of one
// store: a JSON snapshot API, a Server-Sent Events stream, and a WebSocket
// stream, plus the embedded web UI and an optional Prometheus metrics
// endpoint.
//
// Every streaming connection is backed by its own [keywatch.ChanObserver]
// subscribed to the watched keys. When a client disconnects the observer is
// closed; the store prunes it from its subscriber lists the next time one
// of those keys changes.
//
// Users of the keywatch library should not need to interact with this
// package directly. The standalone binary under cmd/keywatch wires it up.
package server
