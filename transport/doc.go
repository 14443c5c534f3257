// Package transport provides the TLS WebSocket message channel used by the
// STOMP layer.
//
// A Client dials wss://host:port/path (resolve, TCP connect with a 5 second
// timeout, TLS handshake with SNI, WebSocket upgrade) and then delivers each
// received text frame to an OnMessage callback from a single reader
// goroutine. A Server binds to host:port, accepts one client session at a
// time and hands it to a SessionHandler with identical send/close semantics.
//
// Per-session callbacks never overlap: reads are delivered by one goroutine
// and writes are serialized behind a mutex. OnClose fires exactly once when
// the peer closes the stream or a read fails, and is suppressed when the
// closure was initiated locally through Close.
package transport
