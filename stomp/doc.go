// Package stomp implements a STOMP 1.2 frame codec and the client and
// server state machines used by the quiet-route service.
//
// The codec (Frame, Marshal, Parse) enforces the wire grammar: header
// escaping, content-length handling, the NUL terminator and the
// first-occurrence rule for duplicate headers. Parse failures classify into
// a small sentinel taxonomy (ErrUnexpectedCommand, MissingHeaderError,
// ErrInvalidEscape, ErrLengthMismatch, ErrTruncated).
//
// Client drives a transport.Client: login, subscriptions with automatic
// acknowledgement, receipt-correlated sends, heartbeats and orderly
// disconnect. Server serves exactly one concurrent session: it
// authenticates CONNECT against a single credential pair, tracks
// subscriptions and dispatches SEND frames to registered request handlers.
package stomp
