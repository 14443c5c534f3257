package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"

	"github.com/gorilla/websocket"
)

// Sentinel errors classifying a failed Connect. Each wraps the underlying
// network error.
var (
	ErrConnect      = errors.New("transport: connect failed")
	ErrTLSHandshake = errors.New("transport: tls handshake failed")
	ErrUpgrade      = errors.New("transport: websocket upgrade failed")
)

// classifyDialError maps a dial failure onto the sentinel taxonomy. The TLS
// layer surfaces certificate and record errors; everything below it counts
// as a connect failure, everything above as an upgrade failure.
func classifyDialError(err error) error {
	if errors.Is(err, websocket.ErrBadHandshake) {
		return ErrUpgrade
	}
	var (
		recordErr    tls.RecordHeaderError
		verifyErr    *tls.CertificateVerificationError
		unknownAuth  x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		certInvalid  x509.CertificateInvalidError
	)
	if errors.As(err, &recordErr) ||
		errors.As(err, &verifyErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &certInvalid) {
		return ErrTLSHandshake
	}
	return ErrConnect
}
