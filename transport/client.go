package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

const (
	tcpConnectTimeout = 5 * time.Second
	upgradeTimeout    = 10 * time.Second
)

// Client is a WebSocket client over TLS. A zero Client is not usable; call
// NewClient. Connect may be called once per Client.
type Client struct {
	host   string
	path   string
	port   string
	tlsCfg *tls.Config

	sess *session
}

// NewClient prepares a client for wss://host:port/path. The TLS
// configuration must carry the CA pool used to verify the server; SNI is set
// to host. No connection is initiated.
func NewClient(host, path, port string, tlsCfg *tls.Config) *Client {
	return &Client{host: host, path: path, port: port, tlsCfg: tlsCfg}
}

// Connect resolves the host, opens the TCP connection, performs the TLS and
// WebSocket handshakes and starts the read loop. It returns once the
// session is open (or failed); onMessage then fires once per received text
// frame and onClose fires exactly once if the peer ends the session.
func (c *Client) Connect(ctx context.Context, onMessage func(string), onClose func(error)) error {
	cfg := c.tlsCfg.Clone()
	if cfg == nil {
		cfg = &tls.Config{}
	}
	cfg.ServerName = c.host
	dialer := websocket.Dialer{
		NetDialContext:   (&net.Dialer{Timeout: tcpConnectTimeout}).DialContext,
		TLSClientConfig:  cfg,
		HandshakeTimeout: upgradeTimeout,
	}
	u := url.URL{Scheme: "wss", Host: net.JoinHostPort(c.host, c.port), Path: c.path}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return fmt.Errorf("%w: %v", classifyDialError(err), err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	c.sess = newSession(conn, onMessage, onClose)
	go c.sess.readLoop()
	return nil
}

// Send enqueues one text frame. onSent fires with the write result.
func (c *Client) Send(payload string, onSent func(error)) {
	c.sess.Send(payload, onSent)
}

// Close initiates an orderly WebSocket close. The onClose callback passed to
// Connect will not fire for a locally initiated closure.
func (c *Client) Close(onClosed func(error)) {
	c.sess.Close(onClosed)
}
