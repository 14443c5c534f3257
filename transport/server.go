package transport

import (
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// SessionHandler is invoked once per accepted client. It must call
// Session.Run to start delivering messages; Run returns when the session
// ends.
type SessionHandler func(sess *Session)

// Session is the server side of an accepted WebSocket connection.
type Session struct {
	sess *session
}

// Run registers the session callbacks and delivers incoming text frames
// until the client disconnects or the session is closed. It blocks for the
// lifetime of the session.
func (s *Session) Run(onMessage func(string), onClose func(error)) {
	s.sess.onMessage = onMessage
	s.sess.onClose = onClose
	s.sess.readLoop()
}

// Send writes one text frame to the client.
func (s *Session) Send(payload string, onSent func(error)) {
	s.sess.Send(payload, onSent)
}

// Close performs an orderly close of the session. The onClose callback
// registered via Run will not fire for a locally initiated closure.
func (s *Session) Close(onClosed func(error)) {
	s.sess.Close(onClosed)
}

// Server accepts WebSocket clients over TLS on a host:port bind. Only one
// session is served at a time; concurrent upgrade attempts are rejected
// with 503.
type Server struct {
	host    string
	port    int
	tlsCfg  *tls.Config
	handler SessionHandler

	httpSrv  *http.Server
	ln       net.Listener
	upgrader websocket.Upgrader

	mu   sync.Mutex
	busy bool
}

// NewServer prepares a listener for host:port. The TLS configuration must
// carry the server certificate.
func NewServer(host string, port int, tlsCfg *tls.Config) *Server {
	return &Server{
		host:   host,
		port:   port,
		tlsCfg: tlsCfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Listen binds the listening socket and starts accepting sessions in the
// background. Each accepted session is passed to handler.
func (s *Server) Listen(handler SessionHandler) error {
	s.handler = handler
	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.httpSrv = &http.Server{
		Handler:           http.HandlerFunc(s.serveHTTP),
		TLSConfig:         s.tlsCfg,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.httpSrv.ServeTLS(ln, "", ""); err != nil && err != http.ErrServerClosed {
			log.Printf("transport: server error: %v", err)
		}
	}()
	return nil
}

// Port returns the bound port. Useful when the server was created with
// port 0.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return s.port
	}
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Close stops the listener and closes connections that have not been
// upgraded. A session that has already been upgraded is not closed by it.
func (s *Server) Close() error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Close()
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		http.Error(w, "session in progress", http.StatusServiceUnavailable)
		return
	}
	s.busy = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("transport: upgrade failed: %v", err)
		return
	}
	s.handler(&Session{sess: newSession(conn, nil, nil)})
}
