package transport

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const closeGracePeriod = 2 * time.Second

// session wraps a websocket connection with a single reader goroutine and
// serialized writes. Both Client and the server-side Session build on it.
type session struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closed    atomic.Bool
	readDone  chan struct{}
	onMessage func(string)
	onClose   func(error)
}

func newSession(conn *websocket.Conn, onMessage func(string), onClose func(error)) *session {
	return &session{
		conn:      conn,
		readDone:  make(chan struct{}),
		onMessage: onMessage,
		onClose:   onClose,
	}
}

// readLoop delivers incoming text frames until the connection fails or the
// peer closes it. Ownership of each payload passes to the OnMessage callback.
func (s *session) readLoop() {
	defer close(s.readDone)
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			_ = s.conn.Close()
			if !s.closed.Load() && s.onClose != nil {
				s.onClose(err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if s.onMessage != nil {
			s.onMessage(string(data))
		}
	}
}

// Send writes one text frame. Writes are serialized in call order; onSent
// receives the write result.
func (s *session) Send(payload string, onSent func(error)) {
	s.writeMu.Lock()
	err := s.conn.WriteMessage(websocket.TextMessage, []byte(payload))
	s.writeMu.Unlock()
	if onSent != nil {
		onSent(err)
	}
}

// Close performs an orderly WebSocket close. After Close, the OnClose
// callback registered at connect time will not fire.
func (s *session) Close(onClosed func(error)) {
	s.closed.Store(true)
	s.writeMu.Lock()
	err := s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGracePeriod),
	)
	s.writeMu.Unlock()
	// Wait for the peer's close frame to end the read loop before tearing
	// the connection down.
	select {
	case <-s.readDone:
	case <-time.After(closeGracePeriod):
	}
	_ = s.conn.Close()
	if onClosed != nil {
		onClosed(err)
	}
}
