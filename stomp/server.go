package stomp

import (
	"crypto/subtle"
	"log"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// SessionEnd classifies why a server session terminated.
type SessionEnd int

const (
	// SessionEndClientDisconnect covers both an explicit DISCONNECT and the
	// peer dropping the stream. It is the benign outcome.
	SessionEndClientDisconnect SessionEnd = iota
	SessionEndAuthRejected
	SessionEndFrameParse
	SessionEndProtocolViolation
)

func (e SessionEnd) String() string {
	switch e {
	case SessionEndClientDisconnect:
		return "client disconnected"
	case SessionEndAuthRejected:
		return "authentication rejected"
	case SessionEndFrameParse:
		return "frame parse error"
	case SessionEndProtocolViolation:
		return "protocol violation"
	}
	return "unknown"
}

// SessionTransport is the server side of one accepted message channel.
// transport.Session implements it.
type SessionTransport interface {
	Run(onMessage func(string), onClose func(error))
	Send(payload string, onSent func(error))
	Close(onClosed func(error))
}

// Responder emits one MESSAGE frame carrying a JSON payload to the client
// subscribed to the request's destination. The payload is dropped with a
// log line when the client holds no matching subscription.
type Responder func(payload []byte)

// RequestHandler processes the body of a SEND frame addressed to a
// registered destination.
type RequestHandler func(destination string, body []byte, respond Responder)

// Server is a STOMP 1.2 server bound to a single credential pair. It
// serves exactly one session at a time; Serve blocks for the lifetime of
// the session it is given.
type Server struct {
	name     string
	login    string
	passcode string

	// OnSessionEnd, when set, observes how each session terminated.
	OnSessionEnd func(end SessionEnd)

	handlers map[string]RequestHandler
}

// NewServer builds a server advertising name in CONNECTED frames and
// accepting exactly the given credential pair.
func NewServer(name, login, passcode string) *Server {
	return &Server{
		name:     name,
		login:    login,
		passcode: passcode,
		handlers: map[string]RequestHandler{},
	}
}

// Handle registers a request handler for SEND frames addressed to
// destination.
func (s *Server) Handle(destination string, h RequestHandler) {
	s.handlers[destination] = h
}

// Serve runs the STOMP state machine over one accepted session. It returns
// when the session ends.
func (s *Server) Serve(tr SessionTransport) {
	sess := &serverSession{
		srv:  s,
		tr:   tr,
		id:   uuid.NewString(),
		subs: map[string]string{},
	}
	tr.Run(sess.handleMessage, sess.handleTransportClose)
}

type serverSession struct {
	srv *Server
	tr  SessionTransport
	id  string

	mu     sync.Mutex
	authed bool
	ended  bool
	subs   map[string]string // subscription id -> destination
}

// handleMessage runs on the session's reader goroutine, so frames are
// processed strictly in arrival order.
func (ss *serverSession) handleMessage(payload string) {
	if payload == "\n" || payload == "\r\n" {
		return // client heartbeat
	}
	frame, err := Parse([]byte(payload))
	if err != nil {
		log.Printf("stomp: session %s: parse error: %v", ss.id, err)
		ss.abort("invalid frame: "+err.Error(), SessionEndFrameParse, nil)
		return
	}

	ss.mu.Lock()
	authed := ss.authed
	ss.mu.Unlock()
	if !authed {
		ss.handleConnect(frame)
		return
	}

	switch frame.Command {
	case CommandSubscribe:
		ss.handleSubscribe(frame)
	case CommandUnsubscribe:
		ss.handleUnsubscribe(frame)
	case CommandSend:
		ss.handleSend(frame)
	case CommandDisconnect:
		ss.sendReceiptIfRequested(frame)
		ss.end(SessionEndClientDisconnect)
		ss.tr.Close(nil)
	case CommandAck, CommandNack, CommandBegin, CommandCommit, CommandAbort:
		// Accepted for protocol completeness; subscriptions are ack:auto
		// and transactions carry no side effects here.
		ss.sendReceiptIfRequested(frame)
	default:
		ss.abort("unexpected command "+string(frame.Command), SessionEndProtocolViolation, frame)
	}
}

func (ss *serverSession) handleConnect(frame *Frame) {
	if frame.Command != CommandConnect && frame.Command != CommandStomp {
		ss.abort("expected CONNECT", SessionEndProtocolViolation, frame)
		return
	}
	login, _ := frame.Header(HdrLogin)
	passcode, _ := frame.Header(HdrPasscode)
	loginOK := subtle.ConstantTimeCompare([]byte(login), []byte(ss.srv.login))
	passOK := subtle.ConstantTimeCompare([]byte(passcode), []byte(ss.srv.passcode))
	if loginOK&passOK != 1 {
		ss.abort("invalid login or passcode", SessionEndAuthRejected, frame)
		return
	}
	ss.mu.Lock()
	ss.authed = true
	ss.mu.Unlock()
	connected := NewFrame(CommandConnected).
		AddHeader(HdrVersion, "1.2").
		AddHeader(HdrSession, ss.id).
		AddHeader(HdrServer, ss.srv.name).
		AddHeader(HdrHeartBeat, "0,0")
	ss.sendFrame(connected)
}

func (ss *serverSession) handleSubscribe(frame *Frame) {
	id, _ := frame.Header(HdrID)
	dest, _ := frame.Header(HdrDestination)
	ss.mu.Lock()
	ss.subs[id] = dest
	ss.mu.Unlock()
	ss.sendReceiptIfRequested(frame)
}

func (ss *serverSession) handleUnsubscribe(frame *Frame) {
	id, _ := frame.Header(HdrID)
	ss.mu.Lock()
	delete(ss.subs, id)
	ss.mu.Unlock()
	ss.sendReceiptIfRequested(frame)
}

func (ss *serverSession) handleSend(frame *Frame) {
	dest, _ := frame.Header(HdrDestination)
	handler, ok := ss.srv.handlers[dest]
	if !ok {
		ss.abort("no such destination "+dest, SessionEndProtocolViolation, frame)
		return
	}
	handler(dest, frame.Body, func(payload []byte) {
		ss.respond(dest, payload)
	})
	// The receipt confirms the request's side effects, so it follows the
	// handler.
	ss.sendReceiptIfRequested(frame)
}

// respond delivers a MESSAGE frame to the client's subscription paired with
// the request destination.
func (ss *serverSession) respond(destination string, payload []byte) {
	ss.mu.Lock()
	var subID string
	found := false
	for id, dest := range ss.subs {
		if dest == destination {
			subID = id
			found = true
			break
		}
	}
	ss.mu.Unlock()
	if !found {
		log.Printf("stomp: session %s: no subscription for %s, dropping response", ss.id, destination)
		return
	}
	msg := NewFrame(CommandMessage).
		AddHeader(HdrDestination, destination).
		AddHeader(HdrMessageID, uuid.NewString()).
		AddHeader(HdrSubscription, subID).
		AddHeader(HdrContentType, "application/json").
		AddHeader(HdrContentLength, strconv.Itoa(len(payload)))
	msg.Body = payload
	ss.sendFrame(msg)
}

func (ss *serverSession) sendReceiptIfRequested(frame *Frame) {
	receipt, ok := frame.Header(HdrReceipt)
	if !ok {
		return
	}
	ss.sendFrame(NewFrame(CommandReceipt).AddHeader(HdrReceiptID, receipt))
}

func (ss *serverSession) sendFrame(frame *Frame) {
	data, err := frame.Marshal()
	if err != nil {
		log.Printf("stomp: session %s: could not marshal %s frame: %v", ss.id, frame.Command, err)
		return
	}
	ss.tr.Send(string(data), func(err error) {
		if err != nil {
			log.Printf("stomp: session %s: write failed: %v", ss.id, err)
		}
	})
}

// abort reports how the session ended, replies with an ERROR frame and
// closes the session. When the offending frame carried a receipt, the
// ERROR echoes it as receipt-id so the client can correlate the failure.
func (ss *serverSession) abort(message string, end SessionEnd, cause *Frame) {
	ss.end(end)
	errFrame := NewFrame(CommandError).AddHeader(HdrMessage, message)
	if cause != nil {
		if receipt, ok := cause.Header(HdrReceipt); ok {
			errFrame.AddHeader(HdrReceiptID, receipt)
		}
	}
	ss.sendFrame(errFrame)
	ss.tr.Close(nil)
}

func (ss *serverSession) handleTransportClose(err error) {
	if err != nil {
		log.Printf("stomp: session %s: transport closed: %v", ss.id, err)
	}
	ss.end(SessionEndClientDisconnect)
}

// end reports the session outcome exactly once.
func (ss *serverSession) end(reason SessionEnd) {
	ss.mu.Lock()
	if ss.ended {
		ss.mu.Unlock()
		return
	}
	ss.ended = true
	ss.mu.Unlock()
	if ss.srv.OnSessionEnd != nil {
		ss.srv.OnSessionEnd(reason)
	}
}
