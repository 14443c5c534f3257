package stomp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/theoremus-urban-solutions/quiet-route/transport"
)

// ClientError is the flat error taxonomy exposed by Client to its callers.
type ClientError int

const (
	ClientOK ClientError = iota
	ClientCouldNotConnect
	ClientBadHandshake
	ClientCouldNotCreateValidFrame
	ClientUnexpectedContentType
	ClientSubscriptionMismatch
	ClientServerError
	ClientServerDisconnected
)

func (e ClientError) String() string {
	switch e {
	case ClientOK:
		return "ok"
	case ClientCouldNotConnect:
		return "could not connect"
	case ClientBadHandshake:
		return "bad handshake"
	case ClientCouldNotCreateValidFrame:
		return "could not create valid frame"
	case ClientUnexpectedContentType:
		return "unexpected message content type"
	case ClientSubscriptionMismatch:
		return "unexpected subscription mismatch"
	case ClientServerError:
		return "server error"
	case ClientServerDisconnected:
		return "websocket server disconnected"
	}
	return "unknown"
}

// Transport is the duplex message channel a Client runs on.
// transport.Client implements it.
type Transport interface {
	Connect(ctx context.Context, onMessage func(string), onClose func(error)) error
	Send(payload string, onSent func(error))
	Close(onClosed func(error))
}

// MessageHandler receives the body of each MESSAGE frame delivered to a
// subscription.
type MessageHandler func(destination string, body []byte)

type clientState int

const (
	stateDisconnected clientState = iota
	stateConnecting
	stateConnected
	stateClosing
)

type subscription struct {
	id          string
	destination string
	handler     MessageHandler
}

// Client is a STOMP 1.2 client over a WebSocket transport.
//
// Heartbeats are offered on CONNECT; when the server negotiates a non-zero
// outgoing interval the client emits EOL keepalives on a background ticker.
type Client struct {
	host string
	tr   Transport

	// OnSessionError, when set before Connect, receives non-fatal session
	// errors: MESSAGE frames with an unexpected content type or an unknown
	// subscription. Such frames are dropped.
	OnSessionError func(err ClientError)

	mu           sync.Mutex
	state        clientState
	subs         map[string]*subscription
	pending      map[string]func(ClientError)
	connectCh    chan *Frame
	onDisconnect func(ClientError)
	lastError    string
	nextSubID    int
	hbStop       chan struct{}
}

// heartBeatOfferMS is the interval the client offers in both directions.
const heartBeatOfferMS = 5000

// NewClient builds a STOMP client for the given virtual host on tr. The
// host is echoed in the CONNECT frame's host header.
func NewClient(host string, tr Transport) *Client {
	return &Client{
		host:    host,
		tr:      tr,
		subs:    map[string]*subscription{},
		pending: map[string]func(ClientError){},
	}
}

// Connect opens the transport and performs the STOMP login. onDisconnect
// fires once if the session later terminates for any reason other than a
// local Disconnect.
func (c *Client) Connect(ctx context.Context, user, pass string, onDisconnect func(ClientError)) ClientError {
	c.mu.Lock()
	if c.state != stateDisconnected {
		c.mu.Unlock()
		return ClientCouldNotConnect
	}
	c.state = stateConnecting
	c.connectCh = make(chan *Frame, 1)
	c.onDisconnect = onDisconnect
	c.mu.Unlock()

	if err := c.tr.Connect(ctx, c.handleMessage, c.handleTransportClose); err != nil {
		c.setState(stateDisconnected)
		if errors.Is(err, transport.ErrTLSHandshake) || errors.Is(err, transport.ErrUpgrade) {
			return ClientBadHandshake
		}
		return ClientCouldNotConnect
	}

	frame := NewFrame(CommandConnect).
		AddHeader(HdrAcceptVersion, "1.2").
		AddHeader(HdrHost, c.host).
		AddHeader(HdrLogin, user).
		AddHeader(HdrPasscode, pass).
		AddHeader(HdrHeartBeat, fmt.Sprintf("%d,%d", heartBeatOfferMS, heartBeatOfferMS))
	if ec := c.sendFrame(frame); ec != ClientOK {
		c.tr.Close(nil)
		c.setState(stateDisconnected)
		return ec
	}

	select {
	case reply := <-c.connectCh:
		if reply.Command == CommandConnected {
			c.setState(stateConnected)
			c.startHeartbeats(reply)
			return ClientOK
		}
		c.recordServerError(reply)
		c.tr.Close(nil)
		c.setState(stateDisconnected)
		return ClientServerError
	case <-ctx.Done():
		c.tr.Close(nil)
		c.setState(stateDisconnected)
		return ClientCouldNotConnect
	}
}

// Subscribe registers a handler for MESSAGE frames on destination and waits
// for the broker's receipt. It returns the subscription id.
func (c *Client) Subscribe(ctx context.Context, destination string, handler MessageHandler) (string, ClientError) {
	c.mu.Lock()
	if c.state != stateConnected {
		c.mu.Unlock()
		return "", ClientCouldNotConnect
	}
	id := strconv.Itoa(c.nextSubID)
	c.nextSubID++
	c.subs[id] = &subscription{id: id, destination: destination, handler: handler}
	receipt := uuid.NewString()
	done := make(chan ClientError, 1)
	c.pending[receipt] = func(ec ClientError) { done <- ec }
	c.mu.Unlock()

	frame := NewFrame(CommandSubscribe).
		AddHeader(HdrID, id).
		AddHeader(HdrDestination, destination).
		AddHeader(HdrAck, "auto").
		AddHeader(HdrReceipt, receipt)
	if ec := c.sendFrame(frame); ec != ClientOK {
		c.dropSubscription(id, receipt)
		return "", ec
	}
	select {
	case ec := <-done:
		if ec != ClientOK {
			c.dropSubscription(id, "")
			return "", ec
		}
		return id, ClientOK
	case <-ctx.Done():
		c.dropSubscription(id, receipt)
		return "", ClientCouldNotConnect
	}
}

// Send emits a SEND frame carrying a JSON payload and correlates the
// broker's RECEIPT (or a matching ERROR) back to onSent. onSent fires
// exactly once.
func (c *Client) Send(destination string, payload []byte, onSent func(ClientError)) {
	c.mu.Lock()
	if c.state != stateConnected {
		c.mu.Unlock()
		if onSent != nil {
			onSent(ClientCouldNotConnect)
		}
		return
	}
	receipt := uuid.NewString()
	if onSent == nil {
		onSent = func(ClientError) {}
	}
	c.pending[receipt] = onSent
	c.mu.Unlock()

	frame := NewFrame(CommandSend).
		AddHeader(HdrDestination, destination).
		AddHeader(HdrContentType, "application/json").
		AddHeader(HdrContentLength, strconv.Itoa(len(payload))).
		AddHeader(HdrReceipt, receipt)
	frame.Body = payload
	if ec := c.sendFrame(frame); ec != ClientOK {
		c.mu.Lock()
		delete(c.pending, receipt)
		c.mu.Unlock()
		onSent(ec)
	}
}

// Disconnect performs a graceful STOMP disconnect: it sends DISCONNECT with
// a receipt, waits for it within ctx, then closes the transport. The
// onDisconnect callback given to Connect does not fire.
func (c *Client) Disconnect(ctx context.Context) ClientError {
	c.mu.Lock()
	if c.state != stateConnected {
		c.mu.Unlock()
		return ClientOK
	}
	c.state = stateClosing
	c.stopHeartbeats()
	receipt := uuid.NewString()
	done := make(chan ClientError, 1)
	c.pending[receipt] = func(ec ClientError) { done <- ec }
	c.mu.Unlock()

	frame := NewFrame(CommandDisconnect).AddHeader(HdrReceipt, receipt)
	ec := c.sendFrame(frame)
	if ec == ClientOK {
		select {
		case <-done:
		case <-ctx.Done():
		case <-time.After(closeReceiptTimeout):
		}
	}
	closed := make(chan struct{})
	c.tr.Close(func(error) { close(closed) })
	select {
	case <-closed:
	case <-time.After(closeReceiptTimeout):
	}
	c.setState(stateDisconnected)
	return ClientOK
}

const closeReceiptTimeout = 3 * time.Second

// LastServerError returns the message of the most recent ERROR frame.
func (c *Client) LastServerError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

func (c *Client) setState(s clientState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) dropSubscription(id, receipt string) {
	c.mu.Lock()
	delete(c.subs, id)
	if receipt != "" {
		delete(c.pending, receipt)
	}
	c.mu.Unlock()
}

func (c *Client) sendFrame(f *Frame) ClientError {
	data, err := f.Marshal()
	if err != nil {
		log.Printf("stomp: could not marshal %s frame: %v", f.Command, err)
		return ClientCouldNotCreateValidFrame
	}
	var sendErr error
	c.tr.Send(string(data), func(err error) { sendErr = err })
	if sendErr != nil {
		return ClientServerDisconnected
	}
	return ClientOK
}

// handleMessage runs on the transport's reader goroutine.
func (c *Client) handleMessage(payload string) {
	if strings.Trim(payload, "\r\n") == "" {
		return // server heartbeat
	}
	frame, err := Parse([]byte(payload))
	if err != nil {
		log.Printf("stomp: dropping unparseable frame: %v", err)
		c.fail(ClientServerError, err.Error())
		return
	}

	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state == stateConnecting {
		if frame.Command == CommandConnected || frame.Command == CommandError {
			select {
			case c.connectCh <- frame:
			default:
			}
			return
		}
		c.fail(ClientServerError, "unexpected frame before CONNECTED")
		return
	}

	switch frame.Command {
	case CommandMessage:
		c.dispatchMessage(frame)
	case CommandReceipt:
		id, _ := frame.Header(HdrReceiptID)
		c.resolveReceipt(id, ClientOK)
	case CommandError:
		c.recordServerError(frame)
		if id, ok := frame.Header(HdrReceiptID); ok {
			c.resolveReceipt(id, ClientServerError)
			return
		}
		c.fail(ClientServerError, c.LastServerError())
	default:
		c.fail(ClientServerError, "unexpected server command "+string(frame.Command))
	}
}

func (c *Client) dispatchMessage(frame *Frame) {
	subID, _ := frame.Header(HdrSubscription)
	dest, _ := frame.Header(HdrDestination)

	c.mu.Lock()
	sub, ok := c.subs[subID]
	c.mu.Unlock()
	if !ok || sub.destination != dest {
		log.Printf("stomp: MESSAGE for unknown subscription %q (destination %q)", subID, dest)
		c.sessionError(ClientSubscriptionMismatch)
		return
	}
	if ct, ok := frame.Header(HdrContentType); ok && !strings.HasPrefix(ct, "application/json") {
		log.Printf("stomp: MESSAGE with unexpected content type %q", ct)
		c.sessionError(ClientUnexpectedContentType)
		return
	}
	sub.handler(dest, frame.Body)
}

func (c *Client) resolveReceipt(id string, ec ClientError) {
	c.mu.Lock()
	cb, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if ok {
		cb(ec)
	} else {
		log.Printf("stomp: uncorrelated receipt %q", id)
	}
}

func (c *Client) recordServerError(frame *Frame) {
	msg, _ := frame.Header(HdrMessage)
	if msg == "" {
		msg = string(frame.Body)
	}
	c.mu.Lock()
	c.lastError = msg
	c.mu.Unlock()
}

func (c *Client) sessionError(ec ClientError) {
	if c.OnSessionError != nil {
		c.OnSessionError(ec)
	}
}

// fail terminates the session after a fatal protocol error. Outstanding
// receipt callbacks complete with the same error.
func (c *Client) fail(ec ClientError, detail string) {
	c.mu.Lock()
	if c.state == stateDisconnected || c.state == stateClosing {
		c.mu.Unlock()
		return
	}
	c.state = stateDisconnected
	c.lastError = detail
	onDisconnect := c.onDisconnect
	c.stopHeartbeats()
	pending := c.pending
	c.pending = map[string]func(ClientError){}
	c.mu.Unlock()

	for _, cb := range pending {
		cb(ec)
	}
	c.tr.Close(nil)
	if onDisconnect != nil {
		onDisconnect(ec)
	}
}

// handleTransportClose fires when the peer closes the stream or a read
// fails. Locally initiated closures are suppressed by the transport.
func (c *Client) handleTransportClose(err error) {
	c.mu.Lock()
	if c.state == stateDisconnected || c.state == stateClosing {
		c.mu.Unlock()
		return
	}
	connecting := c.state == stateConnecting
	c.state = stateDisconnected
	onDisconnect := c.onDisconnect
	c.stopHeartbeats()
	pending := c.pending
	c.pending = map[string]func(ClientError){}
	c.mu.Unlock()

	for _, cb := range pending {
		cb(ClientServerDisconnected)
	}
	if connecting {
		select {
		case c.connectCh <- NewFrame(CommandError).AddHeader(HdrMessage, "disconnected"):
		default:
		}
		return
	}
	if onDisconnect != nil {
		onDisconnect(ClientServerDisconnected)
	}
}

// startHeartbeats begins the outgoing keepalive ticker when the CONNECTED
// frame negotiates a non-zero interval.
func (c *Client) startHeartbeats(connected *Frame) {
	interval := negotiatedSendInterval(connected)
	if interval <= 0 {
		return
	}
	stop := make(chan struct{})
	c.mu.Lock()
	c.hbStop = stop
	c.mu.Unlock()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.tr.Send("\n", nil)
			case <-stop:
				return
			}
		}
	}()
}

func (c *Client) stopHeartbeats() {
	if c.hbStop != nil {
		close(c.hbStop)
		c.hbStop = nil
	}
}

// negotiatedSendInterval derives the client→server heartbeat period from
// the server's heart-beat header: max of our offer and the server's
// expectation, zero when either side opts out.
func negotiatedSendInterval(connected *Frame) time.Duration {
	v, ok := connected.Header(HdrHeartBeat)
	if !ok {
		return 0
	}
	parts := strings.SplitN(v, ",", 2)
	if len(parts) != 2 {
		return 0
	}
	sy, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || sy <= 0 {
		return 0
	}
	ms := sy
	if heartBeatOfferMS > ms {
		ms = heartBeatOfferMS
	}
	return time.Duration(ms) * time.Millisecond
}
