package quietroute

// ErrorCode is the flat taxonomy of monitor outcomes. Per-operation errors
// surface through callbacks and never crash the service; the monitor
// latches the most recent non-benign code.
type ErrorCode int

const (
	Ok ErrorCode = iota
	ConfigInvalid
	LayoutInvalid
	ConnectFailed
	TLSHandshakeFailed
	WebSocketHandshakeFailed
	AuthRejected
	FrameParseError
	ProtocolViolation
	IngestClientDisconnected
	QueryServerClientDisconnected
	StationUnknown
	NoRouteFound
	Internal
)

func (e ErrorCode) String() string {
	switch e {
	case Ok:
		return "ok"
	case ConfigInvalid:
		return "config invalid"
	case LayoutInvalid:
		return "layout invalid"
	case ConnectFailed:
		return "connect failed"
	case TLSHandshakeFailed:
		return "tls handshake failed"
	case WebSocketHandshakeFailed:
		return "websocket handshake failed"
	case AuthRejected:
		return "auth rejected"
	case FrameParseError:
		return "frame parse error"
	case ProtocolViolation:
		return "protocol violation"
	case IngestClientDisconnected:
		return "ingest client disconnected"
	case QueryServerClientDisconnected:
		return "query server client disconnected"
	case StationUnknown:
		return "station unknown"
	case NoRouteFound:
		return "no route found"
	case Internal:
		return "internal error"
	}
	return "unknown"
}

// Benign reports whether the code is an acceptable outcome of a run. A
// query client hanging up is normal operation.
func (e ErrorCode) Benign() bool {
	return e == Ok || e == QueryServerClientDisconnected
}
