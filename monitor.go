package quietroute

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/theoremus-urban-solutions/quiet-route/config"
	"github.com/theoremus-urban-solutions/quiet-route/gtfsrt"
	"github.com/theoremus-urban-solutions/quiet-route/network"
	"github.com/theoremus-urban-solutions/quiet-route/planner"
	"github.com/theoremus-urban-solutions/quiet-route/stomp"
	"github.com/theoremus-urban-solutions/quiet-route/transport"
)

// QuietRouteDestination is the request destination served by the query
// server. Responses go to the client's subscription on the same
// destination.
const QuietRouteDestination = "/quiet-route"

// Monitor owns the live network graph and wires the two STOMP sessions
// around it: an outbound client ingesting passenger events from the
// upstream feed, and a local server answering quiet-route queries.
type Monitor struct {
	cfg config.AppConfig

	net    *network.TransportNetwork
	plan   *planner.Planner
	ingest *stomp.Client
	query  *stomp.Server
	ws     *transport.Server
	occ    *gtfsrt.OccupancyPoller

	mu         sync.Mutex
	lastErr    ErrorCode
	configured bool
}

// NewMonitor returns an unconfigured monitor.
func NewMonitor() *Monitor {
	return &Monitor{net: network.New()}
}

// Configure loads the CA bundle, builds the TLS contexts, loads the
// network-layout document and constructs both sessions. It must be called
// once before Run.
func (m *Monitor) Configure(cfg config.AppConfig) ErrorCode {
	m.cfg = cfg

	clientTLS, code := m.buildClientTLS(cfg.Network.CACertFilePath)
	if code != Ok {
		return m.latch(code)
	}
	serverTLS, code := m.buildServerTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
	if code != Ok {
		return m.latch(code)
	}

	layoutData, err := os.ReadFile(cfg.Network.LayoutFilePath)
	if err != nil {
		log.Printf("monitor: could not read layout file: %v", err)
		return m.latch(LayoutInvalid)
	}
	if err := m.net.LoadFromJSON(layoutData); err != nil {
		log.Printf("monitor: %v", err)
		return m.latch(LayoutInvalid)
	}
	if cfg.Network.PassengerCountsFilePath != "" {
		data, err := os.ReadFile(cfg.Network.PassengerCountsFilePath)
		if err != nil {
			log.Printf("monitor: could not read passenger counts: %v", err)
			return m.latch(LayoutInvalid)
		}
		counts, err := network.ParsePassengerCounts(data)
		if err != nil {
			log.Printf("monitor: %v", err)
			return m.latch(LayoutInvalid)
		}
		m.SetNetworkCrowding(counts)
	}

	m.plan = planner.New(m.net, float64(cfg.Network.StationCapacity))

	m.query = stomp.NewServer(cfg.Server.Name, cfg.Username, cfg.Passcode)
	m.query.Handle(QuietRouteDestination, m.handleQuietRoute)
	m.query.OnSessionEnd = m.handleSessionEnd
	m.ws = transport.NewServer(cfg.Server.Host, cfg.Server.Port, serverTLS)

	feedTransport := transport.NewClient(
		cfg.Feed.URL,
		cfg.Feed.Path,
		strconv.Itoa(cfg.Feed.Port),
		clientTLS,
	)
	m.ingest = stomp.NewClient(cfg.Feed.URL, feedTransport)

	if cfg.GTFSRT.VehiclePositionsURL != "" {
		interval := time.Duration(cfg.GTFSRT.ReadIntervalMS) * time.Millisecond
		m.occ = gtfsrt.NewOccupancyPoller(cfg.GTFSRT.VehiclePositionsURL, interval, m.SetNetworkCrowding)
	}

	m.configured = true
	return Ok
}

func (m *Monitor) buildClientTLS(caCertPath string) (*tls.Config, ErrorCode) {
	if caCertPath == "" {
		return &tls.Config{}, Ok
	}
	pem, err := os.ReadFile(caCertPath)
	if err != nil {
		log.Printf("monitor: could not read CA bundle: %v", err)
		return nil, ConfigInvalid
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		log.Printf("monitor: CA bundle holds no certificates")
		return nil, ConfigInvalid
	}
	return &tls.Config{RootCAs: pool}, Ok
}

func (m *Monitor) buildServerTLS(certFile, keyFile string) (*tls.Config, ErrorCode) {
	if certFile == "" || keyFile == "" {
		log.Printf("monitor: server certificate and key are required")
		return nil, ConfigInvalid
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		log.Printf("monitor: could not load server certificate: %v", err)
		return nil, ConfigInvalid
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, Ok
}

// QueryServerPort returns the bound port of the query server once Run has
// started listening, or the configured port before that. Useful for
// embedders that configure port 0.
func (m *Monitor) QueryServerPort() int {
	if m.ws == nil {
		return 0
	}
	return m.ws.Port()
}

// Network exposes the live graph, primarily for embedders that seed
// crowding before Run.
func (m *Monitor) Network() *network.TransportNetwork {
	return m.net
}

// SetNetworkCrowding bulk-assigns absolute passenger counts; unknown
// stations are logged and dropped. It returns the unknown ids.
func (m *Monitor) SetNetworkCrowding(counts map[network.ID]int64) []network.ID {
	unknown := m.net.SetNetworkCrowding(counts)
	for _, station := range unknown {
		log.Printf("monitor: crowding for unknown station %q dropped", station)
	}
	return unknown
}

// Run starts the query server and the ingest session and blocks until ctx
// is cancelled, then disconnects the ingest session and closes the query
// server's listener; a query session that is already open is not closed.
// Check LastError for the outcome.
func (m *Monitor) Run(ctx context.Context) {
	if !m.configured {
		m.latch(ConfigInvalid)
		return
	}

	if err := m.ws.Listen(func(sess *transport.Session) { m.query.Serve(sess) }); err != nil {
		log.Printf("monitor: %v", err)
		m.latch(ConnectFailed)
		return
	}
	defer func() { _ = m.ws.Close() }()
	log.Printf("monitor: query server listening on %s:%d", m.cfg.Server.Host, m.ws.Port())

	connectCtx := ctx
	if m.cfg.Feed.TimeoutMS > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.Feed.TimeoutMS)*time.Millisecond)
		defer cancel()
	}
	if ec := m.ingest.Connect(connectCtx, m.cfg.Username, m.cfg.Passcode, m.handleIngestDisconnect); ec != stomp.ClientOK {
		log.Printf("monitor: ingest connect failed: %s", ec)
		m.latch(clientErrorCode(ec))
		return
	}
	if _, ec := m.ingest.Subscribe(ctx, m.cfg.Feed.Destination, m.handleIngestMessage); ec != stomp.ClientOK {
		log.Printf("monitor: ingest subscribe failed: %s", ec)
		m.latch(clientErrorCode(ec))
		return
	}
	log.Printf("monitor: ingesting passenger events from %s%s", m.cfg.Feed.URL, m.cfg.Feed.Destination)

	if m.occ != nil {
		go m.occ.Run(ctx)
	}

	<-ctx.Done()

	drainCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m.ingest.Disconnect(drainCtx)
}

// RunFor runs the monitor for a bounded duration; 0 means run until
// interrupted.
func (m *Monitor) RunFor(d time.Duration) {
	ctx := context.Background()
	if d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	m.Run(ctx)
}

// LastError returns the most recent latched error code.
func (m *Monitor) LastError() ErrorCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// latch records an error code. Non-benign codes overwrite anything; benign
// ones never shadow a failure already recorded.
func (m *Monitor) latch(code ErrorCode) ErrorCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if code.Benign() && !m.lastErr.Benign() {
		return code
	}
	m.lastErr = code
	return code
}

func clientErrorCode(ec stomp.ClientError) ErrorCode {
	switch ec {
	case stomp.ClientOK:
		return Ok
	case stomp.ClientCouldNotConnect:
		return ConnectFailed
	case stomp.ClientBadHandshake:
		return WebSocketHandshakeFailed
	case stomp.ClientServerError:
		return AuthRejected
	case stomp.ClientServerDisconnected:
		return IngestClientDisconnected
	default:
		return Internal
	}
}

func (m *Monitor) handleIngestDisconnect(ec stomp.ClientError) {
	log.Printf("monitor: ingest session ended: %s", ec)
	m.latch(IngestClientDisconnected)
}

func (m *Monitor) handleSessionEnd(end stomp.SessionEnd) {
	log.Printf("monitor: query session ended: %s", end)
	switch end {
	case stomp.SessionEndClientDisconnect:
		m.latch(QueryServerClientDisconnected)
	case stomp.SessionEndAuthRejected:
		m.latch(AuthRejected)
	case stomp.SessionEndFrameParse:
		m.latch(FrameParseError)
	case stomp.SessionEndProtocolViolation:
		m.latch(ProtocolViolation)
	}
}

// handleIngestMessage applies one passenger event to the graph. Malformed
// events and unknown stations are logged and dropped; they never terminate
// the ingest session.
func (m *Monitor) handleIngestMessage(destination string, body []byte) {
	event, err := network.ParsePassengerEvent(body)
	if err != nil {
		log.Printf("monitor: dropping ingest frame: %v", err)
		return
	}
	if !m.net.RecordPassengerEvent(event) {
		log.Printf("monitor: passenger event for unknown station %q dropped", event.StationID)
	}
}

// quietRouteRequest is the body of a SEND to /quiet-route. The pointer
// fields override the configured planner defaults per query.
type quietRouteRequest struct {
	StartStationID network.ID `json:"start_station_id"`
	EndStationID   network.ID `json:"end_station_id"`
	MaxSlowdown    *float64   `json:"max_slowdown"`
	MinQuietness   *float64   `json:"min_quietness"`
	KCandidates    *int       `json:"k_candidates"`
}

// handleQuietRoute answers one quiet-route query. Failures are returned to
// the client as a TravelRoute with an error field and empty steps; the
// session stays open.
func (m *Monitor) handleQuietRoute(destination string, body []byte, respond stomp.Responder) {
	var req quietRouteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		m.respondError(respond, "", "", fmt.Sprintf("invalid request: %v", err))
		return
	}

	params := planner.Params{
		MaxSlowdown:      m.cfg.Planner.MaxSlowdown,
		MinQuietnessGain: m.cfg.Planner.MinQuietnessGain,
		KCandidates:      m.cfg.Planner.KCandidates,
	}
	if req.MaxSlowdown != nil {
		params.MaxSlowdown = *req.MaxSlowdown
	}
	if req.MinQuietness != nil {
		params.MinQuietnessGain = *req.MinQuietness
	}
	if req.KCandidates != nil {
		params.KCandidates = *req.KCandidates
	}

	route, err := m.plan.QuietRoute(req.StartStationID, req.EndStationID, params)
	if err != nil {
		log.Printf("monitor: query failed: %v", err)
		m.respondError(respond, req.StartStationID, req.EndStationID, err.Error())
		return
	}
	payload, err := json.Marshal(route)
	if err != nil {
		log.Printf("monitor: could not marshal itinerary: %v", err)
		m.respondError(respond, req.StartStationID, req.EndStationID, "internal error")
		return
	}
	respond(payload)
}

func (m *Monitor) respondError(respond stomp.Responder, start, end network.ID, message string) {
	route := planner.TravelRoute{
		StartStationID: start,
		EndStationID:   end,
		Steps:          []planner.Leg{},
		Error:          message,
	}
	payload, err := json.Marshal(route)
	if err != nil {
		log.Printf("monitor: could not marshal error response: %v", err)
		return
	}
	respond(payload)
}
