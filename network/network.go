package network

import (
	"fmt"
	"sync"
)

// TransportNetwork is the live graph of stations, lines, routes and
// adjacencies, together with the per-station crowding signal.
type TransportNetwork struct {
	mu        sync.RWMutex
	stations  []stationNode
	stationIx map[ID]int
	lines     []lineRecord
	lineIx    map[ID]int
	serving   [][]RouteRef // station index -> routes calling there
}

type stationNode struct {
	station        Station
	passengerCount int64
	edges          []graphEdge
}

type graphEdge struct {
	dest       int
	line       int
	route      int
	travelTime int64
}

type lineRecord struct {
	id      ID
	name    string
	routes  []routeRecord
	routeIx map[ID]int
}

type routeRecord struct {
	id        ID
	direction string
	stops     []int
}

// New returns an empty network.
func New() *TransportNetwork {
	return &TransportNetwork{
		stationIx: map[ID]int{},
		lineIx:    map[ID]int{},
	}
}

// AddStation adds a station to the network. It returns false if a station
// with the same id already exists; the network is left unchanged.
func (n *TransportNetwork) AddStation(station Station) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.stationIx[station.ID]; exists {
		return false
	}
	n.stationIx[station.ID] = len(n.stations)
	n.stations = append(n.stations, stationNode{station: station})
	n.serving = append(n.serving, nil)
	return true
}

// AddLine adds a line and all of its routes. Every stop referenced by a
// route must already exist as a station, route line_id back-references must
// name the line and route ids must be unique within it. On any violation
// AddLine returns false and leaves the graph unchanged.
func (n *TransportNetwork) AddLine(line Line) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.lineIx[line.ID]; exists {
		return false
	}

	// Validate everything before touching the arena.
	routeIDs := map[ID]bool{}
	resolved := make([][]int, len(line.Routes))
	for i, route := range line.Routes {
		if routeIDs[route.ID] || route.LineID != line.ID || len(route.Stops) < 2 {
			return false
		}
		routeIDs[route.ID] = true
		stops := make([]int, len(route.Stops))
		for j, stopID := range route.Stops {
			ix, ok := n.stationIx[stopID]
			if !ok {
				return false
			}
			stops[j] = ix
		}
		resolved[i] = stops
	}

	lineIdx := len(n.lines)
	rec := lineRecord{
		id:      line.ID,
		name:    line.Name,
		routes:  make([]routeRecord, 0, len(line.Routes)),
		routeIx: map[ID]int{},
	}
	for i, route := range line.Routes {
		routeIdx := len(rec.routes)
		rec.routeIx[route.ID] = routeIdx
		rec.routes = append(rec.routes, routeRecord{
			id:        route.ID,
			direction: route.Direction,
			stops:     resolved[i],
		})
		ref := RouteRef{LineID: line.ID, RouteID: route.ID}
		for j, stopIx := range resolved[i] {
			if j+1 < len(resolved[i]) {
				n.stations[stopIx].edges = append(n.stations[stopIx].edges, graphEdge{
					dest:  resolved[i][j+1],
					line:  lineIdx,
					route: routeIdx,
				})
			}
			n.addServing(stopIx, ref)
		}
	}
	n.lineIx[line.ID] = lineIdx
	n.lines = append(n.lines, rec)
	return true
}

func (n *TransportNetwork) addServing(stationIx int, ref RouteRef) {
	for _, existing := range n.serving[stationIx] {
		if existing == ref {
			return
		}
	}
	n.serving[stationIx] = append(n.serving[stationIx], ref)
}

// RecordPassengerEvent applies one arrival or departure. It returns false
// when the station is unknown; counts may go negative when out-events
// precede in-events.
func (n *TransportNetwork) RecordPassengerEvent(event PassengerEvent) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	ix, ok := n.stationIx[event.StationID]
	if !ok {
		return false
	}
	switch event.Type {
	case EventIn:
		n.stations[ix].passengerCount++
	case EventOut:
		n.stations[ix].passengerCount--
	default:
		return false
	}
	return true
}

// GetPassengerCount returns the live count for a station.
func (n *TransportNetwork) GetPassengerCount(station ID) (int64, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ix, ok := n.stationIx[station]
	if !ok {
		return 0, fmt.Errorf("unknown station %q", station)
	}
	return n.stations[ix].passengerCount, nil
}

// SetNetworkCrowding bulk-assigns absolute passenger counts. Unknown
// stations are skipped and returned so the caller can log them.
func (n *TransportNetwork) SetNetworkCrowding(counts map[ID]int64) []ID {
	n.mu.Lock()
	defer n.mu.Unlock()
	var unknown []ID
	for station, count := range counts {
		ix, ok := n.stationIx[station]
		if !ok {
			unknown = append(unknown, station)
			continue
		}
		n.stations[ix].passengerCount = count
	}
	return unknown
}

// SetTravelTime sets the travel time of every edge between a and b, in both
// directions and across all routes serving the adjacency. It returns true
// iff at least one edge was updated.
func (n *TransportNetwork) SetTravelTime(a, b ID, travelTime int64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	ia, okA := n.stationIx[a]
	ib, okB := n.stationIx[b]
	if !okA || !okB || travelTime < 0 {
		return false
	}
	updated := false
	for _, pair := range [][2]int{{ia, ib}, {ib, ia}} {
		node := &n.stations[pair[0]]
		for i := range node.edges {
			if node.edges[i].dest == pair[1] {
				node.edges[i].travelTime = travelTime
				updated = true
			}
		}
	}
	return updated
}

// GetTravelTime returns the symmetric adjacency time between a and b, or 0
// when the stations are not adjacent.
func (n *TransportNetwork) GetTravelTime(a, b ID) int64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.adjacencyTime(a, b)
}

func (n *TransportNetwork) adjacencyTime(a, b ID) int64 {
	ia, okA := n.stationIx[a]
	ib, okB := n.stationIx[b]
	if !okA || !okB {
		return 0
	}
	for _, pair := range [][2]int{{ia, ib}, {ib, ia}} {
		for _, e := range n.stations[pair[0]].edges {
			if e.dest == pair[1] {
				return e.travelTime
			}
		}
	}
	return 0
}

// GetRouteTravelTime returns the cumulative travel time along a route from
// stop a (inclusive of the edge out of a) to stop b. It returns 0 when
// either stop is missing from the route or b precedes a.
func (n *TransportNetwork) GetRouteTravelTime(line, route ID, a, b ID) int64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	li, ok := n.lineIx[line]
	if !ok {
		return 0
	}
	ri, ok := n.lines[li].routeIx[route]
	if !ok {
		return 0
	}
	ia, okA := n.stationIx[a]
	ib, okB := n.stationIx[b]
	if !okA || !okB {
		return 0
	}
	stops := n.lines[li].routes[ri].stops
	posA, posB := -1, -1
	for i, s := range stops {
		if s == ia && posA < 0 {
			posA = i
		}
		if s == ib && posB < 0 {
			posB = i
		}
	}
	if posA < 0 || posB < 0 || posB < posA {
		return 0
	}
	var total int64
	for i := posA; i < posB; i++ {
		total += n.adjacencyTime(n.stations[stops[i]].station.ID, n.stations[stops[i+1]].station.ID)
	}
	return total
}

// RoutesServing returns every (line, route) pair calling at the station,
// termini included. The order is the order lines were added.
func (n *TransportNetwork) RoutesServing(station ID) []RouteRef {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ix, ok := n.stationIx[station]
	if !ok {
		return nil
	}
	refs := make([]RouteRef, len(n.serving[ix]))
	copy(refs, n.serving[ix])
	return refs
}

// HasStation reports whether the station exists.
func (n *TransportNetwork) HasStation(station ID) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.stationIx[station]
	return ok
}

// Stations returns all stations in insertion order.
func (n *TransportNetwork) Stations() []Station {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Station, len(n.stations))
	for i, node := range n.stations {
		out[i] = node.station
	}
	return out
}

// OutEdges returns the outgoing adjacencies of a station, annotated with
// the owning route and current travel time.
func (n *TransportNetwork) OutEdges(station ID) []Adjacency {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ix, ok := n.stationIx[station]
	if !ok {
		return nil
	}
	out := make([]Adjacency, 0, len(n.stations[ix].edges))
	for _, e := range n.stations[ix].edges {
		line := n.lines[e.line]
		out = append(out, Adjacency{
			To:         n.stations[e.dest].station.ID,
			LineID:     line.id,
			RouteID:    line.routes[e.route].id,
			TravelTime: e.travelTime,
		})
	}
	return out
}
