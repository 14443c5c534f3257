package planner

import (
	"errors"

	"github.com/theoremus-urban-solutions/quiet-route/network"
)

// Errors surfaced to query handlers.
var (
	ErrStationUnknown = errors.New("planner: unknown station")
	ErrNoRouteFound   = errors.New("planner: no route found")
)

// Network is the read-only graph surface the planner needs.
// network.TransportNetwork implements it.
type Network interface {
	HasStation(network.ID) bool
	OutEdges(network.ID) []network.Adjacency
	GetPassengerCount(network.ID) (int64, error)
}

// Params bounds one quiet-route search. MaxSlowdown is the extra travel
// time accepted as a fraction of the fastest path; MinQuietnessGain is the
// minimum relative crowding reduction a detour must deliver; KCandidates
// caps the number of alternative paths examined.
type Params struct {
	MaxSlowdown      float64 `json:"max_slowdown"`
	MinQuietnessGain float64 `json:"min_quietness"`
	KCandidates      int     `json:"k_candidates"`
}

// Leg is a maximal contiguous part of an itinerary that stays on one
// (line, route) pair.
type Leg struct {
	StartStop         network.ID   `json:"start_stop"`
	EndStop           network.ID   `json:"end_stop"`
	LineID            network.ID   `json:"line_id"`
	RouteID           network.ID   `json:"route_id"`
	IntermediateStops []network.ID `json:"intermediate_stops"`
}

// TravelRoute is the itinerary returned to clients. Steps is empty when
// Error is set.
type TravelRoute struct {
	StartStationID  network.ID `json:"start_station_id"`
	EndStationID    network.ID `json:"end_station_id"`
	TotalTravelTime int64      `json:"total_travel_time"`
	Steps           []Leg      `json:"steps"`
	Error           string     `json:"error,omitempty"`
}
