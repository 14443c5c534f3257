package planner

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/theoremus-urban-solutions/quiet-route/network"
)

// twoRouteNetwork builds the playground layout:
//
//	route 0 (line_0): 1-2-3-4-5, 1 second per hop
//	route 1 (line_1): 20-1-21-22-4-23, 2 seconds per hop
func twoRouteNetwork(t *testing.T) *network.TransportNetwork {
	t.Helper()
	n := network.New()
	layout := network.Layout{
		Stations: []network.Station{
			{ID: "station_1"}, {ID: "station_2"}, {ID: "station_3"},
			{ID: "station_4"}, {ID: "station_5"}, {ID: "station_20"},
			{ID: "station_21"}, {ID: "station_22"}, {ID: "station_23"},
		},
		Lines: []network.Line{
			{
				ID: "line_0",
				Routes: []network.Route{{
					ID:             "route_0",
					LineID:         "line_0",
					StartStationID: "station_1",
					EndStationID:   "station_5",
					Stops:          []network.ID{"station_1", "station_2", "station_3", "station_4", "station_5"},
				}},
			},
			{
				ID: "line_1",
				Routes: []network.Route{{
					ID:             "route_1",
					LineID:         "line_1",
					StartStationID: "station_20",
					EndStationID:   "station_23",
					Stops:          []network.ID{"station_20", "station_1", "station_21", "station_22", "station_4", "station_23"},
				}},
			},
		},
		TravelTimes: []network.TravelTime{
			{StartStationID: "station_1", EndStationID: "station_2", TravelTime: 1},
			{StartStationID: "station_2", EndStationID: "station_3", TravelTime: 1},
			{StartStationID: "station_3", EndStationID: "station_4", TravelTime: 1},
			{StartStationID: "station_4", EndStationID: "station_5", TravelTime: 1},
			{StartStationID: "station_20", EndStationID: "station_1", TravelTime: 2},
			{StartStationID: "station_1", EndStationID: "station_21", TravelTime: 2},
			{StartStationID: "station_21", EndStationID: "station_22", TravelTime: 2},
			{StartStationID: "station_22", EndStationID: "station_4", TravelTime: 2},
			{StartStationID: "station_4", EndStationID: "station_23", TravelTime: 2},
		},
	}
	if err := n.Load(layout); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	return n
}

func TestQuietRoute_AvoidsCrowdedStation(t *testing.T) {
	n := twoRouteNetwork(t)
	n.SetNetworkCrowding(map[network.ID]int64{
		"station_3":  100,
		"station_21": 50,
	})
	p := New(n, 0)

	route, err := p.QuietRoute("station_1", "station_4", Params{
		MaxSlowdown:      1.0,
		MinQuietnessGain: 0.1,
		KCandidates:      20,
	})
	if err != nil {
		t.Fatalf("QuietRoute failed: %v", err)
	}

	// The fastest path (1-2-3-4, 3 seconds) passes the very crowded
	// station 3; the detour over route 1 doubles the time but halves the
	// crowding.
	if len(route.Steps) != 1 {
		t.Fatalf("got %d legs, want 1: %+v", len(route.Steps), route.Steps)
	}
	leg := route.Steps[0]
	if leg.LineID != "line_1" || leg.RouteID != "route_1" {
		t.Errorf("leg on %s/%s, want line_1/route_1", leg.LineID, leg.RouteID)
	}
	if !reflect.DeepEqual(leg.IntermediateStops, []network.ID{"station_21", "station_22"}) {
		t.Errorf("intermediate stops = %v", leg.IntermediateStops)
	}
	if route.TotalTravelTime != 6 {
		t.Errorf("total travel time = %d, want 6", route.TotalTravelTime)
	}
}

func TestQuietRoute_StrictParamsEqualDijkstra(t *testing.T) {
	n := twoRouteNetwork(t)
	n.SetNetworkCrowding(map[network.ID]int64{"station_3": 100})
	p := New(n, 0)

	route, err := p.QuietRoute("station_1", "station_4", Params{
		MaxSlowdown:      0,
		MinQuietnessGain: 1,
		KCandidates:      20,
	})
	if err != nil {
		t.Fatalf("QuietRoute failed: %v", err)
	}
	if route.TotalTravelTime != 3 {
		t.Errorf("total travel time = %d, want the Dijkstra result 3", route.TotalTravelTime)
	}
	if len(route.Steps) != 1 || route.Steps[0].LineID != "line_0" {
		t.Errorf("steps = %+v, want one leg on line_0", route.Steps)
	}
}

func TestQuietRoute_NoCrowdingStaysOnFastest(t *testing.T) {
	n := twoRouteNetwork(t)
	p := New(n, 0)
	route, err := p.QuietRoute("station_1", "station_4", Params{
		MaxSlowdown:      1.0,
		MinQuietnessGain: 0.1,
		KCandidates:      20,
	})
	if err != nil {
		t.Fatalf("QuietRoute failed: %v", err)
	}
	if route.TotalTravelTime != 3 {
		t.Errorf("total travel time = %d, want 3", route.TotalTravelTime)
	}
}

func TestQuietRoute_LegInvariants(t *testing.T) {
	n := twoRouteNetwork(t)
	n.SetNetworkCrowding(map[network.ID]int64{"station_3": 100, "station_21": 50})
	p := New(n, 0)

	// 20 to 5 requires a line change somewhere around station 1 or 4.
	route, err := p.QuietRoute("station_20", "station_5", Params{
		MaxSlowdown:      1.0,
		MinQuietnessGain: 0.1,
		KCandidates:      20,
	})
	if err != nil {
		t.Fatalf("QuietRoute failed: %v", err)
	}
	if len(route.Steps) == 0 {
		t.Fatal("want a non-empty itinerary")
	}
	if route.Steps[0].StartStop != "station_20" {
		t.Errorf("first leg starts at %s, want station_20", route.Steps[0].StartStop)
	}
	if route.Steps[len(route.Steps)-1].EndStop != "station_5" {
		t.Errorf("last leg ends at %s, want station_5", route.Steps[len(route.Steps)-1].EndStop)
	}
	var total int64
	for i, leg := range route.Steps {
		if i > 0 && route.Steps[i-1].EndStop != leg.StartStop {
			t.Errorf("leg %d starts at %s, previous ended at %s", i, leg.StartStop, route.Steps[i-1].EndStop)
		}
		total += n.GetRouteTravelTime(leg.LineID, leg.RouteID, leg.StartStop, leg.EndStop)
	}
	if total != route.TotalTravelTime {
		t.Errorf("sum of leg times = %d, total = %d", total, route.TotalTravelTime)
	}
}

func TestQuietRoute_Errors(t *testing.T) {
	n := twoRouteNetwork(t)
	n.AddStation(network.Station{ID: "island"})
	p := New(n, 0)

	if _, err := p.QuietRoute("ghost", "station_4", Params{KCandidates: 1}); !errors.Is(err, ErrStationUnknown) {
		t.Errorf("error = %v, want ErrStationUnknown", err)
	}
	if _, err := p.QuietRoute("station_1", "ghost", Params{KCandidates: 1}); !errors.Is(err, ErrStationUnknown) {
		t.Errorf("error = %v, want ErrStationUnknown", err)
	}
	if _, err := p.QuietRoute("station_1", "island", Params{KCandidates: 1}); !errors.Is(err, ErrNoRouteFound) {
		t.Errorf("error = %v, want ErrNoRouteFound", err)
	}
}

func TestQuietRoute_SameStartAndEnd(t *testing.T) {
	n := twoRouteNetwork(t)
	p := New(n, 0)
	route, err := p.QuietRoute("station_1", "station_1", Params{KCandidates: 1})
	if err != nil {
		t.Fatalf("QuietRoute failed: %v", err)
	}
	if route.TotalTravelTime != 0 || len(route.Steps) != 0 {
		t.Errorf("route = %+v, want empty itinerary", route)
	}
}

func TestQuietRoute_CapacityNormalization(t *testing.T) {
	n := twoRouteNetwork(t)
	// With a small capacity both crowded stations saturate to factor 1 and
	// the detour no longer yields the required gain.
	n.SetNetworkCrowding(map[network.ID]int64{"station_3": 100, "station_21": 50})
	p := New(n, 10)
	route, err := p.QuietRoute("station_1", "station_4", Params{
		MaxSlowdown:      1.0,
		MinQuietnessGain: 0.1,
		KCandidates:      20,
	})
	if err != nil {
		t.Fatalf("QuietRoute failed: %v", err)
	}
	if route.TotalTravelTime != 3 {
		t.Errorf("total travel time = %d, want the fastest path 3", route.TotalTravelTime)
	}
}

func TestTravelRoute_JSONRoundTrip(t *testing.T) {
	route := TravelRoute{
		StartStationID:  "station_20",
		EndStationID:    "station_5",
		TotalTravelTime: 8,
		Steps: []Leg{
			{
				StartStop:         "station_20",
				EndStop:           "station_1",
				LineID:            "line_1",
				RouteID:           "route_1",
				IntermediateStops: []network.ID{},
			},
			{
				StartStop:         "station_1",
				EndStop:           "station_5",
				LineID:            "line_0",
				RouteID:           "route_0",
				IntermediateStops: []network.ID{"station_2", "station_3", "station_4"},
			},
		},
	}
	data, err := json.Marshal(route)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var got TravelRoute
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !reflect.DeepEqual(got, route) {
		t.Errorf("round trip = %+v, want %+v", got, route)
	}
}
