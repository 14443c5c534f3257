package planner

import (
	"fmt"

	"github.com/theoremus-urban-solutions/quiet-route/network"
)

const quietnessEpsilon = 1e-9

// Planner computes quiet-route itineraries over a network.
type Planner struct {
	net      Network
	capacity float64
}

// New builds a planner. capacity is the nominal per-station capacity used
// to normalize passenger counts into the [0, 1] crowding factor; with a
// non-positive capacity the raw count (floored at zero) is used as the
// crowding score directly.
func New(net Network, capacity float64) *Planner {
	return &Planner{net: net, capacity: capacity}
}

// crowdingFactor is a monotone, bounded-below function of the passenger
// count: zero iff the count is zero or negative, strictly non-decreasing
// above that.
func (p *Planner) crowdingFactor(station network.ID) float64 {
	count, err := p.net.GetPassengerCount(station)
	if err != nil || count <= 0 {
		return 0
	}
	if p.capacity > 0 {
		f := float64(count) / p.capacity
		if f > 1 {
			return 1
		}
		return f
	}
	return float64(count)
}

// crowdCost sums the crowding factor over the interior stops of a path.
func (p *Planner) crowdCost(stations []network.ID) float64 {
	var cost float64
	for i := 1; i+1 < len(stations); i++ {
		cost += p.crowdingFactor(stations[i])
	}
	return cost
}

// QuietRoute returns an itinerary from start to end that trades at most
// MaxSlowdown extra travel time for at least MinQuietnessGain less
// crowding. When no alternative qualifies, the fastest path is returned.
func (p *Planner) QuietRoute(start, end network.ID, params Params) (TravelRoute, error) {
	if !p.net.HasStation(start) {
		return TravelRoute{}, fmt.Errorf("%w: %q", ErrStationUnknown, start)
	}
	if !p.net.HasStation(end) {
		return TravelRoute{}, fmt.Errorf("%w: %q", ErrStationUnknown, end)
	}
	if params.KCandidates < 1 {
		params.KCandidates = 1
	}
	if start == end {
		return TravelRoute{StartStationID: start, EndStationID: end, Steps: []Leg{}}, nil
	}

	fastest, tFast, ok := dijkstra(p.net, start, end, nil, nil)
	if !ok {
		return TravelRoute{}, fmt.Errorf("%w: %q to %q", ErrNoRouteFound, start, end)
	}
	budget := int64(float64(tFast) * (1 + params.MaxSlowdown))
	cFast := p.crowdCost(fastest)

	chosen := weightedPath{stations: fastest, total: tFast}
	if params.KCandidates > 1 {
		candidates := yen(p.net, start, end, params.KCandidates, budget)
		if best, ok := p.selectQuietest(candidates, cFast, params.MinQuietnessGain); ok {
			chosen = best
		}
	}

	return TravelRoute{
		StartStationID:  start,
		EndStationID:    end,
		TotalTravelTime: chosen.total,
		Steps:           p.assembleLegs(chosen.stations),
	}, nil
}

// selectQuietest picks the candidate with the lowest crowd cost that
// delivers the required quietness gain over the fastest path. Ties fall to
// the itinerary with fewer legs, then to lexicographic line ids, then
// route ids.
func (p *Planner) selectQuietest(candidates []weightedPath, cFast, minGain float64) (weightedPath, bool) {
	denom := cFast
	if denom < quietnessEpsilon {
		denom = quietnessEpsilon
	}
	var (
		best     weightedPath
		bestCost float64
		bestLegs []Leg
		found    bool
	)
	for _, cand := range candidates {
		cost := p.crowdCost(cand.stations)
		if (cFast-cost)/denom < minGain {
			continue
		}
		if !found {
			best, bestCost, bestLegs, found = cand, cost, nil, true
			continue
		}
		if cost > bestCost+quietnessEpsilon {
			continue
		}
		if cost < bestCost-quietnessEpsilon {
			best, bestCost, bestLegs = cand, cost, nil
			continue
		}
		// Equal crowd cost: break the tie on assembled itineraries.
		if bestLegs == nil {
			bestLegs = p.assembleLegs(best.stations)
		}
		candLegs := p.assembleLegs(cand.stations)
		if preferLegs(candLegs, bestLegs) {
			best, bestCost, bestLegs = cand, cost, candLegs
		}
	}
	return best, found
}

// preferLegs reports whether itinerary a beats b under the deterministic
// tie-breaks: fewer legs, then line ids, then route ids.
func preferLegs(a, b []Leg) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	for i := range a {
		if a[i].LineID != b[i].LineID {
			return a[i].LineID < b[i].LineID
		}
	}
	for i := range a {
		if a[i].RouteID != b[i].RouteID {
			return a[i].RouteID < b[i].RouteID
		}
	}
	return false
}

// assembleLegs collapses consecutive hops served by one (line, route) pair
// into single legs. The greedy maximal-run assignment minimizes the number
// of legs; when a leg closes, the lexicographically smallest (line, route)
// still covering the whole run is chosen.
func (p *Planner) assembleLegs(stations []network.ID) []Leg {
	if len(stations) < 2 {
		return []Leg{}
	}
	hopRoutes := make([][]network.RouteRef, len(stations)-1)
	for i := 0; i+1 < len(stations); i++ {
		for _, adj := range p.net.OutEdges(stations[i]) {
			if adj.To == stations[i+1] {
				hopRoutes[i] = append(hopRoutes[i], network.RouteRef{LineID: adj.LineID, RouteID: adj.RouteID})
			}
		}
	}

	var legs []Leg
	legStart := 0
	current := hopRoutes[0]
	for i := 1; i < len(hopRoutes); i++ {
		next := intersectRefs(current, hopRoutes[i])
		if len(next) == 0 {
			legs = append(legs, buildLeg(stations, legStart, i, pickRef(current)))
			legStart = i
			current = hopRoutes[i]
			continue
		}
		current = next
	}
	legs = append(legs, buildLeg(stations, legStart, len(hopRoutes), pickRef(current)))
	return legs
}

func intersectRefs(a, b []network.RouteRef) []network.RouteRef {
	var out []network.RouteRef
	for _, ra := range a {
		for _, rb := range b {
			if ra == rb {
				out = append(out, ra)
				break
			}
		}
	}
	return out
}

// pickRef chooses the lexicographically smallest (line, route) pair.
func pickRef(refs []network.RouteRef) network.RouteRef {
	best := refs[0]
	for _, r := range refs[1:] {
		if r.LineID < best.LineID ||
			(r.LineID == best.LineID && r.RouteID < best.RouteID) {
			best = r
		}
	}
	return best
}

func buildLeg(stations []network.ID, startHop, endHop int, ref network.RouteRef) Leg {
	leg := Leg{
		StartStop:         stations[startHop],
		EndStop:           stations[endHop],
		LineID:            ref.LineID,
		RouteID:           ref.RouteID,
		IntermediateStops: []network.ID{},
	}
	for i := startHop + 1; i < endHop; i++ {
		leg.IntermediateStops = append(leg.IntermediateStops, stations[i])
	}
	return leg
}
