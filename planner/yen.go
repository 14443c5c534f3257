package planner

import (
	"sort"
	"strings"

	"github.com/theoremus-urban-solutions/quiet-route/network"
)

type weightedPath struct {
	stations []network.ID
	total    int64
}

func pathKey(stations []network.ID) string {
	parts := make([]string, len(stations))
	for i, s := range stations {
		parts[i] = string(s)
	}
	return strings.Join(parts, "\x1f")
}

// yen enumerates up to k shortest loopless paths from start to end whose
// total travel time stays within budget, in non-decreasing cost order with
// a lexicographic tie-break for determinism. The first entry is the
// fastest path.
func yen(net Network, start, end network.ID, k int, budget int64) []weightedPath {
	base, total, ok := dijkstra(net, start, end, nil, nil)
	if !ok || total > budget {
		return nil
	}
	accepted := []weightedPath{{stations: base, total: total}}
	seen := map[string]bool{pathKey(base): true}
	var candidates []weightedPath

	for len(accepted) < k {
		last := accepted[len(accepted)-1]
		for i := 0; i < len(last.stations)-1; i++ {
			spurStation := last.stations[i]
			rootPath := last.stations[:i+1]

			// Ban edges that would reproduce an already-accepted path with
			// this root, and stations of the root so the spur stays
			// loopless.
			bannedEdges := map[edgeKey]bool{}
			for _, p := range accepted {
				if len(p.stations) > i && samePath(p.stations[:i+1], rootPath) {
					bannedEdges[edgeKey{from: p.stations[i], to: p.stations[i+1]}] = true
				}
			}
			bannedStations := map[network.ID]bool{}
			for _, s := range rootPath[:len(rootPath)-1] {
				bannedStations[s] = true
			}

			spur, _, ok := dijkstra(net, spurStation, end, bannedEdges, bannedStations)
			if !ok {
				continue
			}
			full := append(append([]network.ID{}, rootPath...), spur[1:]...)
			key := pathKey(full)
			if seen[key] {
				continue
			}
			seen[key] = true
			cost := pathTime(net, full)
			if cost > budget {
				continue
			}
			candidates = append(candidates, weightedPath{stations: full, total: cost})
		}
		if len(candidates) == 0 {
			break
		}
		sort.Slice(candidates, func(a, b int) bool {
			if candidates[a].total != candidates[b].total {
				return candidates[a].total < candidates[b].total
			}
			return pathKey(candidates[a].stations) < pathKey(candidates[b].stations)
		})
		accepted = append(accepted, candidates[0])
		candidates = candidates[1:]
	}
	return accepted
}

func samePath(a, b []network.ID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// pathTime sums the adjacency times along a station sequence.
func pathTime(net Network, stations []network.ID) int64 {
	var total int64
	for i := 0; i+1 < len(stations); i++ {
		for _, adj := range net.OutEdges(stations[i]) {
			if adj.To == stations[i+1] {
				total += adj.TravelTime
				break
			}
		}
	}
	return total
}
