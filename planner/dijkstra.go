package planner

import (
	"container/heap"

	"github.com/theoremus-urban-solutions/quiet-route/network"
)

// edgeKey identifies one directed adjacency for Yen's spur bans.
type edgeKey struct {
	from network.ID
	to   network.ID
}

type queueItem struct {
	station network.ID
	dist    int64
}

// distQueue is a min-heap on (dist, station id). The id tie-break keeps the
// search deterministic when several stations share a distance.
type distQueue []queueItem

func (q distQueue) Len() int { return len(q) }
func (q distQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].station < q[j].station
}
func (q distQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *distQueue) Push(x any)        { *q = append(*q, x.(queueItem)) }
func (q *distQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// dijkstra finds the shortest path from start to end on travel time alone,
// ignoring banned edges and stations. It returns the station sequence and
// the total time; ok is false when end is unreachable.
func dijkstra(net Network, start, end network.ID, bannedEdges map[edgeKey]bool, bannedStations map[network.ID]bool) (path []network.ID, total int64, ok bool) {
	dist := map[network.ID]int64{start: 0}
	prev := map[network.ID]network.ID{}
	done := map[network.ID]bool{}

	q := &distQueue{{station: start}}
	for q.Len() > 0 {
		cur := heap.Pop(q).(queueItem)
		if done[cur.station] {
			continue
		}
		done[cur.station] = true
		if cur.station == end {
			break
		}
		for _, adj := range net.OutEdges(cur.station) {
			if bannedStations[adj.To] || bannedEdges[edgeKey{from: cur.station, to: adj.To}] {
				continue
			}
			next := cur.dist + adj.TravelTime
			if d, seen := dist[adj.To]; !seen || next < d {
				dist[adj.To] = next
				prev[adj.To] = cur.station
				heap.Push(q, queueItem{station: adj.To, dist: next})
			}
		}
	}

	if !done[end] {
		return nil, 0, false
	}
	for at := end; ; at = prev[at] {
		path = append(path, at)
		if at == start {
			break
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, dist[end], true
}
