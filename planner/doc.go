// Package planner computes quiet-route itineraries over a transport
// network.
//
// The planner first runs a plain Dijkstra on travel time to find the
// fastest path, then enumerates alternatives with Yen's k-shortest-paths
// algorithm bounded by the allowed slowdown. Candidates are scored by their
// total crowding (the sum of the crowding factor over interior stops); the
// quietest candidate within the time budget that improves on the fastest
// path by at least the requested quietness gain wins, with deterministic
// tie-breaks: fewer legs, then line ids, then route ids. If no candidate
// qualifies, the fastest path is returned.
package planner
