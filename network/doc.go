// Package network models the transport network: stations, lines, routes
// and the directed adjacencies between consecutive stops.
//
// The graph is an arena of station nodes indexed by dense id→index maps.
// Edges store the destination's index together with the owning (line,
// route) indices, so the id graph carries no pointer cycles. A precomputed
// station→routes index makes RoutesServing a constant-time lookup, termini
// included.
//
// Topology is frozen once loaded: stations, lines and routes are only ever
// added, never removed or replaced. Travel times and per-station passenger
// counts mutate during operation; passenger counts may go negative when
// out-events arrive before the matching in-events, which is accepted.
//
// All operations are safe for concurrent use.
package network
