// Package gtfsrt derives station crowding estimates from a GTFS-Realtime
// VehiclePositions feed.
//
// The OccupancyPoller fetches the protobuf feed on an interval, maps each
// vehicle's OccupancyStatus at its current stop to an absolute passenger
// count estimate and hands the batch to the network's bulk crowding
// override. It is an optional supplement to the STOMP passenger event
// ingest; an empty feed URL disables it.
package gtfsrt
