package gtfsrt

import (
	"context"
	"fmt"
	"log"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/theoremus-urban-solutions/quiet-route/network"
)

// occupancyEstimates maps an OccupancyStatus to an absolute passenger count
// estimate for the vehicle's current stop.
var occupancyEstimates = map[gtfsrtpb.VehiclePosition_OccupancyStatus]int64{
	gtfsrtpb.VehiclePosition_EMPTY:                      0,
	gtfsrtpb.VehiclePosition_MANY_SEATS_AVAILABLE:       10,
	gtfsrtpb.VehiclePosition_FEW_SEATS_AVAILABLE:        30,
	gtfsrtpb.VehiclePosition_STANDING_ROOM_ONLY:         60,
	gtfsrtpb.VehiclePosition_CRUSHED_STANDING_ROOM_ONLY: 90,
	gtfsrtpb.VehiclePosition_FULL:                       120,
	gtfsrtpb.VehiclePosition_NOT_ACCEPTING_PASSENGERS:   150,
}

// DecodeOccupancy decodes a VehiclePositions feed and aggregates the
// occupancy estimates of all vehicles by the stop they are currently at.
func DecodeOccupancy(data []byte) (map[network.ID]int64, error) {
	var feed gtfsrtpb.FeedMessage
	if err := proto.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("decoding vehicle positions: %w", err)
	}
	counts := map[network.ID]int64{}
	for _, entity := range feed.GetEntity() {
		vehicle := entity.GetVehicle()
		if vehicle == nil || vehicle.GetStopId() == "" || vehicle.OccupancyStatus == nil {
			continue
		}
		estimate, ok := occupancyEstimates[vehicle.GetOccupancyStatus()]
		if !ok {
			continue
		}
		counts[network.ID(vehicle.GetStopId())] += estimate
	}
	return counts, nil
}

// ApplyFunc receives one crowding batch and returns the station ids that
// were not found in the network.
type ApplyFunc func(counts map[network.ID]int64) []network.ID

// OccupancyPoller periodically fetches a VehiclePositions feed and applies
// the derived crowding batch.
type OccupancyPoller struct {
	client   *Client
	url      string
	interval time.Duration
	apply    ApplyFunc
}

// NewOccupancyPoller builds a poller for the given feed URL.
func NewOccupancyPoller(url string, interval time.Duration, apply ApplyFunc) *OccupancyPoller {
	return &OccupancyPoller{
		client:   NewClient(interval),
		url:      url,
		interval: interval,
		apply:    apply,
	}
}

// Run polls the feed until ctx is cancelled. Fetch and decode failures are
// logged and the poller keeps going; they never terminate the service.
func (p *OccupancyPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

func (p *OccupancyPoller) poll() {
	data, err := p.client.Fetch(p.url)
	if err != nil {
		log.Printf("gtfsrt: fetch failed: %v", err)
		return
	}
	counts, err := DecodeOccupancy(data)
	if err != nil {
		log.Printf("gtfsrt: %v", err)
		return
	}
	if len(counts) == 0 {
		return
	}
	for _, station := range p.apply(counts) {
		log.Printf("gtfsrt: occupancy for unknown station %q dropped", station)
	}
}
