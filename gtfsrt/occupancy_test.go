package gtfsrt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/theoremus-urban-solutions/quiet-route/network"
)

func vehiclePositionsFeed(t *testing.T) []byte {
	t.Helper()
	feed := &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
		},
		Entity: []*gtfsrtpb.FeedEntity{
			{
				Id: proto.String("v1"),
				Vehicle: &gtfsrtpb.VehiclePosition{
					StopId:          proto.String("station_3"),
					OccupancyStatus: gtfsrtpb.VehiclePosition_FULL.Enum(),
				},
			},
			{
				Id: proto.String("v2"),
				Vehicle: &gtfsrtpb.VehiclePosition{
					StopId:          proto.String("station_3"),
					OccupancyStatus: gtfsrtpb.VehiclePosition_FEW_SEATS_AVAILABLE.Enum(),
				},
			},
			{
				Id: proto.String("v3"),
				Vehicle: &gtfsrtpb.VehiclePosition{
					StopId:          proto.String("station_21"),
					OccupancyStatus: gtfsrtpb.VehiclePosition_STANDING_ROOM_ONLY.Enum(),
				},
			},
			{
				// No stop: skipped.
				Id: proto.String("v4"),
				Vehicle: &gtfsrtpb.VehiclePosition{
					OccupancyStatus: gtfsrtpb.VehiclePosition_FULL.Enum(),
				},
			},
			{
				// No occupancy: skipped.
				Id: proto.String("v5"),
				Vehicle: &gtfsrtpb.VehiclePosition{
					StopId: proto.String("station_4"),
				},
			},
		},
	}
	data, err := proto.Marshal(feed)
	if err != nil {
		t.Fatalf("marshaling feed: %v", err)
	}
	return data
}

func TestDecodeOccupancy(t *testing.T) {
	counts, err := DecodeOccupancy(vehiclePositionsFeed(t))
	if err != nil {
		t.Fatalf("DecodeOccupancy failed: %v", err)
	}
	// Two vehicles at station_3 aggregate.
	if counts["station_3"] != 150 {
		t.Errorf("station_3 = %d, want 150", counts["station_3"])
	}
	if counts["station_21"] != 60 {
		t.Errorf("station_21 = %d, want 60", counts["station_21"])
	}
	if _, ok := counts["station_4"]; ok {
		t.Error("vehicle without occupancy must be skipped")
	}
	if len(counts) != 2 {
		t.Errorf("got %d stations, want 2: %v", len(counts), counts)
	}
}

func TestDecodeOccupancy_BadPayload(t *testing.T) {
	if _, err := DecodeOccupancy([]byte("not a protobuf")); err == nil {
		t.Error("want error for malformed payload")
	}
}

func TestOccupancyPoller_AppliesBatches(t *testing.T) {
	payload := vehiclePositionsFeed(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	var mu sync.Mutex
	var got map[network.ID]int64
	applied := make(chan struct{}, 1)
	poller := NewOccupancyPoller(srv.URL, 10*time.Millisecond, func(counts map[network.ID]int64) []network.ID {
		mu.Lock()
		got = counts
		mu.Unlock()
		select {
		case applied <- struct{}{}:
		default:
		}
		return []network.ID{"station_21"}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	select {
	case <-applied:
	case <-time.After(5 * time.Second):
		t.Fatal("poller never applied a batch")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	if got["station_3"] != 150 {
		t.Errorf("applied station_3 = %d, want 150", got["station_3"])
	}
}
