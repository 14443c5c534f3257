package network

import (
	"encoding/json"
	"fmt"
	"log"
)

// Layout is the network-layout document. Stations load first, then lines
// with their routes, then travel times; forward references across phases
// fail the load.
type Layout struct {
	Stations    []Station    `json:"stations"`
	Lines       []Line       `json:"lines"`
	TravelTimes []TravelTime `json:"travel_times"`
}

// TravelTime is one symmetric adjacency time entry.
type TravelTime struct {
	StartStationID ID    `json:"start_station_id"`
	EndStationID   ID    `json:"end_station_id"`
	TravelTime     int64 `json:"travel_time"`
}

// ParseLayout decodes a network-layout document.
func ParseLayout(data []byte) (Layout, error) {
	var layout Layout
	if err := json.Unmarshal(data, &layout); err != nil {
		return Layout{}, fmt.Errorf("parsing layout: %w", err)
	}
	return layout, nil
}

// Load populates the network from a layout document. Phases are ordered:
// stations, lines, travel times. Any out-of-order reference fails fast and
// returns an error. Adjacencies missing from travel_times keep a zero time;
// that is not an error.
func (n *TransportNetwork) Load(layout Layout) error {
	for _, station := range layout.Stations {
		if station.ID == "" {
			return fmt.Errorf("station without station_id")
		}
		if !n.AddStation(station) {
			return fmt.Errorf("duplicate station %q", station.ID)
		}
	}
	for _, line := range layout.Lines {
		if line.ID == "" {
			return fmt.Errorf("line without line_id")
		}
		if !n.AddLine(line) {
			return fmt.Errorf("could not add line %q", line.ID)
		}
	}
	for _, tt := range layout.TravelTimes {
		if tt.TravelTime < 0 {
			return fmt.Errorf("negative travel time between %q and %q", tt.StartStationID, tt.EndStationID)
		}
		if !n.SetTravelTime(tt.StartStationID, tt.EndStationID, tt.TravelTime) {
			// A travel-time entry for a non-adjacent pair carries no edge to
			// update; keep loading.
			log.Printf("network: travel time for non-adjacent pair %q-%q ignored", tt.StartStationID, tt.EndStationID)
		}
	}
	return nil
}

// LoadFromJSON parses and loads a network-layout document in one step.
func (n *TransportNetwork) LoadFromJSON(data []byte) error {
	layout, err := ParseLayout(data)
	if err != nil {
		return err
	}
	return n.Load(layout)
}
