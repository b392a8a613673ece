package tracking

import (
	"time"

	"runstr-engine/internal/track"
)

type StartRequest struct {
	ActivityType    string  `json:"activity_type"`
	PresetDistanceM float64 `json:"preset_distance_m,omitempty"`
}

// Fix is one raw sensor delivery as it arrives over the wire. Altitude and
// speed are optional; their absence is meaningful to the filters.
type Fix struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	AltitudeM *float64  `json:"altitude_m,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	AccuracyM float64   `json:"accuracy_m,omitempty"`
	SpeedMps  *float64  `json:"speed_mps,omitempty"`
}

type IngestRequest struct {
	Fixes []Fix `json:"fixes"`
}

func (f Fix) toPoint() track.GPSPoint {
	p := track.GPSPoint{
		Lat:       f.Lat,
		Lng:       f.Lng,
		Timestamp: f.Timestamp,
		AccuracyM: f.AccuracyM,
	}
	if f.AltitudeM != nil {
		p.AltitudeM = *f.AltitudeM
		p.HasAlt = true
	}
	if f.SpeedMps != nil {
		p.SpeedMps = *f.SpeedMps
		p.HasSpeed = true
	}
	return p
}
