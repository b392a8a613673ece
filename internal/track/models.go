package track

import "time"

type ActivityType string

const (
	ActivityRunning ActivityType = "running"
	ActivityWalking ActivityType = "walking"
	ActivityCycling ActivityType = "cycling"
)

// Valid reports whether the activity type is one the engine knows how to tune for.
func (a ActivityType) Valid() bool {
	switch a {
	case ActivityRunning, ActivityWalking, ActivityCycling:
		return true
	}
	return false
}

type Session struct {
	ID              string       `json:"id"`
	ActivityType    ActivityType `json:"activity_type"`
	StartedAt       time.Time    `json:"started_at"`
	EndedAt         time.Time    `json:"ended_at,omitempty"`
	PresetDistanceM float64      `json:"preset_distance_m,omitempty"`
	PauseCount      int          `json:"pause_count"`
}

// GPSPoint is a single position fix. Ordering is by Timestamp; a session's
// point sequence is append-only while tracking.
type GPSPoint struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	AltitudeM float64   `json:"altitude_m,omitempty"`
	HasAlt    bool      `json:"has_alt,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	AccuracyM float64   `json:"accuracy_m,omitempty"`
	SpeedMps  float64   `json:"speed_mps,omitempty"`
	HasSpeed  bool      `json:"has_speed,omitempty"`
}

// LoggedPoint is a point as it sits in the durable log. Warmup points are
// kept for route display but excluded from distance accounting.
type LoggedPoint struct {
	GPSPoint
	Warmup bool `json:"warmup,omitempty"`
}

// SessionState is the persisted record both execution contexts agree on.
// Absence of this record means "no active session": any context reading
// the store must then ignore incoming sensor data.
type SessionState struct {
	SessionID       string       `json:"session_id"`
	ActivityType    ActivityType `json:"activity_type"`
	IsTracking      bool         `json:"is_tracking"`
	IsPaused        bool         `json:"is_paused"`
	StartedAt       time.Time    `json:"started_at"`
	PauseCount      int          `json:"pause_count"`
	PresetDistanceM float64      `json:"preset_distance_m,omitempty"`

	// DurationTracker fields, so elapsed time survives relaunch.
	TotalPausedMs int64     `json:"total_paused_ms"`
	PauseStartAt  time.Time `json:"pause_start_at,omitempty"`

	// Pipeline anchor shared across contexts: how many warm-up points are
	// still owed, and the last accepted fix filters are measured against.
	WarmupLeft int       `json:"warmup_left"`
	LastLat    float64   `json:"last_lat,omitempty"`
	LastLng    float64   `json:"last_lng,omitempty"`
	LastAltM   float64   `json:"last_alt_m,omitempty"`
	LastHasAlt bool      `json:"last_has_alt,omitempty"`
	LastFixAt  time.Time `json:"last_fix_at,omitempty"`
	HasLastFix bool      `json:"has_last_fix,omitempty"`
}

// Split is one completed kilometer of the session.
type Split struct {
	Km       int           `json:"km"`
	Duration time.Duration `json:"duration"`
}

// FinalSessionResult is produced exactly once, at stop, and handed to
// external consumers. The engine keeps nothing after producing it.
type FinalSessionResult struct {
	SessionID       string        `json:"session_id"`
	ActivityType    ActivityType  `json:"activity_type"`
	StartedAt       time.Time     `json:"started_at"`
	EndedAt         time.Time     `json:"ended_at"`
	DistanceM       float64       `json:"distance_m"`
	Duration        time.Duration `json:"duration"`
	PausedDuration  time.Duration `json:"paused_duration"`
	PauseCount      int           `json:"pause_count"`
	ElevationGainM  float64       `json:"elevation_gain_m"`
	Points          []GPSPoint    `json:"points"`
	Splits          []Split       `json:"splits,omitempty"`
	PresetDistanceM float64       `json:"preset_distance_m,omitempty"`
}
