package pipeline

import "runstr-engine/internal/track"

// Platform selects a threshold set. Loose is for hardware with worse
// sensor accuracy; its gates are wider across the board.
type Platform string

const (
	PlatformStrict Platform = "strict"
	PlatformLoose  Platform = "loose"
)

// Profile holds the per-activity filter thresholds.
type Profile struct {
	MaxAccuracyM float64
	MaxSpeedMps  float64
	MaxTeleportM float64
	MinDistanceM float64
}

var strictProfiles = map[track.ActivityType]Profile{
	track.ActivityRunning: {MaxAccuracyM: 50, MaxSpeedMps: 12, MaxTeleportM: 100, MinDistanceM: 1},
	track.ActivityWalking: {MaxAccuracyM: 50, MaxSpeedMps: 5, MaxTeleportM: 50, MinDistanceM: 0.5},
	track.ActivityCycling: {MaxAccuracyM: 60, MaxSpeedMps: 25, MaxTeleportM: 200, MinDistanceM: 2},
}

var looseProfiles = map[track.ActivityType]Profile{
	track.ActivityRunning: {MaxAccuracyM: 65, MaxSpeedMps: 13, MaxTeleportM: 150, MinDistanceM: 0.5},
	track.ActivityWalking: {MaxAccuracyM: 65, MaxSpeedMps: 6, MaxTeleportM: 80, MinDistanceM: 0.3},
	track.ActivityCycling: {MaxAccuracyM: 75, MaxSpeedMps: 27, MaxTeleportM: 250, MinDistanceM: 1},
}

// ProfileFor returns the filter thresholds for an activity on a platform.
// Unknown activities fall back to the running profile.
func ProfileFor(platform Platform, activity track.ActivityType) Profile {
	set := strictProfiles
	if platform == PlatformLoose {
		set = looseProfiles
	}
	if p, ok := set[activity]; ok {
		return p
	}
	return set[track.ActivityRunning]
}
