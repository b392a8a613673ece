// Package pipeline turns raw position fixes into accepted track points.
//
// The filter chain is stateless between calls: everything a stage needs to
// compare against (the warm-up countdown and the last accepted fix) lives in
// State, which callers persist alongside the session record. Two execution
// contexts running the same chain against the same persisted State make the
// same decisions, so duplicate or re-ordered deliveries are harmless.
package pipeline

import (
	"time"

	"runstr-engine/internal/shared/geo"
	"runstr-engine/internal/track"
)

const (
	// points cached but excluded from distance after (re)start or recovery
	WarmupPoints = 3

	// fixes closer together than this are debounced
	minInterval = time.Second

	// a silence longer than this re-enters warm-up when signal returns
	recoveryGap = 10 * time.Second
)

// Verdict is the outcome of running one fix through the chain.
type Verdict int

const (
	// Accepted: the fix counts toward distance and is persisted.
	Accepted Verdict = iota
	// WarmupCached: the fix is persisted for route display only.
	WarmupCached
	// Rejected: the fix is dropped. Rejection is normal filtering, not an error.
	Rejected
)

// Rejection reasons, for logging only.
const (
	ReasonAccuracy = "accuracy"
	ReasonDebounce = "debounce"
	ReasonJitter   = "jitter"
	ReasonTeleport = "teleport"
	ReasonSpeed    = "speed"
)

// State is the cross-context filter anchor.
type State struct {
	WarmupLeft int
	Last       track.GPSPoint
	HasLast    bool
}

// NewState returns the state a freshly started session begins with.
func NewState() State {
	return State{WarmupLeft: WarmupPoints}
}

// StateFromSession rebuilds filter state from a persisted session record.
func StateFromSession(s track.SessionState) State {
	st := State{WarmupLeft: s.WarmupLeft, HasLast: s.HasLastFix}
	if s.HasLastFix {
		st.Last = track.GPSPoint{
			Lat:       s.LastLat,
			Lng:       s.LastLng,
			AltitudeM: s.LastAltM,
			HasAlt:    s.LastHasAlt,
			Timestamp: s.LastFixAt,
		}
	}
	return st
}

// ApplyToSession writes the filter state back into a session record.
func (st State) ApplyToSession(s *track.SessionState) {
	s.WarmupLeft = st.WarmupLeft
	s.HasLastFix = st.HasLast
	if st.HasLast {
		s.LastLat = st.Last.Lat
		s.LastLng = st.Last.Lng
		s.LastAltM = st.Last.AltitudeM
		s.LastHasAlt = st.Last.HasAlt
		s.LastFixAt = st.Last.Timestamp
	}
}

// Evaluate runs one raw fix through the chain and returns the verdict, the
// rejection reason when rejected, and the updated state.
func Evaluate(p Profile, st State, fix track.GPSPoint) (Verdict, string, State) {
	// 1. accuracy gate
	if fix.AccuracyM > p.MaxAccuracyM {
		return Rejected, ReasonAccuracy, st
	}

	// signal reacquired after a long silence: the first movement would be
	// one huge jump, so re-enter warm-up instead of counting it
	if st.HasLast && fix.Timestamp.Sub(st.Last.Timestamp) > recoveryGap {
		st.WarmupLeft = WarmupPoints
	}

	// 2. warm-up buffer: cached for route display, excluded from distance
	if st.WarmupLeft > 0 {
		st.WarmupLeft--
		st.Last = fix
		st.HasLast = true
		return WarmupCached, "", st
	}

	// 3. minimum inter-point time; also drops exact redeliveries
	if fix.Timestamp.Sub(st.Last.Timestamp) < minInterval {
		return Rejected, ReasonDebounce, st
	}

	moved := geo.Haversine(st.Last.Lat, st.Last.Lng, fix.Lat, fix.Lng)

	// 4. jitter: below the profile floor is stationary noise
	if moved < p.MinDistanceM {
		return Rejected, ReasonJitter, st
	}

	// 5. teleport: an impossible jump is a glitch
	if moved > p.MaxTeleportM {
		return Rejected, ReasonTeleport, st
	}

	// 6. speed: computed speed, or the reported one when present
	speed := moved / fix.Timestamp.Sub(st.Last.Timestamp).Seconds()
	if fix.HasSpeed && fix.SpeedMps > speed {
		speed = fix.SpeedMps
	}
	if speed > p.MaxSpeedMps {
		return Rejected, ReasonSpeed, st
	}

	st.Last = fix
	return Accepted, "", st
}
