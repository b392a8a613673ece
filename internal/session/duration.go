package session

import (
	"time"

	"runstr-engine/internal/track"
)

// DurationTracker is pure timestamp arithmetic. No timer drives it: elapsed
// time is recomputed from persisted timestamps, which is what keeps it
// correct across process suspension and relaunch.
type DurationTracker struct {
	start       time.Time
	totalPaused time.Duration
	pauseStart  time.Time
}

func (d *DurationTracker) Start(now time.Time) {
	d.start = now
	d.totalPaused = 0
	d.pauseStart = time.Time{}
}

func (d *DurationTracker) Pause(now time.Time) {
	if !d.pauseStart.IsZero() {
		return
	}
	d.pauseStart = now
}

func (d *DurationTracker) Resume(now time.Time) {
	if d.pauseStart.IsZero() {
		return
	}
	d.totalPaused += now.Sub(d.pauseStart)
	d.pauseStart = time.Time{}
}

// Elapsed is now-start-totalPaused, frozen at the pause timestamp while paused.
func (d *DurationTracker) Elapsed(now time.Time) time.Duration {
	if d.start.IsZero() {
		return 0
	}
	if !d.pauseStart.IsZero() {
		return d.pauseStart.Sub(d.start) - d.totalPaused
	}
	return now.Sub(d.start) - d.totalPaused
}

// Paused returns the total paused time, including the in-progress pause.
func (d *DurationTracker) Paused(now time.Time) time.Duration {
	if !d.pauseStart.IsZero() {
		return d.totalPaused + now.Sub(d.pauseStart)
	}
	return d.totalPaused
}

func (d *DurationTracker) ApplyToSession(s *track.SessionState) {
	s.StartedAt = d.start
	s.TotalPausedMs = d.totalPaused.Milliseconds()
	s.PauseStartAt = d.pauseStart
}

func durationFromSession(s track.SessionState) DurationTracker {
	return DurationTracker{
		start:       s.StartedAt,
		totalPaused: time.Duration(s.TotalPausedMs) * time.Millisecond,
		pauseStart:  s.PauseStartAt,
	}
}
