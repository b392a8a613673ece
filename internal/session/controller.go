// Package session owns the authoritative in-memory view of the single
// active tracking session and composes the pipeline, store, coalescer,
// watchdog and sensor provider behind one façade.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"runstr-engine/internal/archive"
	"runstr-engine/internal/bridge"
	"runstr-engine/internal/coalesce"
	"runstr-engine/internal/pipeline"
	"runstr-engine/internal/sensor"
	"runstr-engine/internal/shared/geo"
	"runstr-engine/internal/store"
	"runstr-engine/internal/track"
	"runstr-engine/internal/watchdog"
)

// Status is the session lifecycle state machine:
// idle -> starting -> active <-> paused -> stopping -> idle.
type Status int

const (
	StatusIdle Status = iota
	StatusStarting
	StatusActive
	StatusPaused
	StatusStopping
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusStarting:
		return "starting"
	case StatusActive:
		return "active"
	case StatusPaused:
		return "paused"
	case StatusStopping:
		return "stopping"
	}
	return "unknown"
}

var (
	ErrNoSession    = errors.New("session: no active session")
	ErrNotPausable  = errors.New("session: not in a pausable state")
	ErrNotResumable = errors.New("session: not paused")
)

// Snapshot is the synchronous, in-memory view handed to UI polling. It never
// touches the persisted store.
type Snapshot struct {
	SessionID       string             `json:"session_id"`
	ActivityType    track.ActivityType `json:"activity_type"`
	Status          string             `json:"status"`
	StartedAt       time.Time          `json:"started_at"`
	DistanceM       float64            `json:"distance_m"`
	Duration        time.Duration      `json:"duration"`
	PausedDuration  time.Duration      `json:"paused_duration"`
	PauseCount      int                `json:"pause_count"`
	PointCount      int                `json:"point_count"`
	PresetDistanceM float64            `json:"preset_distance_m,omitempty"`
	SensorState     string             `json:"sensor_state"`
}

// AutoStopFunc is invoked once when the preset distance is reached.
type AutoStopFunc func(distanceM float64)

type Config struct {
	Platform   pipeline.Platform
	Watchdog   watchdog.Config
	Sensor     sensor.Options
	FlushWait  time.Duration // bound on the stop() flush
	FlushEvery time.Duration
	FlushAt    int
}

type Controller struct {
	store    *store.Store
	provider sensor.Provider
	archive  *archive.Service
	cfg      Config

	coalescer *coalesce.Coalescer
	bridge    *bridge.Bridge
	watchdog  *watchdog.Monitor

	mu            sync.Mutex
	status        Status
	sess          track.Session
	tracker       DurationTracker
	points        []track.GPSPoint // accepted, in delivery order
	distanceM     float64
	handle        sensor.Handle
	hasHandle     bool
	autoStop      AutoStopFunc
	autoStopFired bool
	cancelRun     context.CancelFunc
}

// New wires a controller. The archive is optional; everything else is not.
func New(st *store.Store, provider sensor.Provider, arch *archive.Service, cfg Config) *Controller {
	if cfg.FlushWait <= 0 {
		cfg.FlushWait = 5 * time.Second
	}
	c := &Controller{
		store:     st,
		provider:  provider,
		archive:   arch,
		cfg:       cfg,
		coalescer: coalesce.New(st, cfg.FlushEvery, cfg.FlushAt),
	}
	c.bridge = bridge.New(st, c.coalescer, cfg.Platform)
	c.bridge.SetSink(c)
	c.watchdog = watchdog.New(st, cfg.Watchdog, c.restartSensor, nil)
	return c
}

// Bridge exposes the background delivery handler for the ingest boundary.
func (c *Controller) Bridge() *bridge.Bridge {
	return c.bridge
}

// SetNotice registers the user-visible notice sink for watchdog failures.
func (c *Controller) SetNotice(fn watchdog.NoticeFunc) {
	c.watchdog = watchdog.New(c.store, c.cfg.Watchdog, c.restartSensor, fn)
}

// Start begins a session. It returns before the sensor is acquired: the
// duration clock is already running in the starting state, so a later
// acquisition failure never stalls the stopwatch.
func (c *Controller) Start(ctx context.Context, activity track.ActivityType, presetM float64) bool {
	if !activity.Valid() {
		return false
	}

	c.mu.Lock()
	if c.status != StatusIdle {
		c.mu.Unlock()
		return false
	}

	now := time.Now()
	c.resetLocked()
	c.sess = track.Session{
		ID:              uuid.NewString(),
		ActivityType:    activity,
		StartedAt:       now,
		PresetDistanceM: presetM,
	}
	c.tracker.Start(now)
	c.status = StatusStarting

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancelRun = cancel
	c.mu.Unlock()

	if err := c.persistState(ctx); err != nil {
		log.Printf("session: initial state write failed: %v", err)
	}

	go c.coalescer.Run(runCtx)
	c.watchdog.Arm(runCtx)

	go c.acquireSensor(runCtx)
	return true
}

func (c *Controller) acquireSensor(ctx context.Context) {
	handle, err := c.provider.Subscribe(ctx, c.cfg.Sensor, c.bridge.HandleDelivery)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusStarting {
		// session moved on while we were acquiring
		if err == nil {
			_ = c.provider.Unsubscribe(handle)
		}
		return
	}
	if err != nil {
		// non-fatal: the stopwatch keeps running, the watchdog keeps retrying
		log.Printf("session: sensor acquisition failed: %v", err)
		c.status = StatusActive
		return
	}
	c.handle = handle
	c.hasHandle = true
	c.status = StatusActive
}

func (c *Controller) restartSensor(ctx context.Context) error {
	c.mu.Lock()
	if c.hasHandle {
		_ = c.provider.Unsubscribe(c.handle)
		c.hasHandle = false
	}
	c.mu.Unlock()

	handle, err := c.provider.Subscribe(ctx, c.cfg.Sensor, c.bridge.HandleDelivery)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.handle = handle
	c.hasHandle = true
	c.mu.Unlock()
	return nil
}

// Pause freezes the duration clock. O(1), never suspends.
func (c *Controller) Pause(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusActive && c.status != StatusStarting {
		c.mu.Unlock()
		return ErrNotPausable
	}
	c.status = StatusPaused
	c.tracker.Pause(time.Now())
	c.sess.PauseCount++
	c.mu.Unlock()

	if err := c.persistState(ctx); err != nil {
		log.Printf("session: pause state write failed: %v", err)
	}
	return nil
}

// Resume unfreezes the duration clock. O(1), never suspends.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusPaused {
		c.mu.Unlock()
		return ErrNotResumable
	}
	c.status = StatusActive
	c.tracker.Resume(time.Now())
	c.mu.Unlock()

	if err := c.persistState(ctx); err != nil {
		log.Printf("session: resume state write failed: %v", err)
	}
	return nil
}

// Stop finalizes the session and returns the one FinalSessionResult. Every
// internal counter is back at its default when it returns; nothing leaks
// into the next session.
func (c *Controller) Stop(ctx context.Context) (track.FinalSessionResult, error) {
	c.mu.Lock()
	if c.status == StatusIdle || c.status == StatusStopping {
		c.mu.Unlock()
		return track.FinalSessionResult{}, ErrNoSession
	}
	c.status = StatusStopping
	c.mu.Unlock()

	c.watchdog.Disarm()

	flushCtx, cancel := context.WithTimeout(ctx, c.cfg.FlushWait)
	if err := c.coalescer.FlushSync(flushCtx); err != nil {
		// non-fatal: finalize with whatever is durable
		log.Printf("session: final flush incomplete: %v", err)
	}
	cancel()

	c.mu.Lock()
	if c.hasHandle {
		_ = c.provider.Unsubscribe(c.handle)
		c.hasHandle = false
	}

	now := time.Now()
	points := c.points
	if len(points) == 0 {
		// pure cross-process topology: the durable log is all we have
		c.mu.Unlock()
		if logged, err := c.store.Points(ctx); err == nil {
			for _, p := range logged {
				if !p.Warmup {
					points = append(points, p.GPSPoint)
				}
			}
		}
		c.mu.Lock()
	}

	result := track.FinalSessionResult{
		SessionID:       c.sess.ID,
		ActivityType:    c.sess.ActivityType,
		StartedAt:       c.sess.StartedAt,
		EndedAt:         now,
		DistanceM:       geo.Distance(points),
		Duration:        c.tracker.Elapsed(now),
		PausedDuration:  c.tracker.Paused(now),
		PauseCount:      c.sess.PauseCount,
		ElevationGainM:  geo.ElevationGain(points),
		Points:          points,
		Splits:          geo.Splits(points),
		PresetDistanceM: c.sess.PresetDistanceM,
	}

	cancelRun := c.cancelRun
	c.mu.Unlock()

	// clear while still in stopping: a racing Start cannot persist a fresh
	// record until the old session is fully gone from the store
	if err := c.store.Clear(ctx); err != nil {
		log.Printf("session: state clear failed: %v", err)
	}

	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()

	if cancelRun != nil {
		cancelRun()
	}
	if c.archive != nil {
		if err := c.archive.SaveResult(ctx, result); err != nil {
			log.Printf("session: archive write failed: %v", err)
		}
	}
	return result, nil
}

// Current returns the in-memory snapshot, or false when no session exists.
// It reads no persisted state, so UI polling never blocks on storage.
func (c *Controller) Current() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusIdle {
		return Snapshot{}, false
	}
	now := time.Now()
	return Snapshot{
		SessionID:       c.sess.ID,
		ActivityType:    c.sess.ActivityType,
		Status:          c.status.String(),
		StartedAt:       c.sess.StartedAt,
		DistanceM:       c.distanceM,
		Duration:        c.tracker.Elapsed(now),
		PausedDuration:  c.tracker.Paused(now),
		PauseCount:      c.sess.PauseCount,
		PointCount:      len(c.points),
		PresetDistanceM: c.sess.PresetDistanceM,
		SensorState:     c.watchdog.State().String(),
	}, true
}

// Restore rebuilds controller state from the persisted record after a
// relaunch. Returns false on missing or corrupt state, never an error the
// caller has to handle.
func (c *Controller) Restore(ctx context.Context) bool {
	c.mu.Lock()
	if c.status != StatusIdle {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	state, ok, err := c.store.LoadState(ctx)
	if err != nil || !ok || !state.IsTracking || state.SessionID == "" {
		if err != nil {
			log.Printf("session: restore skipped, state unreadable: %v", err)
		}
		return false
	}

	var points []track.GPSPoint
	if logged, err := c.store.Points(ctx); err == nil {
		for _, p := range logged {
			if !p.Warmup {
				points = append(points, p.GPSPoint)
			}
		}
	} else {
		log.Printf("session: restore reading point log failed: %v", err)
	}

	c.mu.Lock()
	c.sess = track.Session{
		ID:              state.SessionID,
		ActivityType:    state.ActivityType,
		StartedAt:       state.StartedAt,
		PresetDistanceM: state.PresetDistanceM,
		PauseCount:      state.PauseCount,
	}
	c.tracker = durationFromSession(state)
	c.points = points
	c.distanceM = geo.Distance(points)
	if state.IsPaused {
		c.status = StatusPaused
	} else {
		c.status = StatusActive
	}
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancelRun = cancel
	paused := state.IsPaused
	c.mu.Unlock()

	go c.coalescer.Run(runCtx)
	if !paused {
		c.watchdog.Arm(runCtx)
		go c.acquireSensorRestored(runCtx)
	}
	return true
}

func (c *Controller) acquireSensorRestored(ctx context.Context) {
	handle, err := c.provider.Subscribe(ctx, c.cfg.Sensor, c.bridge.HandleDelivery)
	if err != nil {
		log.Printf("session: sensor re-acquisition failed: %v", err)
		return
	}
	c.mu.Lock()
	if c.status == StatusActive || c.status == StatusPaused {
		c.handle = handle
		c.hasHandle = true
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	_ = c.provider.Unsubscribe(handle)
}

// SetAutoStopCallback registers the preset-distance callback. Setting a new
// one replaces the previous; this is not additive.
func (c *Controller) SetAutoStopCallback(fn AutoStopFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoStop = fn
	c.autoStopFired = false
}

// CheckAutoStop reports whether the preset distance has been reached,
// firing the registered callback the first time it is.
func (c *Controller) CheckAutoStop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkAutoStopLocked()
}

func (c *Controller) checkAutoStopLocked() bool {
	if c.status == StatusIdle || c.sess.PresetDistanceM <= 0 {
		return false
	}
	if c.distanceM < c.sess.PresetDistanceM {
		return false
	}
	if c.autoStop != nil && !c.autoStopFired {
		c.autoStopFired = true
		go c.autoStop(c.distanceM)
	}
	return true
}

// AcceptedPoints is the bridge sink: accepted fixes land in the in-memory
// cache when both contexts share a heap.
func (c *Controller) AcceptedPoints(points []track.GPSPoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusIdle || c.status == StatusStopping || c.status == StatusPaused {
		return
	}
	for _, p := range points {
		if n := len(c.points); n > 0 {
			prev := c.points[n-1]
			c.distanceM += geo.Haversine(prev.Lat, prev.Lng, p.Lat, p.Lng)
		}
		c.points = append(c.points, p)
	}
	c.checkAutoStopLocked()
}

func (c *Controller) persistState(ctx context.Context) error {
	c.mu.Lock()
	state := track.SessionState{
		SessionID:       c.sess.ID,
		ActivityType:    c.sess.ActivityType,
		IsTracking:      c.status != StatusIdle && c.status != StatusStopping,
		IsPaused:        c.status == StatusPaused,
		PauseCount:      c.sess.PauseCount,
		PresetDistanceM: c.sess.PresetDistanceM,
	}
	c.tracker.ApplyToSession(&state)
	c.mu.Unlock()

	// the pipeline anchor belongs to whichever context advanced it last;
	// carrying it inside the transaction means this write can never regress
	// an anchor the background handler moved mid-flight
	return c.store.UpdateState(ctx, func(prev track.SessionState, ok bool) (track.SessionState, bool) {
		if ok && prev.SessionID == state.SessionID {
			state.WarmupLeft = prev.WarmupLeft
			state.HasLastFix = prev.HasLastFix
			state.LastLat = prev.LastLat
			state.LastLng = prev.LastLng
			state.LastAltM = prev.LastAltM
			state.LastHasAlt = prev.LastHasAlt
			state.LastFixAt = prev.LastFixAt
		} else {
			state.WarmupLeft = pipeline.WarmupPoints
			state.HasLastFix = false
			state.LastLat = 0
			state.LastLng = 0
			state.LastAltM = 0
			state.LastHasAlt = false
			state.LastFixAt = time.Time{}
		}
		return state, true
	})
}

// resetLocked puts every counter back at its default. Caller holds c.mu.
func (c *Controller) resetLocked() {
	c.status = StatusIdle
	c.sess = track.Session{}
	c.tracker = DurationTracker{}
	c.points = nil
	c.distanceM = 0
	c.handle = ""
	c.hasHandle = false
	c.autoStopFired = false
	c.cancelRun = nil
}
