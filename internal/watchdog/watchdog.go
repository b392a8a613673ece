// Package watchdog detects silent sensor death and drives bounded recovery.
// Duration tracking is deliberately decoupled from it: the stopwatch keeps
// running no matter what state the monitor is in.
package watchdog

import (
	"context"
	"log"
	"sync"
	"time"

	"runstr-engine/internal/store"
)

type State int

const (
	Idle State = iota
	Armed
	Alerting
	Recovering
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Alerting:
		return "alerting"
	case Recovering:
		return "recovering"
	case Failed:
		return "failed"
	}
	return "unknown"
}

const (
	DefaultPeriod      = 5 * time.Second
	DefaultMaxGap      = 20 * time.Second
	DefaultSettle      = 2 * time.Second
	DefaultMaxRestarts = 5
)

// RestartFunc tears down and re-acquires the sensor subscription.
type RestartFunc func(ctx context.Context) error

// NoticeFunc surfaces a user-visible, non-fatal condition.
type NoticeFunc func(msg string)

type Config struct {
	Period      time.Duration
	MaxGap      time.Duration
	Settle      time.Duration
	MaxRestarts int
}

func (c *Config) defaults() {
	if c.Period <= 0 {
		c.Period = DefaultPeriod
	}
	if c.MaxGap <= 0 {
		c.MaxGap = DefaultMaxGap
	}
	if c.Settle < 0 {
		c.Settle = DefaultSettle
	}
	if c.MaxRestarts <= 0 {
		c.MaxRestarts = DefaultMaxRestarts
	}
}

// Monitor polls the persisted heartbeat and restarts the sensor when it
// goes stale, at most MaxRestarts times per session.
type Monitor struct {
	store   *store.Store
	cfg     Config
	restart RestartFunc
	notice  NoticeFunc

	mu       sync.Mutex
	state    State
	restarts int
	armedAt  time.Time
	cancel   context.CancelFunc
}

func New(st *store.Store, cfg Config, restart RestartFunc, notice NoticeFunc) *Monitor {
	cfg.defaults()
	return &Monitor{store: st, cfg: cfg, restart: restart, notice: notice}
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) Restarts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restarts
}

// Arm starts liveness checks. Arming is idempotent for an already armed
// monitor and resets nothing mid-session.
func (m *Monitor) Arm(ctx context.Context) {
	m.mu.Lock()
	if m.state != Idle {
		m.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.state = Armed
	m.restarts = 0
	m.armedAt = time.Now()
	m.mu.Unlock()

	go m.loop(runCtx)
}

// Disarm cancels the check loop and any in-flight recovery attempt.
func (m *Monitor) Disarm() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.state = Idle
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (m *Monitor) loop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *Monitor) check(ctx context.Context) {
	m.mu.Lock()
	if m.state == Failed {
		m.mu.Unlock()
		return
	}
	armedAt := m.armedAt
	m.mu.Unlock()

	hb, ok, err := m.store.LastHeartbeat(ctx)
	if err != nil {
		log.Printf("watchdog: heartbeat read failed: %v", err)
		return
	}
	// before the first delivery, measure silence from arming
	if !ok {
		hb = armedAt
	}
	if time.Since(hb) <= m.cfg.MaxGap {
		m.mu.Lock()
		m.state = Armed
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	m.state = Alerting
	if m.restarts >= m.cfg.MaxRestarts {
		m.state = Failed
		m.mu.Unlock()
		if m.notice != nil {
			m.notice("GPS signal lost and could not be recovered; distance tracking is degraded but the session is still running")
		}
		return
	}
	m.restarts++
	attempt := m.restarts
	m.state = Recovering
	m.mu.Unlock()

	log.Printf("watchdog: heartbeat stale, restarting sensor (attempt %d/%d)", attempt, m.cfg.MaxRestarts)

	select {
	case <-ctx.Done():
		return
	case <-time.After(m.cfg.Settle):
	}

	if err := m.restart(ctx); err != nil {
		log.Printf("watchdog: sensor restart failed: %v", err)
	}

	m.mu.Lock()
	if m.state == Recovering {
		m.state = Armed
	}
	m.mu.Unlock()
}
