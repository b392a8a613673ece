// Package bridge is the background half of the engine: the handler the OS
// (or the ingest route standing in for it) invokes with raw fixes. Its
// lifetime is independent of the foreground session object, so the persisted
// store is the only channel it trusts.
package bridge

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"runstr-engine/internal/coalesce"
	"runstr-engine/internal/pipeline"
	"runstr-engine/internal/store"
	"runstr-engine/internal/track"
)

// Sink receives accepted points in-process. It is attached only when the
// foreground controller happens to share a heap with the bridge; the durable
// log makes the protocol correct without it.
type Sink interface {
	AcceptedPoints(points []track.GPSPoint)
}

// Broadcaster pushes accepted points to live subscribers, relayed across
// processes over the store's pub/sub channel.
type Broadcaster interface {
	Broadcast(sessionID string, payload []byte)
}

type Bridge struct {
	store     *store.Store
	coalescer *coalesce.Coalescer
	platform  pipeline.Platform

	mu          sync.Mutex
	sink        Sink
	broadcaster Broadcaster
}

func New(st *store.Store, c *coalesce.Coalescer, platform pipeline.Platform) *Bridge {
	return &Bridge{store: st, coalescer: c, platform: platform}
}

func (b *Bridge) SetSink(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sink = s
}

func (b *Bridge) SetBroadcaster(bc Broadcaster) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcaster = bc
}

// HandleDelivery processes one batch of raw fixes.
//
// The authority check runs on every delivery: no persisted session record
// means no active session, and the batch is dropped. The heartbeat is
// touched whenever a session exists, even if every point is filtered out,
// because it measures sensor liveness, not point quality.
//
// Evaluation runs inside the store's optimistic transaction, so a pause
// persisted while this batch is in flight aborts the write and the batch
// re-runs against the paused record, where it is dropped. The bridge can
// never un-pause a session or regress its duration fields.
func (b *Bridge) HandleDelivery(ctx context.Context, fixes []track.GPSPoint) error {
	var (
		sessionID string
		tracking  bool
		logged    []track.LoggedPoint
		accepted  []track.GPSPoint
		rejected  []string
	)
	err := b.store.UpdateState(ctx, func(state track.SessionState, ok bool) (track.SessionState, bool) {
		// reset per attempt: a retry re-evaluates against the fresh record
		sessionID = state.SessionID
		tracking = ok && state.IsTracking
		logged, accepted, rejected = nil, nil, nil

		if !tracking || state.IsPaused || len(fixes) == 0 {
			return state, false
		}

		profile := pipeline.ProfileFor(b.platform, state.ActivityType)
		st := pipeline.StateFromSession(state)
		for _, fix := range fixes {
			verdict, reason, next := pipeline.Evaluate(profile, st, fix)
			st = next
			switch verdict {
			case pipeline.Accepted:
				logged = append(logged, track.LoggedPoint{GPSPoint: fix})
				accepted = append(accepted, fix)
			case pipeline.WarmupCached:
				logged = append(logged, track.LoggedPoint{GPSPoint: fix, Warmup: true})
			case pipeline.Rejected:
				rejected = append(rejected, reason)
			}
		}

		st.ApplyToSession(&state)
		return state, true
	})
	if err != nil {
		log.Printf("bridge: state update failed, dropping %d fixes: %v", len(fixes), err)
		return err
	}
	if !tracking {
		return nil
	}

	if err := b.store.Touch(ctx, time.Now()); err != nil {
		log.Printf("bridge: heartbeat write failed: %v", err)
	}

	for _, reason := range rejected {
		// normal filtering, not an error
		log.Printf("bridge: fix dropped (%s)", reason)
	}

	if len(logged) > 0 {
		b.coalescer.Enqueue(logged...)
	}
	if len(accepted) == 0 {
		return nil
	}

	b.mu.Lock()
	sink := b.sink
	bc := b.broadcaster
	b.mu.Unlock()

	if sink != nil {
		sink.AcceptedPoints(accepted)
	}
	if bc != nil {
		if payload, err := json.Marshal(accepted); err == nil {
			bc.Broadcast(sessionID, payload)
		}
	}
	return nil
}
