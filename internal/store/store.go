// Package store is the persisted key-value channel shared by the foreground
// session owner and the background delivery handler. It is the only
// synchronization primitive between the two contexts, so every operation
// here is a single idempotent Redis command.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"runstr-engine/internal/track"
)

const (
	stateKey     = "track:session"
	pointsKey    = "track:points"
	heartbeatKey = "track:heartbeat"
)

// ErrUnavailable is returned when no Redis client is configured. Callers
// treat store failures as non-fatal: in-memory state stays authoritative.
var ErrUnavailable = errors.New("store: redis not configured")

type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// SaveState persists the session record both contexts agree on.
func (s *Store) SaveState(ctx context.Context, state track.SessionState) error {
	if s.rdb == nil {
		return ErrUnavailable
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, stateKey, payload, 0).Err()
}

// maxTxRetries bounds optimistic retries when the other context writes the
// record mid-transaction.
const maxTxRetries = 5

// UpdateState applies update to the session record inside a WATCH
// transaction. update receives the current record (ok is false when none
// exists) and returns the record to write, or false to leave the store
// untouched. A write by the other context between read and commit aborts
// the transaction and update re-runs against the fresh record, so neither
// context can erase the other's fields with a stale whole-record write.
func (s *Store) UpdateState(ctx context.Context, update func(prev track.SessionState, ok bool) (track.SessionState, bool)) error {
	if s.rdb == nil {
		return ErrUnavailable
	}
	var lastErr error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			var state track.SessionState
			ok := true
			payload, err := tx.Get(ctx, stateKey).Bytes()
			if errors.Is(err, redis.Nil) {
				ok = false
			} else if err != nil {
				return err
			} else if err := json.Unmarshal(payload, &state); err != nil {
				return err
			}

			next, write := update(state, ok)
			if !write {
				return nil
			}
			out, err := json.Marshal(next)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, stateKey, out, 0)
				return nil
			})
			return err
		}, stateKey)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// LoadState reads the persisted session record. The second return value is
// false when no record exists, which means "no active session".
func (s *Store) LoadState(ctx context.Context) (track.SessionState, bool, error) {
	if s.rdb == nil {
		return track.SessionState{}, false, ErrUnavailable
	}
	payload, err := s.rdb.Get(ctx, stateKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return track.SessionState{}, false, nil
	}
	if err != nil {
		return track.SessionState{}, false, err
	}
	var state track.SessionState
	if err := json.Unmarshal(payload, &state); err != nil {
		return track.SessionState{}, false, err
	}
	return state, true, nil
}

// AppendPoints appends to the durable point log.
func (s *Store) AppendPoints(ctx context.Context, points []track.LoggedPoint) error {
	if s.rdb == nil {
		return ErrUnavailable
	}
	if len(points) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(points))
	for _, p := range points {
		payload, err := json.Marshal(p)
		if err != nil {
			return err
		}
		values = append(values, payload)
	}
	return s.rdb.RPush(ctx, pointsKey, values...).Err()
}

// Points returns the full durable point log in append order.
func (s *Store) Points(ctx context.Context) ([]track.LoggedPoint, error) {
	if s.rdb == nil {
		return nil, ErrUnavailable
	}
	raw, err := s.rdb.LRange(ctx, pointsKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	points := make([]track.LoggedPoint, 0, len(raw))
	for _, item := range raw {
		var p track.LoggedPoint
		if err := json.Unmarshal([]byte(item), &p); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}

// PointCount returns the durable log length.
func (s *Store) PointCount(ctx context.Context) (int64, error) {
	if s.rdb == nil {
		return 0, ErrUnavailable
	}
	return s.rdb.LLen(ctx, pointsKey).Result()
}

// Touch updates the liveness heartbeat. The background handler calls this on
// every delivery, even one whose points were all filtered out.
func (s *Store) Touch(ctx context.Context, now time.Time) error {
	if s.rdb == nil {
		return ErrUnavailable
	}
	return s.rdb.Set(ctx, heartbeatKey, strconv.FormatInt(now.UnixMilli(), 10), 0).Err()
}

// LastHeartbeat reads the liveness timestamp; false when none was written.
func (s *Store) LastHeartbeat(ctx context.Context) (time.Time, bool, error) {
	if s.rdb == nil {
		return time.Time{}, false, ErrUnavailable
	}
	raw, err := s.rdb.Get(ctx, heartbeatKey).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

// Clear removes everything a session left behind. After this, both contexts
// observe "no active session".
func (s *Store) Clear(ctx context.Context) error {
	if s.rdb == nil {
		return ErrUnavailable
	}
	return s.rdb.Del(ctx, stateKey, pointsKey, heartbeatKey).Err()
}
