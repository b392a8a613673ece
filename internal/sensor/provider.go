// Package sensor specifies the position-source collaborator at its
// interface boundary. The engine never talks to hardware directly.
package sensor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"runstr-engine/internal/track"
)

type Accuracy string

const (
	AccuracyBest     Accuracy = "best"
	AccuracyBalanced Accuracy = "balanced"
)

// Options configure a subscription. BackgroundGrant asks the provider for
// whatever platform capability keeps delivery alive while backgrounded;
// on mobile platforms this maps to a persistent notification or an OS
// background-execution grant.
type Options struct {
	Accuracy        Accuracy
	Interval        time.Duration
	DistanceM       float64
	BackgroundGrant bool
}

// DeliveryFunc receives batches of raw fixes asynchronously. The returned
// error is the receiver's problem to surface; providers do not retry.
type DeliveryFunc func(ctx context.Context, fixes []track.GPSPoint) error

type Handle string

// Provider is the sensor collaborator. Subscribe may block while the
// platform acquires the sensor; Unsubscribe must be safe to call with a
// stale handle.
type Provider interface {
	Subscribe(ctx context.Context, opts Options, deliver DeliveryFunc) (Handle, error)
	Unsubscribe(h Handle) error
}

var ErrNoSubscription = errors.New("sensor: no such subscription")

// StreamProvider feeds fixes pushed into it (by an ingest route or a test)
// to the current subscriber. Only one subscription is active at a time,
// matching the single-session constraint.
type StreamProvider struct {
	mu      sync.Mutex
	handle  Handle
	deliver DeliveryFunc
}

func NewStreamProvider() *StreamProvider {
	return &StreamProvider{}
}

func (p *StreamProvider) Subscribe(_ context.Context, _ Options, deliver DeliveryFunc) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handle = Handle(uuid.NewString())
	p.deliver = deliver
	return p.handle, nil
}

func (p *StreamProvider) Unsubscribe(h Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle != h {
		return ErrNoSubscription
	}
	p.handle = ""
	p.deliver = nil
	return nil
}

// Feed hands a batch of fixes to the subscriber, if any. Returns false when
// nobody is subscribed.
func (p *StreamProvider) Feed(ctx context.Context, fixes []track.GPSPoint) bool {
	p.mu.Lock()
	deliver := p.deliver
	p.mu.Unlock()
	if deliver == nil {
		return false
	}
	_ = deliver(ctx, fixes)
	return true
}
