// Package coalesce batches accepted points before they hit the durable log,
// trading write frequency for bounded staleness.
package coalesce

import (
	"context"
	"log"
	"sync"
	"time"

	"runstr-engine/internal/store"
	"runstr-engine/internal/track"
)

const (
	DefaultInterval  = 10 * time.Second
	DefaultThreshold = 100
)

// Coalescer queues points and flushes on whichever comes first: the
// interval tick or the point threshold. Flushes are serialized through
// flushMu, so a new flush request chains after the in-flight one instead of
// racing it. A failed flush keeps its batch queued for the next cycle.
type Coalescer struct {
	store     *store.Store
	interval  time.Duration
	threshold int

	mu    sync.Mutex
	queue []track.LoggedPoint

	flushMu sync.Mutex
	kick    chan struct{}
}

func New(st *store.Store, interval time.Duration, threshold int) *Coalescer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Coalescer{
		store:     st,
		interval:  interval,
		threshold: threshold,
		kick:      make(chan struct{}, 1),
	}
}

// Run drives interval and threshold flushes until the context is canceled.
func (c *Coalescer) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.flush(ctx)
		case <-c.kick:
			_ = c.flush(ctx)
		}
	}
}

// Enqueue adds accepted points to the pending batch and requests a flush
// once the threshold is reached.
func (c *Coalescer) Enqueue(points ...track.LoggedPoint) {
	if len(points) == 0 {
		return
	}
	c.mu.Lock()
	c.queue = append(c.queue, points...)
	n := len(c.queue)
	c.mu.Unlock()

	if n >= c.threshold {
		select {
		case c.kick <- struct{}{}:
		default:
		}
	}
}

// Pending reports how many points are queued but not yet durable.
func (c *Coalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// FlushSync drains the queue, waiting at most until the context deadline.
// A timeout is non-fatal to callers: whatever was already durable stands.
func (c *Coalescer) FlushSync(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- c.flush(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coalescer) flush(ctx context.Context) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	batch := c.queue
	c.queue = nil
	c.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := c.store.AppendPoints(ctx, batch); err != nil {
		// put the batch back in front; the next cycle retries
		c.mu.Lock()
		c.queue = append(batch, c.queue...)
		c.mu.Unlock()
		log.Printf("coalesce: flush of %d points failed: %v", len(batch), err)
		return err
	}
	return nil
}
