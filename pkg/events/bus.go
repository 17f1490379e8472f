package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
)

var (
	// ErrBusClosed is returned when publishing to or polling a closed bus.
	ErrBusClosed = errors.New("event bus closed")

	// ErrUnknownCategory is returned for a category the bus has no queue for.
	ErrUnknownCategory = errors.New("unknown event category")
)

// DefaultQueueSize bounds each category queue when no size is configured.
const DefaultQueueSize = 1024

// Bus is an in-process event bus with one bounded queue per category.
// Publish blocks when a queue is full so producers slow down instead of
// dropping events. Closure is signalled on a separate channel; the queue
// channels themselves are never closed, so a publisher blocked on a full
// queue unblocks with ErrBusClosed instead of panicking.
type Bus struct {
	queues map[Category]chan Envelope
	logger ectologger.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// NewBus creates a bus with one queue of the given size per category.
func NewBus(queueSize int, logger ectologger.Logger) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	queues := make(map[Category]chan Envelope, len(Categories()))
	for _, cat := range Categories() {
		queues[cat] = make(chan Envelope, queueSize)
	}

	return &Bus{
		queues: queues,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Publish enqueues the envelope on its category queue. Blocks while the
// queue is full; fails only when the context ends or the bus is closed.
func (b *Bus) Publish(ctx context.Context, env Envelope) error {
	queue, ok := b.queues[env.Type]
	if !ok {
		return ErrUnknownCategory
	}

	select {
	case <-b.done:
		return ErrBusClosed
	default:
	}

	select {
	case queue <- env:
		b.logger.WithContext(ctx).Debugf("Published event %s (%s)", env.Key, env.ID)
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll waits up to timeout for the next envelope on the category queue.
// Returns nil when the wait times out with nothing queued. After Close,
// queued envelopes keep draining; ErrBusClosed comes only once the queue
// is empty.
func (b *Bus) Poll(ctx context.Context, category Category, timeout time.Duration) (*Envelope, error) {
	queue, ok := b.queues[category]
	if !ok {
		return nil, ErrUnknownCategory
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case env := <-queue:
		return &env, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.done:
		select {
		case env := <-queue:
			return &env, nil
		default:
			return nil, ErrBusClosed
		}
	}
}

// Depth reports how many envelopes are queued for the category.
func (b *Bus) Depth(category Category) int {
	queue, ok := b.queues[category]
	if !ok {
		return 0
	}
	return len(queue)
}

// Close stops the bus. Queued envelopes remain pollable until drained;
// blocked publishers unblock with ErrBusClosed.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
	})
}
