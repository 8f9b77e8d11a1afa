// Package gateway - queue.go is the frame conduit between the upstream
// reader and the downstream writer.
//
// DESIGN: Single producer, single consumer. The channel bounds memory; a
// producer blocked on a full queue re-checks the disconnect latch every
// CancelPollInterval so teardown is never stalled by an absent consumer.
// The latch is the request-wide "either side is gone" signal.
package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/toolgate/ollama-gateway/internal/config"
)

// FrameQueue carries ready-to-write frames, preserving producer order.
type FrameQueue struct {
	frames       chan []byte
	disconnected atomic.Bool
	closeOnce    sync.Once
}

// NewFrameQueue creates a queue bounded at depth frames. depth <= 0 uses
// the default.
func NewFrameQueue(depth int) *FrameQueue {
	if depth <= 0 {
		depth = config.DefaultFrameQueueDepth
	}
	return &FrameQueue{
		frames: make(chan []byte, depth),
	}
}

// Push enqueues one frame. Blocks while the queue is full, re-checking the
// disconnect latch and ctx every poll interval. Returns false once the
// session is torn down; the frame is dropped in that case. The queue takes
// ownership of frame.
func (q *FrameQueue) Push(ctx context.Context, frame []byte) bool {
	for {
		if q.disconnected.Load() {
			return false
		}
		select {
		case q.frames <- frame:
			return true
		case <-ctx.Done():
			return false
		case <-time.After(config.CancelPollInterval):
		}
	}
}

// Frames exposes the consumer side of the queue. The channel closes when
// the producer finishes.
func (q *FrameQueue) Frames() <-chan []byte {
	return q.frames
}

// CloseProducer marks the producer done. Only the producer may call it.
func (q *FrameQueue) CloseProducer() {
	q.closeOnce.Do(func() { close(q.frames) })
}

// Disconnect trips the latch that ends the session from either side.
func (q *FrameQueue) Disconnect() {
	q.disconnected.Store(true)
}

// Disconnected reports whether either side tore the session down.
func (q *FrameQueue) Disconnected() bool {
	return q.disconnected.Load()
}

// DrainPending empties the queue without blocking and returns what was
// buffered. Used after teardown to discard frames.
func (q *FrameQueue) DrainPending() [][]byte {
	var out [][]byte
	for {
		select {
		case f, ok := <-q.frames:
			if !ok {
				return out
			}
			out = append(out, f)
		default:
			return out
		}
	}
}
