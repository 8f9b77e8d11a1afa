// Package monitoring - hub.go streams events to websocket subscribers.
//
// DESIGN: EventHub fans request and tool events out to any number of
// connected websocket clients. Publishing never blocks: a slow subscriber
// whose buffer fills simply misses events. Subscribers are removed on write
// failure or when their connection context ends.
package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"
)

// EventHub distributes live telemetry events to websocket subscribers.
type EventHub struct {
	buffer int

	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

// NewEventHub creates a hub whose subscribers buffer up to buffer events.
func NewEventHub(buffer int) *EventHub {
	return &EventHub{
		buffer: buffer,
		subs:   make(map[chan []byte]struct{}),
	}
}

// Publish sends event (any JSON-marshalable value) to all subscribers.
func (h *EventHub) Publish(event any) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("event hub: marshal failed")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- data:
		default:
		}
	}
}

// Subscribers returns the current subscriber count.
func (h *EventHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *EventHub) subscribe() chan []byte {
	ch := make(chan []byte, h.buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *EventHub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// ServeHTTP upgrades the request to a websocket and tails events until the
// client goes away or ctx ends.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("event hub: websocket accept failed")
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "done") }()

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-ch:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

const writeTimeout = 5 * time.Second
