// HTTP request handling for the tool-turn proxy.
//
// DESIGN: Main request flow:
//   - handleChat():     POST /api/chat, validates and runs a chat session
//   - streamFrames():   writes queued frames as HTTP chunks
//   - transparent reverse proxy for every other route
//   - /toolgate/* endpoints (health, stats, events), loopback only
package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/toolgate/ollama-gateway/internal/config"
	"github.com/toolgate/ollama-gateway/internal/monitoring"
	"github.com/toolgate/ollama-gateway/internal/runner"
	"github.com/toolgate/ollama-gateway/internal/tools"
	"github.com/toolgate/ollama-gateway/internal/upstream"
)

const invalidContentTypeBody = "Invalid content type. Expected application/json from user."

// Options wires a Gateway's collaborators.
type Options struct {
	Config   config.Config
	Registry *tools.Registry
	Client   *upstream.Client
	Metrics  *monitoring.MetricsCollector
	Tracker  *monitoring.Tracker
	Store    *monitoring.EventStore // optional
	Hub      *monitoring.EventHub
	Pool     *runner.Pool
}

// Gateway is the HTTP surface of the proxy.
type Gateway struct {
	cfg       config.Config
	registry  *tools.Registry
	client    *upstream.Client
	proxy     *httputil.ReverseProxy
	metrics   *monitoring.MetricsCollector
	tracker   *monitoring.Tracker
	store     *monitoring.EventStore
	hub       *monitoring.EventHub
	pool      *runner.Pool
	estimator *monitoring.TokenEstimator
}

// New creates a gateway from its collaborators.
func New(opts Options) (*Gateway, error) {
	target, err := url.Parse(opts.Config.UpstreamBaseURL())
	if err != nil {
		return nil, err
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.FlushInterval = -1
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn().Str("path", r.URL.Path).Err(err).Msg("gateway: upstream proxy failure")
		w.WriteHeader(http.StatusBadGateway)
	}

	return &Gateway{
		cfg:       opts.Config,
		registry:  opts.Registry,
		client:    opts.Client,
		proxy:     proxy,
		metrics:   opts.Metrics,
		tracker:   opts.Tracker,
		store:     opts.Store,
		hub:       opts.Hub,
		pool:      opts.Pool,
		estimator: monitoring.NewTokenEstimator(),
	}, nil
}

// Handler returns the root HTTP handler.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/toolgate/health", g.handleHealth)
	mux.HandleFunc("/toolgate/stats", g.handleStats)
	mux.HandleFunc("/toolgate/events", g.handleEvents)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/api/chat" {
			g.handleChat(w, r)
			return
		}
		g.metrics.RecordProxied()
		g.proxy.ServeHTTP(w, r)
	})
	return mux
}

// handleChat validates the client request and mediates the chat session.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	start := time.Now()

	log.Debug().
		Str("request_id", requestID).
		Str("remote", r.RemoteAddr).
		Msg("gateway: chat request")

	if r.Header.Get("Content-Type") != "application/json" {
		g.writeClientError(w, requestID, invalidContentTypeBody)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize))
	if err != nil {
		g.writeClientError(w, requestID, "Invalid JSON. Error: "+err.Error())
		return
	}

	prepared, model, err := prepareChatRequest(body, g.registry)
	if err != nil {
		log.Error().Str("request_id", requestID).Err(err).Msg("gateway: rejecting chat request")
		g.writeClientError(w, requestID, "Invalid JSON. Error: "+clientErrorDetail(err))
		return
	}

	queue := NewFrameQueue(config.DefaultFrameQueueDepth)
	sess := newSession(requestID, model, prepared, queue, g.client, g.registry)
	sess.onTurn = g.metrics.RecordTurn
	sess.onToolCall = func(keyword, verdict string, looping bool) {
		g.metrics.RecordToolCall()
		event := &monitoring.ToolEvent{
			Timestamp: time.Now().UTC(),
			RequestID: requestID,
			Keyword:   keyword,
			Verdict:   verdict,
			Looping:   looping,
		}
		g.hub.Publish(event)
		g.pool.Submit(func(context.Context) { g.tracker.RecordTool(event) })
	}

	handle := runner.Go(r.Context(), sess.run)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	writeErr := g.streamFrames(r.Context(), w, queue)
	if writeErr != nil {
		log.Warn().Str("request_id", requestID).Err(writeErr).Msg("gateway: downstream sink lost")
		queue.Disconnect()
	}
	handle.Stop()
	queue.DrainPending()

	g.recordSession(requestID, model, sess, prepared, start, writeErr)
}

// streamFrames drains the queue into the chunked response, one
// newline-terminated frame per chunk, until the producer closes it or the
// client goes away.
func (g *Gateway) streamFrames(ctx context.Context, w http.ResponseWriter, queue *FrameQueue) error {
	flusher, canFlush := w.(http.Flusher)
	for {
		select {
		case frame, ok := <-queue.Frames():
			if !ok {
				return nil
			}
			if _, err := w.Write(append(frame, '\n')); err != nil {
				return ErrDownstreamLost
			}
			if canFlush {
				flusher.Flush()
			}
		case <-ctx.Done():
			return ErrDownstreamLost
		}
	}
}

// recordSession pushes the finished session's telemetry through the worker
// pool so the response path never waits on disk or the event store.
func (g *Gateway) recordSession(requestID, model string, sess *session, request []byte, start time.Time, writeErr error) {
	duration := time.Since(start)
	success := sess.failure == nil && writeErr == nil

	g.metrics.RecordRequest(success, duration)
	g.metrics.RecordHeartbeats(sess.pinger.Count())
	g.metrics.RecordFrames(sess.frames)
	if sess.loopTripped {
		g.metrics.RecordLoopTrip()
	}

	event := &monitoring.RequestEvent{
		Timestamp:    time.Now().UTC(),
		RequestID:    requestID,
		Model:        model,
		Turns:        sess.turns,
		ToolCalls:    sess.toolCalls,
		Heartbeats:   sess.pinger.Count(),
		Frames:       sess.frames,
		LoopTripped:  sess.loopTripped,
		DurationMs:   duration.Milliseconds(),
		PromptTokens: g.estimator.Estimate(promptText(request)),
		ReplyTokens:  sess.replyChars / config.TokenEstimateRatio,
		Success:      success,
	}
	if sess.failure != nil {
		event.Error = sess.failure.Error()
	} else if writeErr != nil {
		event.Error = writeErr.Error()
	}

	g.hub.Publish(event)
	g.pool.Submit(func(context.Context) {
		g.tracker.RecordRequest(event)
		if g.store != nil {
			if err := g.store.Insert(event); err != nil {
				log.Error().Err(err).Msg("gateway: event store insert failed")
			}
		}
	})
}

// promptText concatenates the request's message contents for estimation.
func promptText(request []byte) string {
	var b strings.Builder
	for _, m := range gjson.GetBytes(request, "messages").Array() {
		b.WriteString(m.Get("content").String())
		b.WriteByte('\n')
	}
	return b.String()
}

// clientErrorDetail strips the taxonomy sentinel from a client-facing error.
func clientErrorDetail(err error) string {
	msg := err.Error()
	if cut, ok := strings.CutPrefix(msg, ErrInvalidClientRequest.Error()+": "); ok {
		return cut
	}
	return msg
}

// writeClientError responds with the proxy's historical 504 for bad client
// requests.
func (g *Gateway) writeClientError(w http.ResponseWriter, requestID, body string) {
	log.Debug().Str("request_id", requestID).Str("body", body).Msg("gateway: invalid client request")
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusGatewayTimeout)
	_, _ = w.Write([]byte(body))
}
