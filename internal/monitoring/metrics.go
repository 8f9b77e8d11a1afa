// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics:
//   - requests/successes: Total and successful chat request counts
//   - proxied:            Requests passed through the transparent proxy
//   - turns:              Upstream turns issued across all requests
//   - tool_calls:         Tool invocations resolved by handlers
//   - heartbeats:         Heartbeat frames emitted during tool phases
//   - loop_trips:         Loop-guard activations
//
// For production, export these to Prometheus or similar.
package monitoring

import (
	"fmt"
	"sync/atomic"
	"time"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	startedAt time.Time

	requests  atomic.Int64
	successes atomic.Int64
	proxied   atomic.Int64

	turns      atomic.Int64
	toolCalls  atomic.Int64
	heartbeats atomic.Int64
	frames     atomic.Int64
	loopTrips  atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{startedAt: time.Now()}
}

// RecordRequest records one completed chat request.
func (mc *MetricsCollector) RecordRequest(success bool, _ time.Duration) {
	mc.requests.Add(1)
	if success {
		mc.successes.Add(1)
	}
}

// RecordProxied records one transparently proxied request.
func (mc *MetricsCollector) RecordProxied() { mc.proxied.Add(1) }

// RecordTurn records one upstream turn.
func (mc *MetricsCollector) RecordTurn() { mc.turns.Add(1) }

// RecordToolCall records one resolved tool invocation.
func (mc *MetricsCollector) RecordToolCall() { mc.toolCalls.Add(1) }

// RecordHeartbeats adds the number of heartbeat frames emitted in a request.
func (mc *MetricsCollector) RecordHeartbeats(n int) { mc.heartbeats.Add(int64(n)) }

// RecordFrames adds the number of frames forwarded downstream.
func (mc *MetricsCollector) RecordFrames(n int) { mc.frames.Add(int64(n)) }

// RecordLoopTrip records one loop-guard activation.
func (mc *MetricsCollector) RecordLoopTrip() { mc.loopTrips.Add(1) }

// StartedAt returns when the metrics collector was created.
func (mc *MetricsCollector) StartedAt() time.Time { return mc.startedAt }

// Stats returns current metrics as a flat map.
func (mc *MetricsCollector) Stats() map[string]int64 {
	return map[string]int64{
		"requests":   mc.requests.Load(),
		"successes":  mc.successes.Load(),
		"proxied":    mc.proxied.Load(),
		"turns":      mc.turns.Load(),
		"tool_calls": mc.toolCalls.Load(),
		"heartbeats": mc.heartbeats.Load(),
		"frames":     mc.frames.Load(),
		"loop_trips": mc.loopTrips.Load(),
	}
}

// FullStats returns all metrics in a structured format for the stats endpoint.
func (mc *MetricsCollector) FullStats() StatsSnapshot {
	uptime := time.Since(mc.startedAt)
	requests := mc.requests.Load()
	successes := mc.successes.Load()

	return StatsSnapshot{
		Uptime:        formatDuration(uptime),
		UptimeSeconds: int64(uptime.Seconds()),
		StartedAt:     mc.startedAt.Format(time.RFC3339),
		Requests: RequestStats{
			Total:      requests,
			Successful: successes,
			Failed:     requests - successes,
			Proxied:    mc.proxied.Load(),
		},
		Sessions: SessionStats{
			Turns:      mc.turns.Load(),
			ToolCalls:  mc.toolCalls.Load(),
			Heartbeats: mc.heartbeats.Load(),
			Frames:     mc.frames.Load(),
			LoopTrips:  mc.loopTrips.Load(),
		},
	}
}

// StatsSnapshot is the structured payload for the stats endpoint.
type StatsSnapshot struct {
	Uptime        string       `json:"uptime"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartedAt     string       `json:"started_at"`
	Requests      RequestStats `json:"requests"`
	Sessions      SessionStats `json:"sessions"`
	Store         StoreTotals  `json:"store"`
}

// RequestStats holds request count metrics.
type RequestStats struct {
	Total      int64 `json:"total"`
	Successful int64 `json:"successful"`
	Failed     int64 `json:"failed"`
	Proxied    int64 `json:"proxied"`
}

// SessionStats holds per-session aggregate metrics.
type SessionStats struct {
	Turns      int64 `json:"turns"`
	ToolCalls  int64 `json:"tool_calls"`
	Heartbeats int64 `json:"heartbeats"`
	Frames     int64 `json:"frames"`
	LoopTrips  int64 `json:"loop_trips"`
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
