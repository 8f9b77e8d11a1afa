// Package monitoring - telemetry.go records events to JSONL files.
//
// DESIGN: Tracker appends structured events as JSONL (one JSON object per
// line) immediately after each event, so the log can be tailed in real time.
// Recording is expected to run off the request path; the gateway submits
// events through its worker pool.
package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Tracker handles telemetry event recording to file and stdout.
type Tracker struct {
	config       TelemetryConfig
	requestCount int
	mu           sync.Mutex
}

// NewTracker creates a new telemetry tracker.
func NewTracker(cfg TelemetryConfig) (*Tracker, error) {
	t := &Tracker{config: cfg}
	if !cfg.Enabled || cfg.LogPath == "" {
		return t, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0750); err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.LogPath); os.IsNotExist(err) {
		if f, err := os.Create(cfg.LogPath); err == nil {
			_ = f.Close()
		}
	}
	return t, nil
}

// appendJSONL appends a single JSON object as a line to the file.
func appendJSONL(path string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = f.Write(data)
	return err
}

// RecordRequest records a request event.
func (t *Tracker) RecordRequest(event *RequestEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.config.LogToStdout {
		reqID := event.RequestID
		if len(reqID) > 8 {
			reqID = reqID[:8]
		}
		log.Info().
			Str("request_id", reqID).
			Str("model", event.Model).
			Int("turns", event.Turns).
			Int("tool_calls", event.ToolCalls).
			Bool("success", event.Success).
			Msg("telemetry")
	}

	if t.config.LogPath != "" {
		if err := appendJSONL(t.config.LogPath, event); err != nil {
			log.Error().Err(err).Str("path", t.config.LogPath).Msg("telemetry: failed to write request event")
		} else {
			t.requestCount++
		}
	}
}

// RecordTool records a tool invocation event to the same log.
func (t *Tracker) RecordTool(event *ToolEvent) {
	if !t.config.Enabled || t.config.LogPath == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := appendJSONL(t.config.LogPath, event); err != nil {
		log.Error().Err(err).Str("path", t.config.LogPath).Msg("telemetry: failed to write tool event")
	}
}

// Close logs a session summary.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.config.LogPath != "" && t.requestCount > 0 {
		log.Info().
			Str("path", t.config.LogPath).
			Int("events", t.requestCount).
			Msg("telemetry: session complete")
	}
	return nil
}
