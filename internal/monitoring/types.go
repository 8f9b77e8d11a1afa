// Package monitoring - types.go defines telemetry event shapes.
//
// DESIGN: These types are shared by the gateway and the monitoring sinks
// (JSONL log, sqlite store, live event hub). Defined here once to avoid
// circular imports.
package monitoring

import "time"

// RequestEvent captures one chat request's journey through the proxy.
type RequestEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id"`
	Model       string    `json:"model"`
	Turns       int       `json:"turns"`
	ToolCalls   int       `json:"tool_calls"`
	Heartbeats  int       `json:"heartbeats"`
	Frames      int       `json:"frames"`
	LoopTripped bool      `json:"loop_tripped"`
	DurationMs  int64     `json:"duration_ms"`
	// Token counts are estimates; the upstream does not report usage here.
	PromptTokens int    `json:"prompt_tokens"`
	ReplyTokens  int    `json:"reply_tokens"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
}

// ToolEvent captures one tool invocation inside a request.
type ToolEvent struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
	Keyword   string    `json:"keyword"`
	Verdict   string    `json:"verdict"`
	Looping   bool      `json:"looping"`
}

// TelemetryConfig controls where request events are written.
type TelemetryConfig struct {
	Enabled     bool
	LogPath     string // JSONL request log; empty disables the file sink
	LogToStdout bool
}
