// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined
// here. This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// NETWORK DEFAULTS
// =============================================================================

// DefaultListenPort is the fixed port the proxy listens on.
const DefaultListenPort = 12345

// DefaultOllamaHost is the upstream chat server host.
const DefaultOllamaHost = "localhost"

// DefaultOllamaPort is the upstream chat server port.
const DefaultOllamaPort = 11434

// DefaultDialTimeout is the TCP dial timeout towards the upstream.
const DefaultDialTimeout = 30 * time.Second

// DefaultServerWriteTimeout for the HTTP server (safe for streaming).
const DefaultServerWriteTimeout = 10 * time.Minute

// MaxRequestBodySize is the maximum allowed client request body (50MB).
const MaxRequestBodySize = 50 * 1024 * 1024

// =============================================================================
// SESSION PLUMBING
// =============================================================================

// DefaultFrameQueueDepth bounds the per-request frame queue between the
// upstream reader and the downstream writer.
const DefaultFrameQueueDepth = 1024

// CancelPollInterval is the longest any blocking point may go without
// checking its cancel token.
const CancelPollInterval = 250 * time.Millisecond

// UserReplyFlushDelay lets the downstream writer drain after a tool handler
// resolved to a user reply, before the session ends.
const UserReplyFlushDelay = 150 * time.Millisecond

// UpstreamExitDelay lets the downstream writer drain after the upstream
// reader finished its last turn.
const UpstreamExitDelay = 200 * time.Millisecond

// DefaultWorkerCount sizes the background worker pool.
const DefaultWorkerCount = 4

// =============================================================================
// TELEMETRY
// =============================================================================

// TokenEstimateRatio is the approximate number of characters per token. The
// token estimator falls back to it when the tokenizer is unavailable; reply
// token counts in request events always use it.
const TokenEstimateRatio = 4

// DefaultTelemetryDir is where JSONL event logs and the event database live.
const DefaultTelemetryDir = ".toolgate"

// DefaultEventDBFile is the sqlite event store file name.
const DefaultEventDBFile = "events.db"

// DefaultRequestLogFile is the JSONL request log file name.
const DefaultRequestLogFile = "requests.jsonl"

// EventHubBuffer is the per-subscriber buffer of the live event feed.
const EventHubBuffer = 64
