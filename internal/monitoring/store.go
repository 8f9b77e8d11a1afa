// Package monitoring - store.go persists request events in sqlite.
//
// DESIGN: One table, append-only. The store survives restarts so the stats
// endpoint can report lifetime totals, not just since-boot counters. The
// driver is the pure-Go modernc build, so the binary stays cgo-free.
package monitoring

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const storeSchema = `
CREATE TABLE IF NOT EXISTS request_events (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id   TEXT NOT NULL,
	ts           INTEGER NOT NULL,
	model        TEXT NOT NULL,
	turns        INTEGER NOT NULL,
	tool_calls   INTEGER NOT NULL,
	duration_ms  INTEGER NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	reply_tokens INTEGER NOT NULL,
	success      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_request_events_ts ON request_events(ts);
`

// EventStore is a sqlite-backed archive of request events.
type EventStore struct {
	db *sql.DB
}

// OpenEventStore opens (creating if needed) the event database at path.
func OpenEventStore(path string) (*EventStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}
	// sqlite handles one writer at a time
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(storeSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init event store schema: %w", err)
	}
	return &EventStore{db: db}, nil
}

// Insert appends one request event.
func (s *EventStore) Insert(event *RequestEvent) error {
	_, err := s.db.Exec(
		`INSERT INTO request_events
		 (request_id, ts, model, turns, tool_calls, duration_ms, prompt_tokens, reply_tokens, success)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.RequestID,
		event.Timestamp.UnixMilli(),
		event.Model,
		event.Turns,
		event.ToolCalls,
		event.DurationMs,
		event.PromptTokens,
		event.ReplyTokens,
		boolToInt(event.Success),
	)
	if err != nil {
		return fmt.Errorf("insert request event: %w", err)
	}
	return nil
}

// StoreTotals aggregates the whole event table.
type StoreTotals struct {
	Requests     int64 `json:"requests"`
	Successful   int64 `json:"successful"`
	Turns        int64 `json:"turns"`
	ToolCalls    int64 `json:"tool_calls"`
	PromptTokens int64 `json:"prompt_tokens"`
	ReplyTokens  int64 `json:"reply_tokens"`
}

// Totals returns lifetime aggregates across all recorded events.
func (s *EventStore) Totals() (StoreTotals, error) {
	var t StoreTotals
	row := s.db.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(success), 0),
		        COALESCE(SUM(turns), 0),
		        COALESCE(SUM(tool_calls), 0),
		        COALESCE(SUM(prompt_tokens), 0),
		        COALESCE(SUM(reply_tokens), 0)
		 FROM request_events`)
	if err := row.Scan(&t.Requests, &t.Successful, &t.Turns, &t.ToolCalls, &t.PromptTokens, &t.ReplyTokens); err != nil {
		return t, fmt.Errorf("aggregate request events: %w", err)
	}
	return t, nil
}

// Recent returns the most recent events, newest first.
func (s *EventStore) Recent(limit int) ([]RequestEvent, error) {
	rows, err := s.db.Query(
		`SELECT request_id, ts, model, turns, tool_calls, duration_ms, prompt_tokens, reply_tokens, success
		 FROM request_events ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query request events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RequestEvent
	for rows.Next() {
		var ev RequestEvent
		var ts int64
		var success int
		if err := rows.Scan(&ev.RequestID, &ts, &ev.Model, &ev.Turns, &ev.ToolCalls,
			&ev.DurationMs, &ev.PromptTokens, &ev.ReplyTokens, &success); err != nil {
			return nil, fmt.Errorf("scan request event: %w", err)
		}
		ev.Timestamp = time.UnixMilli(ts).UTC()
		ev.Success = success != 0
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *EventStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
