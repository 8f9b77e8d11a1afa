// Package upstream talks to the local Ollama-compatible chat server.
//
// DESIGN: The chat endpoint streams newline-delimited JSON frames. ChatStream
// posts a raw request body and hands each frame to a callback; the callback
// returning false stops the read loop without failing the call. The request
// body is opaque bytes here so callers can shape it with JSON path tooling
// instead of schema structs.
package upstream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/toolgate/ollama-gateway/internal/config"
)

var (
	// ErrRequestFailed reports a non-200 upstream status.
	ErrRequestFailed = errors.New("upstream request failed")
	// ErrTransport reports a connection-level failure.
	ErrTransport = errors.New("upstream transport failure")
)

// initial and maximum scan buffer for one NDJSON frame
const (
	scanBufferSize = 64 * 1024
	maxFrameSize   = 10 * 1024 * 1024
)

// FrameCallback receives one raw NDJSON frame. Returning false stops the
// stream read loop.
type FrameCallback func(frame []byte) bool

// Client is an NDJSON streaming chat client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the given base URL, e.g. http://localhost:11434.
// No overall request timeout: chat streams are open-ended. Only the dial is
// bounded.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: config.DefaultDialTimeout}).DialContext,
			},
		},
	}
}

// BaseURL returns the upstream base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// ChatStream posts body to /api/chat and feeds each response frame to cb.
// Returns nil when the stream ends or cb stops it; the context cancels the
// underlying request.
func (c *Client) ChatStream(ctx context.Context, body []byte, cb FrameCallback) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Debug().
		Str("url", req.URL.String()).
		Str("model", gjson.GetBytes(body, "model").String()).
		Int("messages", int(gjson.GetBytes(body, "messages.#").Int())).
		Msg("upstream: chat request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrRequestFailed, resp.StatusCode, snippet)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, scanBufferSize), maxFrameSize)
	frames := 0
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		frames++
		// cb keeps the frame only for the duration of the call
		if !cb(line) {
			log.Debug().Int("frames", frames).Msg("upstream: read loop stopped by callback")
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	log.Debug().Int("frames", frames).Msg("upstream: stream complete")
	return nil
}
