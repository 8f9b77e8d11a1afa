package gateway

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/toolgate/ollama-gateway/internal/config"
	"github.com/toolgate/ollama-gateway/internal/monitoring"
	"github.com/toolgate/ollama-gateway/internal/runner"
	"github.com/toolgate/ollama-gateway/internal/tools"
	"github.com/toolgate/ollama-gateway/internal/upstream"
)

// scriptedUpstream plays back NDJSON turns and records every request body.
type scriptedUpstream struct {
	mu       sync.Mutex
	requests [][]byte
	script   func(call int) []string
}

func (s *scriptedUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	call := len(s.requests)
	s.requests = append(s.requests, body)
	s.mu.Unlock()

	flusher, _ := w.(http.Flusher)
	for _, line := range s.script(call) {
		_, _ = w.Write([]byte(line + "\n"))
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *scriptedUpstream) request(t *testing.T, i int) []byte {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.requests) {
		t.Fatalf("upstream saw %d requests, want at least %d", len(s.requests), i+1)
	}
	return s.requests[i]
}

func (s *scriptedUpstream) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func mkFrame(content string, done bool) string {
	return fmt.Sprintf(`{"model":"m","created_at":"2025-04-25T13:10:00.000000Z","message":{"role":"assistant","content":%s},"done":%t}`,
		strconv.Quote(content), done)
}

type testProxy struct {
	srv     *httptest.Server
	metrics *monitoring.MetricsCollector
}

func newTestProxy(t *testing.T, up *scriptedUpstream, reg *tools.Registry) *testProxy {
	t.Helper()

	upSrv := httptest.NewServer(up)
	t.Cleanup(upSrv.Close)

	u, err := url.Parse(upSrv.URL)
	if err != nil {
		t.Fatalf("parse upstream url: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("upstream port: %v", err)
	}

	cfg := config.Default()
	cfg.OllamaHost = u.Hostname()
	cfg.OllamaPort = port

	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{})
	if err != nil {
		t.Fatalf("NewTracker() error = %v", err)
	}
	pool := runner.NewPool(1)
	t.Cleanup(pool.Close)
	metrics := monitoring.NewMetricsCollector()

	gw, err := New(Options{
		Config:   cfg,
		Registry: reg,
		Client:   upstream.NewClient(cfg.UpstreamBaseURL()),
		Metrics:  metrics,
		Tracker:  tracker,
		Hub:      monitoring.NewEventHub(8),
		Pool:     pool,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)
	return &testProxy{srv: srv, metrics: metrics}
}

func toolRegistry(t *testing.T, handler tools.Handler) *tools.Registry {
	t.Helper()
	if handler == nil {
		handler = tools.KeywordOnly(func(string) string { return "tool-data" })
	}
	reg, err := tools.NewRegistry(tools.Command{
		Keyword:     "AI_TEST_TOOL",
		Instruction: "Say ${KEYWORD}.",
		Handler:     handler,
	})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return reg
}

func postChat(t *testing.T, proxyURL, body string) (int, []string) {
	t.Helper()
	resp, err := http.Post(proxyURL+"/api/chat", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/chat: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var lines []string
	for _, l := range strings.Split(string(data), "\n") {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return resp.StatusCode, lines
}

func frameContents(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = gjson.Get(l, "message.content").String()
	}
	return out
}

const chatBody = `{"stream":true,"model":"m","messages":[{"role":"user","content":"hi"}]}`

func TestChat_EmptyRegistryForwardsVerbatim(t *testing.T) {
	frames := []string{mkFrame("Hello", false), mkFrame(" world", true)}
	up := &scriptedUpstream{script: func(int) []string { return frames }}
	reg, err := tools.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	p := newTestProxy(t, up, reg)

	status, lines := postChat(t, p.srv.URL, chatBody)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if len(lines) != 2 || lines[0] != frames[0] || lines[1] != frames[1] {
		t.Fatalf("lines = %v, want the upstream frames byte-identical", lines)
	}
	if !gjson.Get(lines[1], "done").Bool() {
		t.Fatal("final frame should keep done:true")
	}

	// no tools registered: the request goes upstream without a preamble
	req := up.request(t, 0)
	if gjson.GetBytes(req, "messages.0.role").String() != "user" {
		t.Fatalf("messages[0] = %s, want the client's own turn", gjson.GetBytes(req, "messages.0").Raw)
	}
}

func TestChat_ProseStreamsThrough(t *testing.T) {
	up := &scriptedUpstream{script: func(int) []string {
		return []string{mkFrame("Hello there, good friend", false), mkFrame(" of mine!", true)}
	}}
	p := newTestProxy(t, up, toolRegistry(t, nil))

	status, lines := postChat(t, p.srv.URL, chatBody)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	// the first chunk already rules every keyword out, so it is released
	// as-is and the rest of the turn streams verbatim
	contents := frameContents(lines)
	if len(contents) != 2 || contents[0] != "Hello there, good friend" || contents[1] != " of mine!" {
		t.Fatalf("contents = %v", contents)
	}
	if !gjson.Get(lines[1], "done").Bool() {
		t.Fatal("final prose frame should keep done:true")
	}

	// the upstream request carries the injected tool preamble
	req := up.request(t, 0)
	first := gjson.GetBytes(req, "messages.0")
	if first.Get("role").String() != "system" {
		t.Fatalf("messages[0].role = %q, want the system preamble", first.Get("role").String())
	}
	if !strings.Contains(first.Get("content").String(), "Say AI_TEST_TOOL.") {
		t.Fatalf("preamble = %q", first.Get("content").String())
	}
}

func TestChat_ShortFinalAnswerIsFlushedAtTurnEnd(t *testing.T) {
	up := &scriptedUpstream{script: func(int) []string {
		return []string{mkFrame("Hi", false), mkFrame("!", true)}
	}}
	p := newTestProxy(t, up, toolRegistry(t, nil))

	status, lines := postChat(t, p.srv.URL, chatBody)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	// "Hi!" never exceeds the keyword length, so it stays buffered until
	// done:true and goes out as one synthesized frame
	contents := frameContents(lines)
	if len(contents) != 1 || contents[0] != "Hi!" {
		t.Fatalf("contents = %v, want [Hi!]", contents)
	}
}

func TestChat_ToolRoundTrip(t *testing.T) {
	up := &scriptedUpstream{script: func(call int) []string {
		if call == 0 {
			return []string{mkFrame("AI_TEST_TOOL", true)}
		}
		return []string{mkFrame("Done!", true)}
	}}
	p := newTestProxy(t, up, toolRegistry(t, nil))

	status, lines := postChat(t, p.srv.URL, chatBody)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}

	want := []string{"Working.", ".", ".\n\n", "Done!"}
	contents := frameContents(lines)
	if len(contents) != len(want) {
		t.Fatalf("contents = %q, want %q", contents, want)
	}
	for i := range want {
		if contents[i] != want[i] {
			t.Fatalf("contents[%d] = %q, want %q", i, contents[i], want[i])
		}
	}

	if up.calls() != 2 {
		t.Fatalf("upstream calls = %d, want 2", up.calls())
	}
	second := up.request(t, 1)
	msgs := gjson.GetBytes(second, "messages").Array()
	last := msgs[len(msgs)-1]
	if last.Get("role").String() != "user" {
		t.Fatalf("follow-up last role = %q, want user", last.Get("role").String())
	}
	if last.Get("content").String() != "tool-data\n" {
		t.Fatalf("follow-up payload = %q, want the tool result", last.Get("content").String())
	}

	firstMsgs := gjson.GetBytes(up.request(t, 0), "messages").Array()
	if len(msgs) != len(firstMsgs)+1 {
		t.Fatalf("follow-up has %d messages, want %d: tool results must not accumulate", len(msgs), len(firstMsgs)+1)
	}
}

func TestChat_ToolReplyMeantForUser(t *testing.T) {
	up := &scriptedUpstream{script: func(int) []string {
		return []string{mkFrame("AI_TEST_TOOL", false), mkFrame(" is a keyword I can use", true)}
	}}
	p := newTestProxy(t, up, toolRegistry(t, nil))

	status, lines := postChat(t, p.srv.URL, chatBody)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}

	want := []string{"Working.", ".\n\n", "AI_TEST_TOOL is a keyword I can use"}
	contents := frameContents(lines)
	if len(contents) != len(want) {
		t.Fatalf("contents = %q, want %q", contents, want)
	}
	for i := range want {
		if contents[i] != want[i] {
			t.Fatalf("contents[%d] = %q, want %q", i, contents[i], want[i])
		}
	}
	if up.calls() != 1 {
		t.Fatalf("upstream calls = %d, want 1: a user reply ends the session", up.calls())
	}
}

func TestChat_LoopGuardNags(t *testing.T) {
	up := &scriptedUpstream{script: func(call int) []string {
		if call < 4 {
			return []string{mkFrame("AI_TEST_TOOL", true)}
		}
		return []string{mkFrame("stopping now", true)}
	}}
	p := newTestProxy(t, up, toolRegistry(t, nil))

	status, _ := postChat(t, p.srv.URL, chatBody)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if up.calls() != 5 {
		t.Fatalf("upstream calls = %d, want 5", up.calls())
	}

	lastContent := func(i int) string {
		msgs := gjson.GetBytes(up.request(t, i), "messages").Array()
		return msgs[len(msgs)-1].Get("content").String()
	}
	if lastContent(1) != "tool-data\n" {
		t.Fatalf("first follow-up = %q, want the tool result", lastContent(1))
	}
	if lastContent(2) != "tool-data\n" {
		t.Fatalf("second follow-up = %q, want the tool result", lastContent(2))
	}
	if lastContent(3) != tools.NagMessage+"\n" {
		t.Fatalf("third follow-up = %q, want the nag", lastContent(3))
	}
}

func TestChat_RejectsWrongContentType(t *testing.T) {
	up := &scriptedUpstream{script: func(int) []string { return nil }}
	p := newTestProxy(t, up, toolRegistry(t, nil))

	resp, err := http.Post(p.srv.URL+"/api/chat", "text/plain", strings.NewReader(chatBody))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "Invalid content type. Expected application/json from user." {
		t.Fatalf("body = %q", body)
	}
}

func TestChat_RejectsNonStreamRequest(t *testing.T) {
	up := &scriptedUpstream{script: func(int) []string { return nil }}
	p := newTestProxy(t, up, toolRegistry(t, nil))

	status, lines := postChat(t, p.srv.URL, `{"stream":false,"messages":[]}`)
	if status != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", status)
	}
	body := strings.Join(lines, "\n")
	if body != "Invalid JSON. Error: Expected 'stream' field to be true." {
		t.Fatalf("body = %q", body)
	}
	if up.calls() != 0 {
		t.Fatalf("upstream calls = %d, want 0", up.calls())
	}
}

func TestChat_BrokenUpstreamFrameEndsSession(t *testing.T) {
	up := &scriptedUpstream{script: func(int) []string {
		return []string{`{"message":{"content":"x"}}`}
	}}
	p := newTestProxy(t, up, toolRegistry(t, nil))

	status, lines := postChat(t, p.srv.URL, chatBody)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200: headers are sent before the upstream speaks", status)
	}
	if len(lines) != 0 {
		t.Fatalf("lines = %v, want none for a protocol-broken turn", lines)
	}
}

func TestGateway_ProxiesOtherRoutes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3"}]}`))
	})
	upSrv := httptest.NewServer(mux)
	defer upSrv.Close()

	u, _ := url.Parse(upSrv.URL)
	port, _ := strconv.Atoi(u.Port())
	cfg := config.Default()
	cfg.OllamaHost = u.Hostname()
	cfg.OllamaPort = port

	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{})
	if err != nil {
		t.Fatalf("NewTracker() error = %v", err)
	}
	pool := runner.NewPool(1)
	defer pool.Close()

	gw, err := New(Options{
		Config:   cfg,
		Registry: toolRegistry(t, nil),
		Client:   upstream.NewClient(cfg.UpstreamBaseURL()),
		Metrics:  monitoring.NewMetricsCollector(),
		Tracker:  tracker,
		Hub:      monitoring.NewEventHub(8),
		Pool:     pool,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/tags")
	if err != nil {
		t.Fatalf("GET /api/tags: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "llama3") {
		t.Fatalf("proxied body = %q", body)
	}
}

func TestGateway_HealthAndStatsEndpoints(t *testing.T) {
	up := &scriptedUpstream{script: func(int) []string {
		return []string{mkFrame("hi", true)}
	}}
	p := newTestProxy(t, up, toolRegistry(t, nil))

	if status, _ := postChat(t, p.srv.URL, chatBody); status != http.StatusOK {
		t.Fatalf("chat status = %d", status)
	}

	resp, err := http.Get(p.srv.URL + "/toolgate/health")
	if err != nil {
		t.Fatalf("GET /toolgate/health: %v", err)
	}
	health, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if gjson.GetBytes(health, "status").String() != "ok" {
		t.Fatalf("health = %s", health)
	}
	if gjson.GetBytes(health, "tools").Int() != 1 {
		t.Fatalf("health tools = %s", health)
	}

	resp, err = http.Get(p.srv.URL + "/toolgate/stats")
	if err != nil {
		t.Fatalf("GET /toolgate/stats: %v", err)
	}
	stats, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if gjson.GetBytes(stats, "requests.total").Int() != 1 {
		t.Fatalf("stats = %s", stats)
	}
	if gjson.GetBytes(stats, "requests.successful").Int() != 1 {
		t.Fatalf("stats = %s", stats)
	}
}
