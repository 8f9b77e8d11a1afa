package gateway

import (
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

func fixedClock() time.Time {
	return time.Date(2025, time.April, 25, 13, 10, 0, 123456000, time.UTC)
}

func TestPinger_FrameShape(t *testing.T) {
	p := NewPinger("llama3")
	p.now = fixedClock

	frame := p.Ping()
	if got := gjson.GetBytes(frame, "message.content").String(); got != "Working." {
		t.Fatalf("content = %q, want Working.", got)
	}
	if got := gjson.GetBytes(frame, "message.role").String(); got != "assistant" {
		t.Fatalf("role = %q, want assistant", got)
	}
	if got := gjson.GetBytes(frame, "model").String(); got != "llama3" {
		t.Fatalf("model = %q, want llama3", got)
	}
	if done := gjson.GetBytes(frame, "done"); !done.IsBool() || done.Bool() {
		t.Fatalf("done = %s, want false", done.Raw)
	}
	if got := gjson.GetBytes(frame, "created_at").String(); got != "2025-04-25T13:10:00.123456Z" {
		t.Fatalf("created_at = %q", got)
	}
}

func TestPinger_FirstPingThenDots(t *testing.T) {
	p := NewPinger("m")

	if got := gjson.GetBytes(p.Ping(), "message.content").String(); got != "Working." {
		t.Fatalf("first ping = %q", got)
	}
	if got := gjson.GetBytes(p.Ping(), "message.content").String(); got != "." {
		t.Fatalf("second ping = %q", got)
	}
	if got := gjson.GetBytes(p.Finish(), "message.content").String(); got != ".\n\n" {
		t.Fatalf("terminator = %q", got)
	}
	if p.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", p.Count())
	}
}

func TestPinger_FinishWithoutPingIsNil(t *testing.T) {
	p := NewPinger("m")
	if p.Finish() != nil {
		t.Fatal("Finish() without pings should be nil")
	}
}

func TestPinger_StartRearmsPerTurn(t *testing.T) {
	p := NewPinger("m")
	p.Ping()
	if p.Finish() == nil {
		t.Fatal("Finish() after ping should yield the terminator")
	}

	p.Start("other")
	frame := p.Ping()
	if got := gjson.GetBytes(frame, "message.content").String(); got != "Working." {
		t.Fatalf("ping after Start = %q, want the first-heartbeat text again", got)
	}
	if got := gjson.GetBytes(frame, "model").String(); got != "other" {
		t.Fatalf("model = %q, want the re-armed model id", got)
	}
}

func TestReplaceText(t *testing.T) {
	frame := []byte(`{"model":"m","created_at":"x","message":{"role":"assistant","content":"AI_TOOL"},"done":true}`)

	out := ReplaceText(frame, "hello")
	if got := gjson.GetBytes(out, "message.content").String(); got != "hello" {
		t.Fatalf("content = %q, want hello", got)
	}
	if gjson.GetBytes(out, "done").Bool() {
		t.Fatal("done should be forced to false")
	}
	if got := gjson.GetBytes(out, "model").String(); got != "m" {
		t.Fatalf("model = %q, metadata should be preserved", got)
	}
}
