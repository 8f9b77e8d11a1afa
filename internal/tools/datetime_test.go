package tools

import (
	"strings"
	"testing"
	"time"
)

func TestDateTimeNowAt_PayloadShape(t *testing.T) {
	loc := time.FixedZone("EET", 2*60*60)
	clock := func() time.Time {
		return time.Date(2025, time.April, 25, 16, 10, 0, 0, loc)
	}

	cmd := DateTimeNowAt(clock)
	if cmd.Keyword != DateTimeKeyword {
		t.Fatalf("Keyword = %q, want %q", cmd.Keyword, DateTimeKeyword)
	}

	v := cmd.Handler(cmd.Keyword, cmd.Keyword)
	if v.Kind != ToolRequest {
		t.Fatalf("Kind = %v, want ToolRequest", v.Kind)
	}
	lines := strings.Split(v.Text, "\n")
	if len(lines) != 2 {
		t.Fatalf("payload = %q, want two lines", v.Text)
	}
	if lines[0] != "Friday 2025-04-25T16:10:00+02:00" {
		t.Fatalf("timestamp line = %q", lines[0])
	}
	if lines[1] != "DST is disabled now." {
		t.Fatalf("dst line = %q", lines[1])
	}
}

func TestDateTimeNowAt_ProseIsUserReply(t *testing.T) {
	cmd := DateTimeNowAt(time.Now)

	v := cmd.Handler(cmd.Keyword, DateTimeKeyword+" tells you the current time")
	if v.Kind != UserReply {
		t.Fatalf("Kind = %v, want UserReply", v.Kind)
	}
}
