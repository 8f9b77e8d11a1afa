// Package gateway - pinger.go keeps the client stream visibly alive while
// the upstream is silent.
//
// DESIGN: The first heartbeat of a turn says "Working.", later ones a bare
// dot, and if any heartbeat was sent the turn is closed with ".\n\n" so
// frontends render the pause as a finished paragraph. Frames mimic the
// upstream's streaming token shape. The pinger is owned by a single
// goroutine; the once-per-turn latch needs no locking.
package gateway

import (
	"time"

	"github.com/tidwall/sjson"
)

const (
	firstHeartbeatText = "Working."
	heartbeatText      = "."
	terminatorText     = ".\n\n"

	// upstream's created_at shape: UTC with microseconds
	createdAtLayout = "2006-01-02T15:04:05.000000Z"
)

// Pinger synthesizes heartbeat frames shaped like upstream token frames.
type Pinger struct {
	model  string
	pinged bool
	count  int
	now    func() time.Time
}

// NewPinger creates a pinger. The model id is stamped into every frame.
func NewPinger(model string) *Pinger {
	return &Pinger{model: model, now: time.Now}
}

// Start arms the pinger for a new turn.
func (p *Pinger) Start(model string) {
	p.model = model
	p.pinged = false
}

// Ping yields one heartbeat frame: "Working." on the first call of a turn,
// "." afterwards.
func (p *Pinger) Ping() []byte {
	text := heartbeatText
	if !p.pinged {
		text = firstHeartbeatText
		p.pinged = true
	}
	p.count++
	return p.frame(text)
}

// Finish yields the terminator frame if any heartbeat was sent this turn,
// nil otherwise, and disarms.
func (p *Pinger) Finish() []byte {
	if !p.pinged {
		return nil
	}
	p.pinged = false
	p.count++
	return p.frame(terminatorText)
}

// Count returns how many heartbeat frames were produced in total.
func (p *Pinger) Count() int { return p.count }

// UserFrame builds a fresh assistant frame carrying text, shaped like an
// upstream token frame with done:false.
func (p *Pinger) UserFrame(text string) []byte {
	return p.frame(text)
}

func (p *Pinger) frame(text string) []byte {
	b := []byte(`{}`)
	b, _ = sjson.SetBytes(b, "created_at", p.now().UTC().Format(createdAtLayout))
	b, _ = sjson.SetBytes(b, "done", false)
	b, _ = sjson.SetBytes(b, "model", p.model)
	b, _ = sjson.SetBytes(b, "message.role", "assistant")
	b, _ = sjson.SetBytes(b, "message.content", text)
	return b
}

// ReplaceText copies an upstream frame, forces done:false and swaps the
// message content. Used to piggyback synthesized text on real frame
// metadata.
func ReplaceText(frame []byte, text string) []byte {
	b, err := sjson.SetBytes(frame, "message.content", text)
	if err != nil {
		b = frame
	}
	b, err = sjson.SetBytes(b, "done", false)
	if err != nil {
		return frame
	}
	return b
}
