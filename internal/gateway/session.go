// Package gateway - session.go mediates one chat request against the
// upstream.
//
// DESIGN: One session runs one upstream-reader goroutine that loops over
// upstream turns. Each turn's chunks go through the detector; prose is
// forwarded to the frame queue, a turn that opens with a tool keyword is
// collected until the upstream finishes it, the tool runs, and its payload is appended as a synthetic user turn before
// the next upstream POST. Heartbeats cover the silent tool phases. The
// session ends when a turn resolves for the user, when either side
// disconnects, or when the upstream misbehaves.
package gateway

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/toolgate/ollama-gateway/internal/config"
	"github.com/toolgate/ollama-gateway/internal/detect"
	"github.com/toolgate/ollama-gateway/internal/tools"
	"github.com/toolgate/ollama-gateway/internal/upstream"
)

// detection is the payload handed from the turn's read loop to the tool
// execution step.
type detection struct {
	keyword string
	text    string
	frame   []byte // upstream frame the keyword arrived in, for echo metadata
}

// session is the per-request mediator state.
type session struct {
	id    string
	model string
	// original is the client request with the preamble inserted. Every
	// follow-up upstream request is the original plus one appended user
	// turn; tool results do not accumulate across turns.
	original []byte
	queue    *FrameQueue
	client   *upstream.Client
	registry *tools.Registry
	detector *detect.Detector
	loop     tools.LoopDetector
	pinger   *Pinger

	// per-request telemetry
	turns       int
	toolCalls   int
	frames      int
	replyChars  int
	loopTripped bool
	failure     error

	// per-turn scratch
	detected    *detection
	protoBroken bool

	onTurn     func()
	onToolCall func(keyword, verdict string, looping bool)
}

func newSession(id, model string, request []byte, queue *FrameQueue, client *upstream.Client, registry *tools.Registry) *session {
	s := &session{
		id:       id,
		model:    model,
		original: request,
		queue:    queue,
		client:   client,
		registry: registry,
		pinger:   NewPinger(model),
	}
	s.detector = detect.New(registry.Keywords(), s.reclassify)
	return s
}

// reclassify lets the detector consult the committed tool's handler while a
// turn is still streaming, so a reply that merely opens with the keyword can
// revert to prose early.
func (s *session) reclassify(keyword, collected string) bool {
	cmd, ok := s.registry.Lookup(keyword)
	if !ok {
		return false
	}
	return cmd.Handler(keyword, collected).Kind == tools.UserReply
}

// run is the upstream-reader task. It owns the producer side of the queue.
func (s *session) run(ctx context.Context) {
	defer s.queue.CloseProducer()

	pending := s.original
	for pending != nil {
		if ctx.Err() != nil || s.queue.Disconnected() {
			return
		}

		s.turns++
		if s.onTurn != nil {
			s.onTurn()
		}
		s.detector.Reset()
		s.pinger.Start(s.model)
		s.detected = nil
		s.protoBroken = false

		err := s.client.ChatStream(ctx, pending, func(frame []byte) bool {
			return s.onFrame(ctx, frame)
		})
		if err != nil {
			log.Warn().Str("request_id", s.id).Err(err).Msg("session: upstream turn failed")
			s.failure = ErrUpstreamTransport
			s.queue.Disconnect()
			return
		}
		if s.protoBroken {
			s.failure = ErrUpstreamProtocol
			s.queue.Disconnect()
			return
		}

		if s.detected == nil {
			// the turn resolved for the user; the whole exchange is done
			break
		}
		pending = s.executeTool(ctx, s.detected)
		if flush := s.pinger.Finish(); flush != nil {
			s.push(ctx, flush)
		}
	}

	if flush := s.pinger.Finish(); flush != nil {
		s.push(ctx, flush)
	}

	// let the writer drain before the channel closes
	select {
	case <-ctx.Done():
	case <-time.After(config.UpstreamExitDelay):
	}
}

// onFrame handles one upstream chunk. Returning false stops the turn's read
// loop.
func (s *session) onFrame(ctx context.Context, frame []byte) (keepReading bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("request_id", s.id).Interface("panic", r).Msg("session: frame handling panicked")
			s.protoBroken = true
			keepReading = false
		}
	}()

	if s.queue.Disconnected() || ctx.Err() != nil {
		return false
	}

	content := gjson.GetBytes(frame, "message.content").String()
	status, verdict := s.detector.Feed(content, doneFlag(frame))

	if status == detect.CommunicationFailure {
		log.Warn().Str("request_id", s.id).Msg("session: frame without parseable done flag")
		s.protoBroken = true
		return false
	}

	switch verdict.Kind {
	case detect.AlreadyDelivered:
		// verdict for this turn is settled; the chunk goes out as-is
		s.replyChars += len(content)
		s.push(ctx, append([]byte(nil), frame...))
	case detect.NeedMoreData:
		if status == detect.UpstreamSentAll {
			// end of turn with the text still buffered: flush it
			if flush := s.pinger.Finish(); flush != nil {
				s.push(ctx, flush)
			}
			s.replyChars += len(verdict.Text)
			s.push(ctx, ReplaceText(frame, verdict.Text))
		}
	case detect.PassToUser:
		if flush := s.pinger.Finish(); flush != nil {
			s.push(ctx, flush)
		}
		s.replyChars += len(verdict.Text)
		s.push(ctx, ReplaceText(frame, verdict.Text))
	case detect.Detected:
		s.detected = &detection{
			keyword: verdict.Keyword,
			text:    verdict.Text,
			frame:   append([]byte(nil), frame...),
		}
		return false
	}
	return true
}

// executeTool resolves a detected keyword and returns the next upstream
// request, or nil when the turn's text was meant for the user and the
// session should end.
func (s *session) executeTool(ctx context.Context, det *detection) []byte {
	s.toolCalls++

	verdict := tools.Verdict{Kind: tools.ToolRequest, Text: tools.UnknownToolReply}
	cmd, known := s.registry.Lookup(det.keyword)
	if known {
		s.push(ctx, s.pinger.Ping())
		handled := func() (ok bool) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Str("request_id", s.id).Interface("panic", r).Msg("session: tool handler panicked")
				}
			}()
			verdict = cmd.Handler(det.keyword, det.text)
			return true
		}()
		if !handled {
			s.failure = ErrUpstreamProtocol
			s.queue.Disconnect()
			return nil
		}
	} else {
		log.Error().Str("request_id", s.id).Str("keyword", det.keyword).Msg("session: detected keyword has no registered tool")
	}

	if s.onToolCall != nil {
		s.onToolCall(det.keyword, verdictName(verdict.Kind), s.loop.IsLooping())
	}

	if verdict.Kind == tools.UserReply {
		s.loop.Reset()
		s.replyChars += len(verdict.Text)
		reply := s.pinger.UserFrame(verdict.Text)
		if flush := s.pinger.Finish(); flush != nil {
			s.push(ctx, flush)
		}
		s.push(ctx, reply)
		log.Debug().Str("request_id", s.id).Str("keyword", det.keyword).Msg("session: tool turn reclassified as user reply")
		// give the writer a moment to flush before the session ends
		select {
		case <-ctx.Done():
		case <-time.After(config.UserReplyFlushDelay):
		}
		return nil
	}

	// ToolRequest and MaybeUserReply both feed the result back upstream
	if known {
		s.push(ctx, s.pinger.Ping())
	}
	s.loop.Update(det.keyword)
	payload := verdict.Text
	if s.loop.IsLooping() {
		payload = tools.NagMessage
		s.loopTripped = true
		log.Warn().Str("request_id", s.id).Str("keyword", det.keyword).Msg("session: loop guard tripped")
	}

	next, err := appendUserTurn(s.original, payload)
	if err != nil {
		log.Error().Str("request_id", s.id).Err(err).Msg("session: cannot build follow-up request")
		s.protoBroken = true
		return nil
	}
	log.Debug().Str("request_id", s.id).Str("keyword", det.keyword).Int("turn", s.turns).Msg("session: tool result fed back upstream")
	return next
}

func (s *session) push(ctx context.Context, frame []byte) {
	if frame == nil {
		return
	}
	if s.queue.Push(ctx, frame) {
		s.frames++
	}
}

// doneFlag extracts the three-valued done field from a raw frame.
func doneFlag(frame []byte) detect.DoneFlag {
	done := gjson.GetBytes(frame, "done")
	if !done.Exists() || !done.IsBool() {
		return detect.DoneInvalid
	}
	if done.Bool() {
		return detect.DoneTrue
	}
	return detect.DoneFalse
}

func verdictName(k tools.VerdictKind) string {
	switch k {
	case tools.UserReply:
		return "user_reply"
	case tools.ToolRequest:
		return "tool_request"
	case tools.MaybeUserReply:
		return "maybe_user_reply"
	}
	return "unknown"
}
