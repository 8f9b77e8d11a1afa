// Package detect implements the streaming keyword detector.
//
// DESIGN: The detector watches the text a model produces chunk by chunk and
// decides, as early as possible, whether the turn is a tool invocation
// (the text starts with a registered keyword) or plain prose. Keywords are
// matched as strict prefixes of the accumulated text, shortest keyword first.
// Once a verdict is terminal for the turn, later chunks report AlreadyDelivered
// so the caller can forward them without re-scanning.
package detect

import (
	"sort"
)

// TurnStatus mirrors the upstream frame's done flag.
type TurnStatus int

const (
	// UpstreamHasMore means the turn is still streaming (done:false).
	UpstreamHasMore TurnStatus = iota
	// UpstreamSentAll means the turn completed (done:true).
	UpstreamSentAll
	// CommunicationFailure means the done flag was missing or not a boolean.
	CommunicationFailure
)

// DoneFlag is the three-valued done field of an upstream frame.
type DoneFlag int

const (
	DoneFalse DoneFlag = iota
	DoneTrue
	DoneInvalid
)

// VerdictKind enumerates detector outcomes per chunk.
type VerdictKind int

const (
	// NeedMoreData: still ambiguous, keep the turn buffered.
	NeedMoreData VerdictKind = iota
	// PassToUser: the accumulated text is prose; release it downstream.
	PassToUser
	// Detected: a keyword committed and the turn completed; run the tool.
	Detected
	// AlreadyDelivered: a terminal verdict was produced earlier this turn.
	AlreadyDelivered
)

// Verdict is the detector's per-chunk decision. Text carries the full
// accumulated content for NeedMoreData, PassToUser and Detected; Keyword is
// set only for Detected.
type Verdict struct {
	Kind    VerdictKind
	Keyword string
	Text    string
}

// ReclassifyFunc asks the committed keyword's handler whether the collected
// text is actually a reply meant for the user. Implementations must be pure:
// the detector may call them repeatedly with growing prefixes of the same
// turn.
type ReclassifyFunc func(keyword, collected string) bool

type state int

const (
	scanning state = iota
	committedTool
	committedPassthrough
	alreadyDelivered
)

// Detector is a per-request streaming prefix matcher. Not safe for
// concurrent use; it is owned by the upstream reader.
type Detector struct {
	keywords    []string // sorted ascending by byte length
	reclassify  ReclassifyFunc
	accumulator []byte
	state       state
	keyword     string
}

// New builds a detector over the given keyword set. The set may be empty,
// in which case every turn immediately reports AlreadyDelivered.
// reclassify may be nil; then a committed keyword never reverts to prose.
func New(keywords []string, reclassify ReclassifyFunc) *Detector {
	sorted := make([]string, len(keywords))
	copy(sorted, keywords)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i]) < len(sorted[j])
	})
	return &Detector{
		keywords:   sorted,
		reclassify: reclassify,
	}
}

// Feed consumes one upstream chunk and returns the turn status together with
// the detector's verdict.
func (d *Detector) Feed(content string, done DoneFlag) (TurnStatus, Verdict) {
	if done == DoneInvalid {
		return CommunicationFailure, Verdict{Kind: AlreadyDelivered}
	}
	status := UpstreamHasMore
	if done == DoneTrue {
		status = UpstreamSentAll
	}

	if d.state == committedPassthrough || d.state == alreadyDelivered || len(d.keywords) == 0 {
		return status, Verdict{Kind: AlreadyDelivered}
	}

	d.accumulator = append(d.accumulator, content...)
	text := string(d.accumulator)

	if d.state == committedTool {
		if status == UpstreamSentAll {
			d.state = alreadyDelivered
			return status, Verdict{Kind: Detected, Keyword: d.keyword, Text: text}
		}
		if d.reclassify != nil && d.reclassify(d.keyword, text) {
			d.state = committedPassthrough
			return status, Verdict{Kind: PassToUser, Text: text}
		}
		return status, Verdict{Kind: NeedMoreData, Text: text}
	}

	return d.scan(status, text)
}

func (d *Detector) scan(status TurnStatus, text string) (TurnStatus, Verdict) {
	n := len(text)
	candidate := false
	for _, k := range d.keywords {
		if len(k) > n {
			candidate = true
			break
		}
		if text[:len(k)] == k {
			d.keyword = k
			if status == UpstreamSentAll {
				d.state = alreadyDelivered
				return status, Verdict{Kind: Detected, Keyword: k, Text: text}
			}
			d.state = committedTool
			return status, Verdict{Kind: NeedMoreData, Text: text}
		}
	}
	if candidate {
		return status, Verdict{Kind: NeedMoreData, Text: text}
	}
	d.state = committedPassthrough
	return status, Verdict{Kind: PassToUser, Text: text}
}

// Committed reports whether the detector has committed to a tool keyword.
func (d *Detector) Committed() bool {
	return d.state == committedTool
}

// Reset clears the accumulator and returns to scanning. Called between
// upstream turns.
func (d *Detector) Reset() {
	d.accumulator = d.accumulator[:0]
	d.state = scanning
	d.keyword = ""
}
