// Package stream assembles an incremental model response into one annotated
// transcript. Fragments arrive tagged as reasoning or answer; reasoning is
// wrapped in <think> markers so the final answer can be recovered by
// stripping them.
package stream

import (
	"regexp"
	"strings"
	"time"
)

// Channel tags a fragment as reasoning or final answer.
type Channel int

const (
	ChannelReasoning Channel = iota
	ChannelAnswer
)

// Fragment is one incremental piece of a streamed model response.
type Fragment struct {
	Channel Channel
	Text    string
}

// Phase is the processor state. Transitions: Idle -> Thinking on the first
// non-empty reasoning fragment, Thinking -> Answering on the first non-empty
// answer fragment, Answering -> Thinking if reasoning resumes, terminal Done
// at end of stream.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseThinking
	PhaseAnswering
	PhaseDone
)

const (
	headerThinking = "Thinking Process"
	headerAnswer   = "Analysis Results"

	thinkOpen  = "<think>"
	thinkClose = "</think>"

	// flushThreshold is the minimum pending length forcing a flush when no
	// paragraph break arrived.
	flushThreshold = 120
	paragraphBreak = "\n\n"
)

// Sink receives live progress output: flushed segments and section banners.
type Sink interface {
	Segment(text string)
	Header(text string)
}

// nopSink drops all progress output.
type nopSink struct{}

func (nopSink) Segment(string) {}
func (nopSink) Header(string)  {}

// Processor demultiplexes one model call's fragment sequence. Not safe for
// concurrent use; fragment consumption is strictly ordered.
type Processor struct {
	sink       Sink
	gate       *HeaderGate
	now        func() time.Time
	phase      Phase
	transcript strings.Builder
	pending    strings.Builder // pending text of the current phase
	thinkOpen  bool
}

// NewProcessor creates a processor for a single model call. The gate is
// shared across calls so banner dedup spans the process run; nil disables
// banners. A nil sink discards progress output.
func NewProcessor(sink Sink, gate *HeaderGate) *Processor {
	if sink == nil {
		sink = nopSink{}
	}
	return &Processor{sink: sink, gate: gate, now: time.Now}
}

// Phase returns the current processor phase.
func (p *Processor) Phase() Phase { return p.phase }

// Ingest consumes one fragment. Empty fragments are ignored and never
// trigger a phase transition.
func (p *Processor) Ingest(f Fragment) {
	if p.phase == PhaseDone || f.Text == "" {
		return
	}

	switch f.Channel {
	case ChannelReasoning:
		if p.phase != PhaseThinking {
			p.flushPending()
			p.enterThinking()
		}
	case ChannelAnswer:
		if p.phase != PhaseAnswering {
			p.flushPending()
			p.enterAnswering()
		}
	}

	p.pending.WriteString(f.Text)
	if p.pending.Len() >= flushThreshold || strings.Contains(p.pending.String(), paragraphBreak) {
		p.flushPending()
	}
}

// Finish marks end of stream, flushes any remaining buffered text, closes an
// open thinking marker and returns the full transcript.
func (p *Processor) Finish() string {
	return p.terminate()
}

// Abort is called when the fragment source failed mid-stream. Whatever is
// buffered is flushed and an open thinking marker is closed, but the caller
// must not assume a well-formed transcript.
func (p *Processor) Abort() string {
	return p.terminate()
}

func (p *Processor) terminate() string {
	if p.phase == PhaseDone {
		return p.transcript.String()
	}
	p.flushPending()
	if p.thinkOpen {
		p.transcript.WriteString(thinkClose)
		p.thinkOpen = false
	}
	p.phase = PhaseDone
	return p.transcript.String()
}

func (p *Processor) enterThinking() {
	if p.gate != nil && p.gate.Allow(headerThinking) {
		p.sink.Header(banner(headerThinking, p.now()))
	}
	p.transcript.WriteString(thinkOpen)
	p.thinkOpen = true
	p.phase = PhaseThinking
}

func (p *Processor) enterAnswering() {
	if p.thinkOpen {
		p.transcript.WriteString(thinkClose)
		p.thinkOpen = false
	}
	if p.gate != nil && p.gate.Allow(headerAnswer) {
		p.sink.Header(banner(headerAnswer, p.now()))
	}
	p.phase = PhaseAnswering
}

// flushPending appends the pending buffer verbatim to the transcript.
// Content goes in unmodified so the transcript is invariant under fragment
// partitioning; only the progress copy is trimmed for display.
func (p *Processor) flushPending() {
	if p.pending.Len() == 0 {
		return
	}
	text := p.pending.String()
	p.pending.Reset()
	p.transcript.WriteString(text)
	if trimmed := strings.TrimSpace(text); trimmed != "" {
		p.sink.Segment(trimmed)
	}
}

func banner(label string, ts time.Time) string {
	return "=== " + label + " (" + ts.Format("2006-01-02 15:04:05") + ") ==="
}

var thinkRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThinking removes all thinking blocks from a transcript, leaving only
// the final-answer text. An unterminated block is dropped to its end.
func StripThinking(transcript string) string {
	out := thinkRe.ReplaceAllString(transcript, "")
	if i := strings.Index(out, thinkOpen); i >= 0 {
		out = out[:i]
	}
	return out
}
