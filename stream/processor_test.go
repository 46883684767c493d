package stream

import (
	"strings"
	"testing"
	"time"
)

type captureSink struct {
	segments []string
	headers  []string
}

func (c *captureSink) Segment(text string) { c.segments = append(c.segments, text) }
func (c *captureSink) Header(text string)  { c.headers = append(c.headers, text) }

// partition splits s into chunks of size n.
func partition(s string, n int) []string {
	var out []string
	for len(s) > 0 {
		if len(s) < n {
			n = len(s)
		}
		out = append(out, s[:n])
		s = s[n:]
	}
	return out
}

func TestAnswerPartitionInvariance(t *testing.T) {
	reasoning := "Let me look at the moving averages.\n\nRSI is oversold, momentum is turning."
	answer := "Signal: BUY\nConfidence: HIGH\nStop Loss: 98000\nTake Profit: 104000\n"

	for _, size := range []int{1, 3, 7, 50, 1000} {
		p := NewProcessor(nil, nil)
		for _, chunk := range partition(reasoning, size) {
			p.Ingest(Fragment{Channel: ChannelReasoning, Text: chunk})
		}
		for _, chunk := range partition(answer, size) {
			p.Ingest(Fragment{Channel: ChannelAnswer, Text: chunk})
		}
		transcript := p.Finish()

		if got := StripThinking(transcript); got != answer {
			t.Errorf("partition size %d: stripped transcript = %q, want %q", size, got, answer)
		}
		if !strings.Contains(transcript, reasoning) {
			t.Errorf("partition size %d: transcript lost reasoning content", size)
		}
	}
}

func TestPhaseTransitions(t *testing.T) {
	p := NewProcessor(nil, nil)
	if p.Phase() != PhaseIdle {
		t.Fatalf("initial phase = %v, want idle", p.Phase())
	}
	p.Ingest(Fragment{Channel: ChannelReasoning, Text: "hmm"})
	if p.Phase() != PhaseThinking {
		t.Fatalf("phase after reasoning = %v, want thinking", p.Phase())
	}
	p.Ingest(Fragment{Channel: ChannelAnswer, Text: "Signal: HOLD"})
	if p.Phase() != PhaseAnswering {
		t.Fatalf("phase after answer = %v, want answering", p.Phase())
	}
	p.Finish()
	if p.Phase() != PhaseDone {
		t.Fatalf("phase after finish = %v, want done", p.Phase())
	}
}

func TestEmptyFragmentsDoNotTransition(t *testing.T) {
	p := NewProcessor(nil, nil)
	p.Ingest(Fragment{Channel: ChannelReasoning, Text: ""})
	if p.Phase() != PhaseIdle {
		t.Fatalf("empty fragment moved phase to %v", p.Phase())
	}
	if got := p.Finish(); got != "" {
		t.Fatalf("expected empty transcript, got %q", got)
	}
}

func TestThinkingMarkersWrapped(t *testing.T) {
	p := NewProcessor(nil, nil)
	p.Ingest(Fragment{Channel: ChannelReasoning, Text: "pondering"})
	p.Ingest(Fragment{Channel: ChannelAnswer, Text: "Signal: HOLD"})
	transcript := p.Finish()

	want := "<think>pondering</think>Signal: HOLD"
	if transcript != want {
		t.Errorf("transcript = %q, want %q", transcript, want)
	}
}

func TestReasoningResumesAfterAnswer(t *testing.T) {
	p := NewProcessor(nil, nil)
	p.Ingest(Fragment{Channel: ChannelReasoning, Text: "first thought"})
	p.Ingest(Fragment{Channel: ChannelAnswer, Text: "partial answer. "})
	p.Ingest(Fragment{Channel: ChannelReasoning, Text: "second thought"})
	p.Ingest(Fragment{Channel: ChannelAnswer, Text: "final answer"})
	transcript := p.Finish()

	if got, want := StripThinking(transcript), "partial answer. final answer"; got != want {
		t.Errorf("stripped = %q, want %q", got, want)
	}
	if strings.Count(transcript, thinkOpen) != 2 || strings.Count(transcript, thinkClose) != 2 {
		t.Errorf("expected two balanced think blocks, got %q", transcript)
	}
}

func TestAbortClosesOpenMarker(t *testing.T) {
	p := NewProcessor(nil, nil)
	p.Ingest(Fragment{Channel: ChannelReasoning, Text: "interrupted thou"})
	transcript := p.Abort()

	if !strings.HasSuffix(transcript, thinkClose) {
		t.Errorf("aborted transcript should close the think marker: %q", transcript)
	}
	if !strings.Contains(transcript, "interrupted thou") {
		t.Errorf("aborted transcript lost buffered content: %q", transcript)
	}
	if p.Phase() != PhaseDone {
		t.Errorf("abort should move to done, got %v", p.Phase())
	}
}

func TestFlushOnParagraphBreakAndThreshold(t *testing.T) {
	sink := &captureSink{}
	p := NewProcessor(sink, nil)

	p.Ingest(Fragment{Channel: ChannelAnswer, Text: "short para\n\n"})
	if len(sink.segments) != 1 {
		t.Fatalf("paragraph break should flush, got %d segments", len(sink.segments))
	}

	long := strings.Repeat("x", flushThreshold)
	p.Ingest(Fragment{Channel: ChannelAnswer, Text: long})
	if len(sink.segments) != 2 {
		t.Fatalf("threshold should flush, got %d segments", len(sink.segments))
	}

	p.Ingest(Fragment{Channel: ChannelAnswer, Text: "tail"})
	if len(sink.segments) != 2 {
		t.Fatalf("short tail should stay buffered, got %d segments", len(sink.segments))
	}
	p.Finish()
	if len(sink.segments) != 3 || sink.segments[2] != "tail" {
		t.Fatalf("finish should flush the tail, got %v", sink.segments)
	}
}

func TestHeaderGateSuppressesWithinGap(t *testing.T) {
	fake := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	g := NewHeaderGate(DefaultHeaderGap)
	g.now = func() time.Time { return fake }

	if !g.Allow(headerThinking) {
		t.Fatal("first banner should be allowed")
	}
	fake = fake.Add(2 * time.Second)
	if g.Allow(headerAnswer) {
		t.Fatal("banner within 5s gap should be suppressed")
	}
	fake = fake.Add(10 * time.Second)
	if !g.Allow(headerAnswer) {
		t.Fatal("banner after the gap should be allowed")
	}
	// same label never repeats within one process run
	fake = fake.Add(time.Hour)
	if g.Allow(headerThinking) {
		t.Fatal("duplicate banner label should be suppressed")
	}
}

func TestSuppressedHeaderKeepsContent(t *testing.T) {
	fake := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	g := NewHeaderGate(DefaultHeaderGap)
	g.now = func() time.Time { return fake }

	sink := &captureSink{}
	p := NewProcessor(sink, g)
	p.Ingest(Fragment{Channel: ChannelReasoning, Text: "thinking hard"})
	fake = fake.Add(time.Second)
	p.Ingest(Fragment{Channel: ChannelAnswer, Text: "Signal: BUY"})
	transcript := p.Finish()

	if len(sink.headers) != 1 {
		t.Fatalf("expected exactly one banner, got %v", sink.headers)
	}
	if got := StripThinking(transcript); got != "Signal: BUY" {
		t.Errorf("suppressed banner must not lose content, got %q", got)
	}
}

func TestStripThinkingUnterminated(t *testing.T) {
	if got := StripThinking("prefix<think>never closed"); got != "prefix" {
		t.Errorf("unterminated block should be dropped, got %q", got)
	}
}
