package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process logger. Unknown levels fall back to info.
func New(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(out).With().Timestamp().Logger().Level(lvl)
}

// StreamSink receives incremental model output. Flushed segments and section
// headers go straight to the writer so the analysis stays readable while it
// streams; they bypass the structured log on purpose.
type StreamSink struct {
	w io.Writer
}

// NewStreamSink creates a sink writing to w. A nil writer means stdout.
func NewStreamSink(w io.Writer) *StreamSink {
	if w == nil {
		w = os.Stdout
	}
	return &StreamSink{w: w}
}

// Segment writes one flushed content segment.
func (s *StreamSink) Segment(text string) {
	fmt.Fprintf(s.w, "  %s\n", text)
}

// Header writes a section banner.
func (s *StreamSink) Header(text string) {
	fmt.Fprintf(s.w, "\n%s\n", text)
}
