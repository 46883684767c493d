// Package decision turns a model's final-answer text into a structured
// trading signal. Extraction is tolerant by contract: malformed or missing
// fields degrade to defaults, never to an error. Cross-field validation
// (stop-loss vs take-profit ordering) deliberately does not happen here; the
// strategy layer owns whatever validation policy applies.
package decision

import (
	"regexp"
	"strconv"
	"strings"
)

// Signal is the trading action extracted from an analysis.
type Signal string

const (
	SignalBuy   Signal = "BUY"
	SignalSell  Signal = "SELL"
	SignalClose Signal = "CLOSE"
	SignalHold  Signal = "HOLD"
)

// Confidence is the model's stated conviction.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// TradingSignal is the decision tuple consumed by the strategy layer.
// Pointer fields are nil when the analysis did not provide them.
type TradingSignal struct {
	Signal       Signal
	Confidence   Confidence
	StopLoss     *float64
	TakeProfit   *float64
	PositionSize *float64 // fraction of portfolio, 0-1
}

var (
	signalRe     = regexp.MustCompile(`Signal:[\s*]*\[?(CLOSE|BUY|SELL|HOLD)]?`)
	confidenceRe = regexp.MustCompile(`Confidence:[\s*]*\[?(HIGH|MEDIUM|LOW)]?`)
	stopLossRe   = regexp.MustCompile(`Stop Loss:[\s*]*\$?([0-9,.]+)`)
	takeProfitRe = regexp.MustCompile(`Take Profit:[\s*]*\$?([0-9,.]+)`)
	positionRe   = regexp.MustCompile(`(?i)Position Size:[\s*]*\[?(\d+(?:\.\d+)?)]?%?(?:\s+of\s+portfolio)?`)
)

// Extract parses the final-answer text (thinking markers already stripped)
// into a TradingSignal. Absent signal defaults to HOLD, absent confidence to
// MEDIUM, the numeric fields to nil.
func Extract(text string) TradingSignal {
	out := TradingSignal{Signal: SignalHold, Confidence: ConfidenceMedium}

	if m := signalRe.FindStringSubmatch(text); m != nil {
		out.Signal = Signal(m[1])
	}
	if m := confidenceRe.FindStringSubmatch(text); m != nil {
		out.Confidence = Confidence(m[1])
	}
	out.StopLoss = extractPrice(stopLossRe, text)
	out.TakeProfit = extractPrice(takeProfitRe, text)
	out.PositionSize = extractPositionSize(text)

	return out
}

func extractPrice(re *regexp.Regexp, text string) *float64 {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return nil
	}
	return &v
}

// extractPositionSize reads a percentage and converts it to a 0-1 fraction.
func extractPositionSize(text string) *float64 {
	m := positionRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	frac := pct / 100
	return &frac
}

// Canonical re-serializes the signal in the label format Extract parses, so
// extraction is idempotent over its own output.
func (s TradingSignal) Canonical() string {
	var b strings.Builder
	b.WriteString("Signal: " + string(s.Signal) + "\n")
	b.WriteString("Confidence: " + string(s.Confidence) + "\n")
	if s.StopLoss != nil {
		b.WriteString("Stop Loss: " + strconv.FormatFloat(*s.StopLoss, 'f', -1, 64) + "\n")
	}
	if s.TakeProfit != nil {
		b.WriteString("Take Profit: " + strconv.FormatFloat(*s.TakeProfit, 'f', -1, 64) + "\n")
	}
	if s.PositionSize != nil {
		b.WriteString("Position Size: " + strconv.FormatFloat(*s.PositionSize*100, 'f', -1, 64) + "%\n")
	}
	return b.String()
}
