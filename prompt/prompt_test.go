package prompt

import (
	"strings"
	"testing"
	"time"

	"transformerbot/market"
	"transformerbot/store"
)

func testCandles(n int, base float64) []market.Candle {
	out := make([]market.Candle, n)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		px := base + float64(i)
		out[i] = market.Candle{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      px,
			High:      px + 1,
			Low:       px - 1,
			Close:     px + 0.5,
			Volume:    100,
		}
	}
	return out
}

func fixedBuilder() *Builder {
	b := NewBuilder("BTCUSDT", "5m")
	b.now = func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) }
	return b
}

func TestBuildFlatPrompt(t *testing.T) {
	b := fixedBuilder()
	m := market.NewContext("BTCUSDT", testCandles(30, 50000))

	got := b.Build(Input{Market: m})

	for _, want := range []string{
		"analyzing BTCUSDT on the 5m timeframe",
		"MARKET DATA:",
		"Raw OHLCV Data (Last 24 Candles):",
		"Timestamp,Open,High,Low,Close,Volume",
		"- Active Position Status: None",
		"- Previous Analysis: None",
		"No recent trades",
		"Signal: [BUY/SELL/HOLD]",
		"Position Size: [0.5-5%]",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(got, "Active Position:") {
		t.Error("flat prompt should have no active position block")
	}
	if strings.Contains(got, "Signal: [CLOSE/HOLD]") {
		t.Error("flat prompt should use the open-position template")
	}
}

func TestBuildWithPosition(t *testing.T) {
	b := fixedBuilder()
	m := market.NewContext("BTCUSDT", testCandles(30, 50000))
	pos := &store.Position{
		EntryPrice: 50000,
		StopLoss:   49000,
		TakeProfit: 52000,
		Size:       0.1,
		EntryTime:  time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		Direction:  store.Long,
	}

	got := b.Build(Input{Market: m, Position: pos})

	for _, want := range []string{
		"Active Position:",
		"- Direction: LONG",
		"- Entry Price: $50000.00",
		"- Duration: 2.0 hours",
		"Signal: [CLOSE/HOLD]",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(got, "Signal: [BUY/SELL/HOLD]") {
		t.Error("held-position prompt should not offer BUY/SELL")
	}
}

func TestBuildHistoryAndPrevious(t *testing.T) {
	b := fixedBuilder()
	pnl := 2.5
	in := Input{
		Market:           market.NewContext("BTCUSDT", testCandles(10, 100)),
		PreviousResponse: "prior cycle summary",
		History: []store.TradeDecision{
			{Timestamp: time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC), Action: "CLOSE_LONG", Price: 102, Confidence: "HIGH", PositionSize: 0.1, PnL: &pnl},
			{Timestamp: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), Action: "BUY", Price: 100, Confidence: "MEDIUM", PositionSize: 0.1},
		},
	}

	got := b.Build(in)

	if !strings.Contains(got, "- Previous Analysis: prior cycle summary") {
		t.Error("previous analysis not included")
	}
	if !strings.Contains(got, "CLOSE_LONG @ $102.00") || !strings.Contains(got, "pnl +2.50%") {
		t.Errorf("history entry with pnl not rendered:\n%s", got)
	}
	if !strings.Contains(got, "BUY @ $100.00") {
		t.Error("history entry without pnl not rendered")
	}
}

func TestBuildNoMarketData(t *testing.T) {
	got := fixedBuilder().Build(Input{})
	if !strings.Contains(got, "No OHLCV data available") {
		t.Error("empty market should render the no-data marker")
	}
	if strings.Contains(got, "MARKET SENTIMENT") {
		t.Error("sentiment section should be absent without data")
	}
}

func TestBuildSentimentSection(t *testing.T) {
	candles := testCandles(5, 100)
	candles[4].Sentiment = &market.SentimentPoint{Value: 72, Classification: "Greed", Label: "bullish"}
	got := fixedBuilder().Build(Input{Market: market.NewContext("BTCUSDT", candles)})

	if !strings.Contains(got, "MARKET SENTIMENT:\n- Fear & Greed Index: 72 (Greed, bullish)") {
		t.Errorf("sentiment section wrong:\n%s", got)
	}
}

func TestBuildCandleCapAndSections(t *testing.T) {
	got := fixedBuilder().Build(Input{Market: market.NewContext("BTCUSDT", testCandles(500, 100))})
	rows := strings.Count(got, ",100.00")
	if rows > maxPromptCandles {
		t.Errorf("got %d candle rows, want at most %d", rows, maxPromptCandles)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Error("sections should be joined by exactly one blank line")
	}
}
