package market

import (
	"testing"
	"time"
)

func mkCandles(closes ...float64) []Candle {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]Candle, len(closes))
	for i, c := range closes {
		out[i] = Candle{
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
			Open:      c - 1,
			High:      c + 2,
			Low:       c - 2,
			Close:     c,
			Volume:    10,
		}
	}
	return out
}

func TestNewPeriodMetrics(t *testing.T) {
	p := NewPeriod("test", mkCandles(100, 102, 104))
	m := p.Metrics

	if m.CandleCount != 3 {
		t.Errorf("candle count = %d", m.CandleCount)
	}
	if m.PriceChange != 4.0 { // (104-100)/100*100
		t.Errorf("price change = %v, want 4.0", m.PriceChange)
	}
	if m.VolumeAvg != 10 {
		t.Errorf("volume avg = %v", m.VolumeAvg)
	}
	if m.HighestPrice != 106 || m.LowestPrice != 98 {
		t.Errorf("high/low = %v/%v, want 106/98", m.HighestPrice, m.LowestPrice)
	}
	if m.AvgRange != 4 {
		t.Errorf("avg range = %v, want 4", m.AvgRange)
	}
	// momentum: (2+2)/3
	if diff := m.PriceMomentum - 4.0/3.0; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("momentum = %v", m.PriceMomentum)
	}
}

func TestNewPeriodEmpty(t *testing.T) {
	p := NewPeriod("empty", nil)
	if p.Metrics.CandleCount != 0 {
		t.Errorf("empty period should have zero metrics: %+v", p.Metrics)
	}
}

func TestPeriodsWindows(t *testing.T) {
	candles := make([]Candle, 500)
	for i := range candles {
		candles[i] = Candle{Close: 100, High: 101, Low: 99, Volume: 1}
	}
	periods := Periods(candles)
	if _, ok := periods["3D"]; !ok {
		t.Fatal("3D period always present")
	}
	if got := periods["1D"].Metrics.CandleCount; got != 288 {
		t.Errorf("1D window = %d candles, want 288", got)
	}
	if got := periods["2D"].Metrics.CandleCount; got != 432 {
		t.Errorf("2D window = %d candles, want 432", got)
	}

	small := Periods(candles[:100])
	if _, ok := small["1D"]; ok {
		t.Error("1D should be absent with fewer than 288 candles")
	}
	if got := small["3D"].Metrics.CandleCount; got != 100 {
		t.Errorf("3D should cover everything, got %d", got)
	}
}

func TestNewContext(t *testing.T) {
	candles := mkCandles(100, 101, 102)
	sp := SentimentPoint{Value: 70, Classification: "Greed", Label: "bullish"}
	candles[1].Sentiment = &sp

	ctx := NewContext("BTCUSDT", candles)
	if ctx.CurrentPrice != 102 {
		t.Errorf("current price = %v, want last close", ctx.CurrentPrice)
	}
	if ctx.Sentiment == nil || ctx.Sentiment.Label != "bullish" {
		t.Errorf("expected newest sentiment, got %+v", ctx.Sentiment)
	}
}

func TestSentimentLabel(t *testing.T) {
	cases := []struct {
		value          int
		classification string
		want           string
	}{
		{90, "Extreme Greed", "extremely_bullish"},
		{70, "Greed", "bullish"},
		{30, "Fear", "bearish"},
		{10, "Extreme Fear", "extremely_bearish"},
		{65, "Neutral", "slightly_bullish"},
		{35, "Neutral", "slightly_bearish"},
		{50, "Neutral", "neutral"},
	}
	for _, c := range cases {
		if got := SentimentLabel(c.value, c.classification); got != c.want {
			t.Errorf("SentimentLabel(%d, %q) = %q, want %q", c.value, c.classification, got, c.want)
		}
	}
}

func TestAttachSentiment(t *testing.T) {
	candles := mkCandles(100, 101)
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	points := []SentimentPoint{{Timestamp: day, Value: 80, Classification: "Extreme Greed", Label: "extremely_bullish"}}
	AttachSentiment(candles, points)
	for i := range candles {
		if candles[i].Sentiment == nil {
			t.Fatalf("candle %d missing sentiment", i)
		}
	}

	far := mkCandles(100)
	farPoints := []SentimentPoint{{Timestamp: day.Add(-72 * time.Hour), Value: 80}}
	AttachSentiment(far, farPoints)
	if far[0].Sentiment != nil {
		t.Error("sentiment older than 24h should not attach")
	}
}
