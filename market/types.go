package market

import "time"

// Candle is one OHLCV sample for a fixed time bucket.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Sentiment *SentimentPoint // daily sentiment matched to this candle, if any
}

// SentimentPoint is one Fear & Greed index observation.
type SentimentPoint struct {
	Timestamp      time.Time
	Value          int
	Classification string
	Label          string // normalized sentiment label
}

// PeriodMetrics summarizes one lookback window of candles.
type PeriodMetrics struct {
	PriceChange     float64 // percent over the window
	VolumeAvg       float64
	PriceVolatility float64 // (max-min)/min percent
	HighestPrice    float64
	LowestPrice     float64
	AvgRange        float64 // mean high-low spread
	PriceMomentum   float64 // mean close-to-close delta
	CandleCount     int
}

// Period is a named lookback window with its metrics.
type Period struct {
	Name    string
	Candles []Candle
	Metrics PeriodMetrics
}

// NewPeriod computes metrics over the window.
func NewPeriod(name string, candles []Candle) Period {
	p := Period{Name: name, Candles: candles}
	if len(candles) == 0 {
		return p
	}

	first := candles[0].Close
	last := candles[len(candles)-1].Close

	var (
		volumeSum float64
		rangeSum  float64
		momentum  float64
		minClose  = candles[0].Close
		maxClose  = candles[0].Close
		highest   = candles[0].High
		lowest    = candles[0].Low
	)
	for i, c := range candles {
		volumeSum += c.Volume
		rangeSum += c.High - c.Low
		if c.Close < minClose {
			minClose = c.Close
		}
		if c.Close > maxClose {
			maxClose = c.Close
		}
		if c.High > highest {
			highest = c.High
		}
		if c.Low < lowest {
			lowest = c.Low
		}
		if i > 0 {
			momentum += c.Close - candles[i-1].Close
		}
	}

	n := float64(len(candles))
	m := PeriodMetrics{
		VolumeAvg:     volumeSum / n,
		HighestPrice:  highest,
		LowestPrice:   lowest,
		AvgRange:      rangeSum / n,
		PriceMomentum: momentum / n,
		CandleCount:   len(candles),
	}
	if first != 0 {
		m.PriceChange = (last - first) / first * 100
	}
	denom := minClose
	if denom == 0 {
		denom = 1
	}
	m.PriceVolatility = (maxClose - minClose) / denom * 100
	p.Metrics = m
	return p
}

// Periods splits candles into the standard 1D/2D/3D windows (counts assume
// 5m candles, matching the fetch limit).
func Periods(candles []Candle) map[string]Period {
	periods := make(map[string]Period)
	if len(candles) >= 288 {
		periods["1D"] = NewPeriod("1D", candles[len(candles)-288:])
	}
	if len(candles) >= 432 {
		periods["2D"] = NewPeriod("2D", candles[len(candles)-432:])
	}
	periods["3D"] = NewPeriod("3D", candles)
	return periods
}

// Context is the per-cycle market snapshot handed to the strategy and the
// prompt builder.
type Context struct {
	Symbol       string
	Candles      []Candle
	Periods      map[string]Period
	Sentiment    *SentimentPoint
	CurrentPrice float64
}

// NewContext assembles a snapshot from the latest fetch. The most recent
// candle's close is the current price; the newest candle carrying sentiment
// provides the context sentiment.
func NewContext(symbol string, candles []Candle) *Context {
	ctx := &Context{
		Symbol:  symbol,
		Candles: candles,
		Periods: Periods(candles),
	}
	if len(candles) > 0 {
		ctx.CurrentPrice = candles[len(candles)-1].Close
	}
	for i := len(candles) - 1; i >= 0; i-- {
		if candles[i].Sentiment != nil {
			ctx.Sentiment = candles[i].Sentiment
			break
		}
	}
	return ctx
}
