// Package prompt renders the per-cycle analysis prompt from the market
// snapshot, the persisted position and the recent trade record.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"transformerbot/market"
	"transformerbot/store"
)

const (
	// maxPromptCandles caps the raw OHLCV table; older rows add tokens
	// without adding signal.
	maxPromptCandles = 24
	// HistoryDepth is how many recent decisions the prompt includes.
	HistoryDepth = 5
)

// Input carries everything one prompt needs.
type Input struct {
	Market           *market.Context
	Position         *store.Position
	History          []store.TradeDecision
	PreviousResponse string
}

// Builder assembles analysis prompts for a fixed symbol/timeframe pair.
type Builder struct {
	symbol    string
	timeframe string
	now       func() time.Time
}

func NewBuilder(symbol, timeframe string) *Builder {
	return &Builder{symbol: symbol, timeframe: timeframe, now: time.Now}
}

// Build joins the non-empty sections with blank lines.
func (b *Builder) Build(in Input) string {
	sections := []string{
		b.header(),
		b.marketData(in.Market),
		b.tradingContext(in),
		b.periodMetrics(in.Market),
		b.positionManagement(in),
		b.analysisSteps(),
		b.decisionTemplate(in.Position),
		b.sentiment(in.Market),
	}
	kept := sections[:0]
	for _, s := range sections {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "\n\n")
}

func (b *Builder) header() string {
	return fmt.Sprintf("You are a professional futures crypto trader analyzing %s on the %s timeframe. "+
		"Provide clear, structured analysis with concrete numbers from the data. "+
		"Consider both long and short opportunities.", b.symbol, b.timeframe)
}

func (b *Builder) marketData(m *market.Context) string {
	if m == nil || len(m.Candles) == 0 {
		return "MARKET DATA:\nNo OHLCV data available"
	}

	candles := m.Candles
	if len(candles) > maxPromptCandles {
		candles = candles[len(candles)-maxPromptCandles:]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "MARKET DATA:\nRaw OHLCV Data (Last %d Candles):\n", len(candles))
	sb.WriteString("Timestamp,Open,High,Low,Close,Volume\n")
	for _, c := range candles {
		fmt.Fprintf(&sb, "%s,%.4f,%.4f,%.4f,%.4f,%.2f\n",
			c.Timestamp.Format("2006-01-02 15:04"),
			c.Open, c.High, c.Low, c.Close, c.Volume)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Builder) tradingContext(in Input) string {
	now := b.now()

	var sb strings.Builder
	sb.WriteString("TRADING CONTEXT:\n")
	fmt.Fprintf(&sb, "- Current Day: %s\n", now.Weekday())
	if in.Market != nil {
		fmt.Fprintf(&sb, "- Current Price: $%.2f\n", in.Market.CurrentPrice)
	}
	fmt.Fprintf(&sb, "- Analysis Time: %s\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "- Timeframe: %s\n", b.timeframe)
	sb.WriteString("- Market Type: Futures")

	if p := in.Position; p != nil && in.Market != nil {
		price := in.Market.CurrentPrice
		diff := price - p.EntryPrice
		if p.Direction == store.Short {
			diff = p.EntryPrice - price
		}
		var pl float64
		if p.EntryPrice != 0 {
			pl = diff / p.EntryPrice * 100
		}
		status := "Profit"
		if diff <= 0 {
			status = "Loss"
		}
		sb.WriteString("\n\nActive Position:\n")
		fmt.Fprintf(&sb, "- Direction: %s\n", p.Direction)
		fmt.Fprintf(&sb, "- Entry Price: $%.2f\n", p.EntryPrice)
		fmt.Fprintf(&sb, "- Current Price: $%.2f\n", price)
		fmt.Fprintf(&sb, "- P/L: %+.2f%% (%s)\n", pl, status)
		fmt.Fprintf(&sb, "- Distance to SL: $%.2f\n", abs(price-p.StopLoss))
		fmt.Fprintf(&sb, "- Distance to TP: $%.2f\n", abs(price-p.TakeProfit))
		fmt.Fprintf(&sb, "- Duration: %.1f hours\n", now.Sub(p.EntryTime).Hours())
		fmt.Fprintf(&sb, "- Stop Loss: $%.2f\n", p.StopLoss)
		fmt.Fprintf(&sb, "- Take Profit: $%.2f", p.TakeProfit)
	}
	return sb.String()
}

func (b *Builder) periodMetrics(m *market.Context) string {
	if m == nil || len(m.Periods) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("MARKET PERIOD METRICS:")
	for _, name := range []string{"1D", "2D", "3D"} {
		p, ok := m.Periods[name]
		if !ok {
			continue
		}
		met := p.Metrics
		fmt.Fprintf(&sb, "\n\nPeriod Name: %s\n", name)
		fmt.Fprintf(&sb, "- price_change: %+.2f%%\n", met.PriceChange)
		fmt.Fprintf(&sb, "- volume_avg: %.2f\n", met.VolumeAvg)
		fmt.Fprintf(&sb, "- price_volatility: %.2f%%\n", met.PriceVolatility)
		fmt.Fprintf(&sb, "- highest_price: %.2f\n", met.HighestPrice)
		fmt.Fprintf(&sb, "- lowest_price: %.2f\n", met.LowestPrice)
		fmt.Fprintf(&sb, "- avg_range: %.2f\n", met.AvgRange)
		fmt.Fprintf(&sb, "- price_momentum: %+.4f\n", met.PriceMomentum)
		fmt.Fprintf(&sb, "- candle_count: %d", met.CandleCount)
	}
	return sb.String()
}

func (b *Builder) positionManagement(in Input) string {
	var sb strings.Builder
	sb.WriteString("POSITION MANAGEMENT:\n")
	if in.Position != nil {
		fmt.Fprintf(&sb, "- Active Position Status: %s from $%.2f (SL $%.2f / TP $%.2f)\n",
			in.Position.Direction, in.Position.EntryPrice, in.Position.StopLoss, in.Position.TakeProfit)
	} else {
		sb.WriteString("- Active Position Status: None\n")
	}
	if in.PreviousResponse != "" {
		fmt.Fprintf(&sb, "- Previous Analysis: %s\n", in.PreviousResponse)
	} else {
		sb.WriteString("- Previous Analysis: None\n")
	}

	sb.WriteString("\nRecent Trade History:")
	if len(in.History) == 0 {
		sb.WriteString("\nNo recent trades")
		return sb.String()
	}
	for _, d := range in.History {
		fmt.Fprintf(&sb, "\n- %s %s @ $%.2f (confidence %s, size %.2f)",
			d.Timestamp.Format("2006-01-02 15:04"), d.Action, d.Price, d.Confidence, d.PositionSize)
		if d.PnL != nil {
			fmt.Fprintf(&sb, " pnl %+.2f%%", *d.PnL)
		}
	}
	return sb.String()
}

func (b *Builder) analysisSteps() string {
	return fmt.Sprintf(`ANALYSIS STEPS:
1. Analyze price action and volume patterns
2. Evaluate position context and trade history
3. Check momentum shifts across the period metrics
4. Validate support/resistance levels
5. Calculate risk/reward scenarios
6. Target at least 1%% profit per trade
7. Prioritize setups with multiple confirming signals
8. When you respond, remember the next analysis runs after one %s step and your current response is saved as context for it.`, b.timeframe)
}

func (b *Builder) decisionTemplate(p *store.Position) string {
	if p != nil {
		return `TRADING_DECISION:
Signal: [CLOSE/HOLD]
Confidence: [HIGH/MEDIUM/LOW]
Stop Loss: [Price]
Take Profit: [Price]

Note: Signal must be exactly as shown in brackets.`
	}
	return `TRADING_DECISION:
Signal: [BUY/SELL/HOLD]
Confidence: [HIGH/MEDIUM/LOW]
Entry Price: [Current]
Stop Loss: [Price]
Take Profit: [Price]
Position Size: [0.5-5%]

Note:
- BUY = Open long position
- SELL = Open short position
- Signal must be exactly as shown in brackets.`
}

func (b *Builder) sentiment(m *market.Context) string {
	if m == nil || m.Sentiment == nil {
		return ""
	}
	return fmt.Sprintf("MARKET SENTIMENT:\n- Fear & Greed Index: %d (%s, %s)",
		m.Sentiment.Value, m.Sentiment.Classification, m.Sentiment.Label)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
