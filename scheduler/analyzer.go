package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"transformerbot/config"
	"transformerbot/decision"
	"transformerbot/market"
	"transformerbot/mcp"
	"transformerbot/prompt"
	"transformerbot/store"
	"transformerbot/strategy"
	"transformerbot/stream"
)

const sentimentHistoryDays = 30

// Analyzer runs one full decision cycle: market snapshot, model call,
// signal extraction, position update. One Analyzer serves the whole process
// lifetime; the header gate and sentiment cache live across cycles while
// each model call gets a fresh stream processor.
type Analyzer struct {
	cfg      *config.Config
	exchange *market.Exchange
	fng      *market.SentimentClient
	store    *store.Store
	strategy *strategy.Strategy
	client   *mcp.Client
	prompts  *prompt.Builder
	sink     stream.Sink
	gate     *stream.HeaderGate
	log      zerolog.Logger

	sentiment        []market.SentimentPoint
	sentimentFetched time.Time
}

func NewAnalyzer(
	cfg *config.Config,
	exchange *market.Exchange,
	fng *market.SentimentClient,
	st *store.Store,
	strat *strategy.Strategy,
	client *mcp.Client,
	sink stream.Sink,
	log zerolog.Logger,
) *Analyzer {
	return &Analyzer{
		cfg:      cfg,
		exchange: exchange,
		fng:      fng,
		store:    st,
		strategy: strat,
		client:   client,
		prompts:  prompt.NewBuilder(cfg.Exchange.Symbol, cfg.Exchange.Timeframe),
		sink:     sink,
		gate:     stream.NewHeaderGate(stream.DefaultHeaderGap),
		log:      log,
	}
}

// RunCycle performs one analysis pass. Any error aborts the cycle; the
// scheduler cools down and reschedules.
func (a *Analyzer) RunCycle(ctx context.Context) error {
	ex := a.cfg.Exchange
	candles, err := a.exchange.FetchCandles(ctx, ex.Symbol, ex.Timeframe, ex.Limit)
	if err != nil {
		return fmt.Errorf("market data: %w", err)
	}
	a.attachSentiment(ctx, candles)

	snapshot := market.NewContext(ex.Symbol, candles)
	price := snapshot.CurrentPrice
	a.log.Info().Str("symbol", ex.Symbol).Float64("price", price).Msg("market snapshot ready")

	closedByBreach := a.strategy.CheckPosition(price)

	in := prompt.Input{
		Market:           snapshot,
		Position:         a.strategy.Position(),
		History:          a.store.LoadLastDecisions(prompt.HistoryDepth),
		PreviousResponse: a.store.LoadPreviousResponse(),
	}

	a.log.Info().Msg("performing market analysis...")
	proc := stream.NewProcessor(a.sink, a.gate)
	transcript, err := a.client.SendPrompt(ctx, a.prompts.Build(in), proc)
	if err != nil {
		return fmt.Errorf("model call: %w", err)
	}

	answer := stream.StripThinking(transcript)
	if err := a.store.SavePreviousResponse(answer); err != nil {
		a.log.Warn().Err(err).Msg("failed to persist analysis response")
	}

	sig := decision.Extract(answer)
	a.log.Info().
		Str("signal", string(sig.Signal)).
		Str("confidence", string(sig.Confidence)).
		Msg("extracted trading signal")

	if closedByBreach {
		a.log.Info().Msg("position already closed by breach this cycle, signal not applied")
		return nil
	}
	a.strategy.Apply(sig, price)
	return nil
}

// attachSentiment refreshes the Fear & Greed cache when stale and matches it
// onto the candles. Sentiment is advisory: fetch failures are logged and the
// cycle continues without it.
func (a *Analyzer) attachSentiment(ctx context.Context, candles []market.Candle) {
	refresh := time.Duration(a.cfg.Trading.SentimentRefreshSeconds) * time.Second
	if len(a.sentiment) == 0 || time.Since(a.sentimentFetched) >= refresh {
		points, err := a.fng.FetchIndex(ctx, sentimentHistoryDays)
		if err != nil {
			a.log.Warn().Err(err).Msg("sentiment fetch failed, continuing without")
		} else {
			a.sentiment = points
			a.sentimentFetched = time.Now()
		}
	}
	market.AttachSentiment(candles, a.sentiment)
}
