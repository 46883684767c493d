// Package market fetches candles, exchange time and the Fear & Greed index.
package market

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog"

	"transformerbot/retry"
)

// ErrNoCandles is returned when the exchange responds with an empty candle
// set; a cycle cannot proceed without market data.
var ErrNoCandles = errors.New("exchange returned no candles")

// Exchange fetches market data from Binance. All calls go through the retry
// wrapper with the default unbounded policy.
type Exchange struct {
	client *binance.Client
	policy retry.Policy
	log    zerolog.Logger
	timing *retry.TimingManager
}

// NewExchange creates a public (keyless) Binance client; candle and server
// time endpoints need no authentication.
func NewExchange(log zerolog.Logger, timing *retry.TimingManager) *Exchange {
	return &Exchange{
		client: binance.NewClient("", ""),
		policy: retry.DefaultPolicy(),
		log:    log,
		timing: timing,
	}
}

// FetchCandles returns up to limit OHLCV rows for the symbol/timeframe,
// oldest first. An empty result is a hard failure for the cycle.
func (e *Exchange) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	start := time.Now()
	defer func() { e.timing.Record("fetch_candles", time.Since(start)) }()

	klines, err := retry.Do(ctx, e.log, symbol, e.policy, retry.Classify,
		func(ctx context.Context) ([]*binance.Kline, error) {
			return e.client.NewKlinesService().
				Symbol(symbol).
				Interval(timeframe).
				Limit(limit).
				Do(ctx)
		})
	if err != nil {
		return nil, fmt.Errorf("klines fetch for %s failed: %w", symbol, err)
	}
	if len(klines) == 0 {
		return nil, ErrNoCandles
	}

	candles := make([]Candle, 0, len(klines))
	for _, k := range klines {
		c, err := parseKline(k)
		if err != nil {
			e.log.Warn().Err(err).Int64("open_time", k.OpenTime).Msg("skipping unparseable kline")
			continue
		}
		candles = append(candles, c)
	}
	if len(candles) == 0 {
		return nil, ErrNoCandles
	}
	return candles, nil
}

func parseKline(k *binance.Kline) (Candle, error) {
	var (
		c   Candle
		err error
	)
	c.Timestamp = time.UnixMilli(k.OpenTime)
	if c.Open, err = strconv.ParseFloat(k.Open, 64); err != nil {
		return c, fmt.Errorf("bad open %q: %w", k.Open, err)
	}
	if c.High, err = strconv.ParseFloat(k.High, 64); err != nil {
		return c, fmt.Errorf("bad high %q: %w", k.High, err)
	}
	if c.Low, err = strconv.ParseFloat(k.Low, 64); err != nil {
		return c, fmt.Errorf("bad low %q: %w", k.Low, err)
	}
	if c.Close, err = strconv.ParseFloat(k.Close, 64); err != nil {
		return c, fmt.Errorf("bad close %q: %w", k.Close, err)
	}
	if c.Volume, err = strconv.ParseFloat(k.Volume, 64); err != nil {
		return c, fmt.Errorf("bad volume %q: %w", k.Volume, err)
	}
	return c, nil
}

// ServerTime returns the exchange clock, used for boundary drift correction.
// The caller falls back to local time on error.
func (e *Exchange) ServerTime(ctx context.Context) (time.Time, error) {
	ms, err := retry.Do(ctx, e.log, "server_time",
		retry.Policy{MaxRetries: 2, InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 10 * time.Second},
		retry.Classify,
		func(ctx context.Context) (int64, error) {
			return e.client.NewServerTimeService().Do(ctx)
		})
	if err != nil {
		return time.Time{}, fmt.Errorf("server time fetch failed: %w", err)
	}
	return time.UnixMilli(ms), nil
}
