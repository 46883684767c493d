// Package strategy owns the position lifecycle: FLAT or one OPEN position,
// breach checks against stop-loss/take-profit each cycle, and application of
// extracted signals. Every transition is written through the store before
// the cycle continues.
package strategy

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"transformerbot/config"
	"transformerbot/decision"
	"transformerbot/store"
)

// Strategy is the lifecycle state machine. Single-writer: only the scheduler
// goroutine calls its methods.
type Strategy struct {
	cfg      config.TradingConfig
	store    *store.Store
	log      zerolog.Logger
	position *store.Position // nil = FLAT
}

// New loads any persisted position so a restart resumes where the previous
// run stopped.
func New(cfg config.TradingConfig, st *store.Store, log zerolog.Logger) (*Strategy, error) {
	pos, err := st.LoadPosition()
	if err != nil {
		return nil, fmt.Errorf("failed to recover position: %w", err)
	}
	if pos != nil {
		log.Info().
			Str("direction", string(pos.Direction)).
			Float64("entry", pos.EntryPrice).
			Msg("recovered open position from disk")
	}
	return &Strategy{cfg: cfg, store: st, log: log, position: pos}, nil
}

// Position returns the current open position, nil when flat.
func (s *Strategy) Position() *store.Position {
	return s.position
}

// CheckPosition evaluates stop-loss/take-profit breaches against the latest
// price and closes the position when crossed. Returns true when a close
// happened; the caller skips signal application for that tick.
func (s *Strategy) CheckPosition(currentPrice float64) bool {
	if s.position == nil {
		return false
	}

	var reason string
	switch s.position.Direction {
	case store.Long:
		if currentPrice <= s.position.StopLoss {
			reason = "stop_loss"
		} else if currentPrice >= s.position.TakeProfit {
			reason = "take_profit"
		}
	case store.Short:
		if currentPrice >= s.position.StopLoss {
			reason = "stop_loss"
		} else if currentPrice <= s.position.TakeProfit {
			reason = "take_profit"
		}
	}
	if reason == "" {
		return false
	}
	s.ClosePosition(currentPrice, reason)
	return true
}

// ClosePosition records a CLOSE_* ledger entry with realized P&L and
// transitions to FLAT. No-op when already flat.
func (s *Strategy) ClosePosition(currentPrice float64, reason string) {
	if s.position == nil {
		return
	}

	confidence := s.position.Confidence
	if confidence == "" {
		confidence = decision.ConfidenceHigh
	}

	d := store.TradeDecision{
		Timestamp:    time.Now(),
		Action:       "CLOSE_" + string(s.position.Direction),
		Price:        currentPrice,
		Confidence:   confidence,
		StopLoss:     s.position.StopLoss,
		TakeProfit:   s.position.TakeProfit,
		PositionSize: s.position.Size,
		Reasoning:    "Position closed: " + reason,
	}

	s.log.Info().
		Str("direction", string(s.position.Direction)).
		Str("reason", reason).
		Float64("price", currentPrice).
		Msg("closing position")

	if err := s.store.SaveTradeDecision(d); err != nil {
		s.log.Error().Err(err).Msg("failed to persist close decision")
	}
	if err := s.store.SavePosition(nil); err != nil {
		// Losing the durable record of a close is the condition that must
		// reach an operator.
		s.log.Error().Err(err).Msg("ALERT: failed to clear persisted position")
	}
	s.position = nil
}

// Apply feeds one extracted signal through the state machine.
func (s *Strategy) Apply(sig decision.TradingSignal, currentPrice float64) {
	s.log.Info().
		Str("signal", string(sig.Signal)).
		Str("confidence", string(sig.Confidence)).
		Msg("extracted signal")

	if s.position != nil {
		if sig.Signal == decision.SignalClose {
			s.log.Info().Msg("closing position on analysis signal")
			s.ClosePosition(currentPrice, "analysis_signal")
			return
		}
		if err := s.updateParameters(sig.StopLoss, sig.TakeProfit); err != nil {
			// Position vanished under us; favor loop availability and force
			// the state back to flat.
			s.log.Warn().Err(err).Msg("position appears to be already closed")
			s.position = nil
		}
		return
	}

	switch sig.Signal {
	case decision.SignalBuy, decision.SignalSell:
		s.openPosition(sig, currentPrice)
	case decision.SignalClose:
		s.log.Warn().Msg("received CLOSE signal without open position")
	default:
		s.log.Info().Str("signal", string(sig.Signal)).Msg("no actionable trading signal")
	}
}

// updateParameters adjusts stop-loss/take-profit in place when the analysis
// provided different values. Adjustments persist but write no ledger entry.
func (s *Strategy) updateParameters(stopLoss, takeProfit *float64) error {
	if s.position == nil {
		return fmt.Errorf("no open position to adjust")
	}

	updated := false
	if stopLoss != nil && *stopLoss != 0 && *stopLoss != s.position.StopLoss {
		s.position.StopLoss = *stopLoss
		s.log.Info().Float64("stop_loss", *stopLoss).Msg("updated stop loss")
		updated = true
	}
	if takeProfit != nil && *takeProfit != 0 && *takeProfit != s.position.TakeProfit {
		s.position.TakeProfit = *takeProfit
		s.log.Info().Float64("take_profit", *takeProfit).Msg("updated take profit")
		updated = true
	}
	if updated {
		if err := s.store.SavePosition(s.position); err != nil {
			s.log.Error().Err(err).Msg("failed to persist position adjustment")
		}
	}
	return nil
}

// openPosition creates a new position from a BUY/SELL signal, filling
// stop-loss, take-profit and size from configured defaults when the
// analysis omitted them. Model-provided levels are accepted as-is, even
// when inverted for the direction; that policy choice matches observed
// model behavior.
func (s *Strategy) openPosition(sig decision.TradingSignal, currentPrice float64) {
	var (
		direction          store.Direction
		defaultSL, defaultTP float64
	)
	switch sig.Signal {
	case decision.SignalBuy:
		direction = store.Long
		defaultSL = currentPrice * (1 - s.cfg.DefaultStopLossPct)
		defaultTP = currentPrice * (1 + s.cfg.DefaultTakeProfitPct)
	case decision.SignalSell:
		direction = store.Short
		defaultSL = currentPrice * (1 + s.cfg.DefaultStopLossPct)
		defaultTP = currentPrice * (1 - s.cfg.DefaultTakeProfitPct)
	default:
		s.log.Error().Str("signal", string(sig.Signal)).Msg("invalid signal for position opening")
		return
	}

	stopLoss := defaultSL
	if sig.StopLoss != nil && *sig.StopLoss != 0 {
		stopLoss = *sig.StopLoss
	}
	takeProfit := defaultTP
	if sig.TakeProfit != nil && *sig.TakeProfit != 0 {
		takeProfit = *sig.TakeProfit
	}
	size := s.cfg.DefaultPositionSize
	if sig.PositionSize != nil {
		size = *sig.PositionSize
	}

	s.position = &store.Position{
		EntryPrice: currentPrice,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Size:       size,
		EntryTime:  time.Now(),
		Confidence: sig.Confidence,
		Direction:  direction,
	}

	d := store.TradeDecision{
		Timestamp:    time.Now(),
		Action:       string(sig.Signal),
		Price:        currentPrice,
		Confidence:   sig.Confidence,
		StopLoss:     stopLoss,
		TakeProfit:   takeProfit,
		PositionSize: size,
		Reasoning:    fmt.Sprintf("Opened new %s position", direction),
	}

	s.log.Info().
		Str("direction", string(direction)).
		Float64("entry", currentPrice).
		Float64("stop_loss", stopLoss).
		Float64("take_profit", takeProfit).
		Float64("size", size).
		Msg("opening position")

	if err := s.store.SavePosition(s.position); err != nil {
		s.log.Error().Err(err).Msg("failed to persist new position")
	}
	if err := s.store.SaveTradeDecision(d); err != nil {
		s.log.Error().Err(err).Msg("failed to persist open decision")
	}
}
