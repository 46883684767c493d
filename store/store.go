// Package store owns the durable trading state: the single open position,
// the append-only trade ledger and the previous-analysis cache. Files are
// written whole through a temp-file rename so a concurrent reader (the
// dashboard) sees either the old or the new content, never a torn write.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"transformerbot/decision"
)

// Direction of an open position.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Trade ledger actions.
const (
	ActionBuy        = "BUY"
	ActionSell       = "SELL"
	ActionCloseLong  = "CLOSE_LONG"
	ActionCloseShort = "CLOSE_SHORT"
)

// Position is the single open trade, if any.
type Position struct {
	EntryPrice float64             `json:"entry_price"`
	StopLoss   float64             `json:"stop_loss"`
	TakeProfit float64             `json:"take_profit"`
	Size       float64             `json:"size"` // fraction of portfolio
	EntryTime  time.Time           `json:"entry_time"`
	Confidence decision.Confidence `json:"confidence"`
	Direction  Direction           `json:"direction"`
}

// TradeDecision is one immutable ledger entry. PnL is set only on CLOSE_*
// actions, computed once at write time and never recomputed.
type TradeDecision struct {
	Timestamp    time.Time           `json:"timestamp"`
	Action       string              `json:"action"`
	Price        float64             `json:"price"`
	Confidence   decision.Confidence `json:"confidence"`
	StopLoss     float64             `json:"stop_loss"`
	TakeProfit   float64             `json:"take_profit"`
	PositionSize float64             `json:"position_size"`
	Reasoning    string              `json:"reasoning"`
	PnL          *float64            `json:"pnl,omitempty"`
}

// requiredFields are the ledger keys an entry must carry to be loadable.
var requiredFields = []string{
	"timestamp", "action", "price", "confidence",
	"stop_loss", "take_profit", "position_size", "reasoning",
}

// Store persists trading state under a data directory. Single writer: only
// the strategy goroutine calls the mutating methods.
type Store struct {
	dir          string
	positionFile string
	historyFile  string
	responseFile string
	log          zerolog.Logger
	recorder     *Recorder // optional ledger mirror
}

// New creates the data directory if needed and returns a Store.
func New(dir string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	return &Store{
		dir:          dir,
		positionFile: filepath.Join(dir, "positions.json"),
		historyFile:  filepath.Join(dir, "trade_history.json"),
		responseFile: filepath.Join(dir, "previous_response.json"),
		log:          log,
	}, nil
}

// SetRecorder attaches a database mirror receiving every ledger append.
func (s *Store) SetRecorder(r *Recorder) { s.recorder = r }

// writeJSONAtomic marshals v and renames a temp file over path, so readers
// never observe a partial write.
func (s *Store) writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// SavePosition persists the open position. A nil position means FLAT and
// removes the file.
func (s *Store) SavePosition(p *Position) error {
	if p == nil {
		err := os.Remove(s.positionFile)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to clear position: %w", err)
		}
		return nil
	}
	if err := s.writeJSONAtomic(s.positionFile, p); err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

// LoadPosition recovers the open position from disk. Absent file means FLAT
// (nil, nil); an unreadable file is logged and treated as FLAT so a corrupt
// record cannot stop the loop.
func (s *Store) LoadPosition() (*Position, error) {
	data, err := os.ReadFile(s.positionFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read position: %w", err)
	}
	var p Position
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Error().Err(err).Msg("position file corrupt, treating as flat")
		return nil, nil
	}
	if p.Confidence == "" {
		p.Confidence = decision.ConfidenceMedium
	}
	if p.Direction == "" {
		p.Direction = Long
	}
	return &p, nil
}

// SaveTradeDecision appends one ledger entry, attaching realized P&L to
// CLOSE_* actions from the nearest preceding unmatched opening entry.
func (s *Store) SaveTradeDecision(d TradeDecision) error {
	history := s.LoadTradeHistory()

	if d.Action == ActionCloseLong || d.Action == ActionCloseShort {
		pnl := calculatePnL(history, d.Price)
		d.PnL = &pnl
	}

	history = append(history, d)
	if err := s.writeJSONAtomic(s.historyFile, history); err != nil {
		return fmt.Errorf("failed to save trade decision: %w", err)
	}

	if s.recorder != nil {
		if err := s.recorder.Record(d); err != nil {
			s.log.Error().Err(err).Msg("failed to mirror trade decision to database")
		}
	}
	return nil
}

// LoadTradeHistory reads the full ledger, skipping entries that are missing
// any required field.
func (s *Store) LoadTradeHistory() []TradeDecision {
	data, err := os.ReadFile(s.historyFile)
	if err != nil {
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		s.log.Error().Err(err).Msg("trade history corrupt, starting empty")
		return nil
	}

	var history []TradeDecision
	for _, entry := range raw {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(entry, &fields); err != nil {
			continue
		}
		complete := true
		for _, f := range requiredFields {
			if _, ok := fields[f]; !ok {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}
		var d TradeDecision
		if err := json.Unmarshal(entry, &d); err != nil {
			continue
		}
		history = append(history, d)
	}
	return history
}

// LoadLastDecisions returns the n most recent ledger actions, newest first.
func (s *Store) LoadLastDecisions(n int) []TradeDecision {
	history := s.LoadTradeHistory()
	valid := history[:0:0]
	for _, d := range history {
		switch d.Action {
		case ActionBuy, ActionSell, ActionCloseLong, ActionCloseShort:
			valid = append(valid, d)
		}
	}
	sort.Slice(valid, func(i, j int) bool {
		return valid[i].Timestamp.After(valid[j].Timestamp)
	})
	if len(valid) > n {
		valid = valid[:n]
	}
	return valid
}

// calculatePnL computes realized P&L percent for a close at exitPrice
// against the most recent unmatched BUY/SELL entry:
// ((exit-entry)/entry)*size*100 for a long, mirrored for a short.
func calculatePnL(history []TradeDecision, exitPrice float64) float64 {
	for i := len(history) - 1; i >= 0; i-- {
		entry := history[i]
		if entry.Action != ActionBuy && entry.Action != ActionSell {
			continue
		}
		if entry.Price == 0 {
			return 0
		}
		if entry.Action == ActionBuy {
			return ((exitPrice - entry.Price) / entry.Price) * entry.PositionSize * 100
		}
		return ((entry.Price - exitPrice) / entry.Price) * entry.PositionSize * 100
	}
	return 0
}

// previousResponse is the cached transcript given to the next prompt.
type previousResponse struct {
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// SavePreviousResponse overwrites the analysis cache for the next cycle.
func (s *Store) SavePreviousResponse(response string) error {
	rec := previousResponse{Response: response, Timestamp: time.Now()}
	if err := s.writeJSONAtomic(s.responseFile, rec); err != nil {
		return fmt.Errorf("failed to save previous response: %w", err)
	}
	return nil
}

// LoadPreviousResponse returns the prior cycle's analysis, or "" when absent
// or unreadable.
func (s *Store) LoadPreviousResponse() string {
	data, err := os.ReadFile(s.responseFile)
	if err != nil {
		return ""
	}
	var rec previousResponse
	if err := json.Unmarshal(data, &rec); err != nil {
		s.log.Error().Err(err).Msg("previous response cache unreadable")
		return ""
	}
	return rec.Response
}
