package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Recorder mirrors every ledger append into a SQL database so the dashboard
// can query history without re-reading the JSON ledger. SQLite by default,
// PostgreSQL when a connection string is configured. The JSON ledger stays
// the source of truth; a recorder failure is logged and otherwise ignored.
type Recorder struct {
	db         *sql.DB
	isPostgres bool
	log        zerolog.Logger
}

// NewRecorder opens the mirror database. databaseURL selects PostgreSQL;
// when empty, sqlitePath is used.
func NewRecorder(databaseURL, sqlitePath string, log zerolog.Logger) (*Recorder, error) {
	var (
		db  *sql.DB
		err error
		pg  bool
	)
	if databaseURL != "" {
		db, err = sql.Open("postgres", databaseURL)
		pg = true
	} else {
		if dir := filepath.Dir(sqlitePath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create recorder dir: %w", err)
			}
		}
		db, err = sql.Open("sqlite", sqlitePath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open recorder database: %w", err)
	}

	r := &Recorder{db: db, isPostgres: pg, log: log}
	if err := r.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Recorder) createSchema() error {
	schema := `CREATE TABLE IF NOT EXISTS trade_decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		action TEXT NOT NULL,
		price REAL NOT NULL,
		confidence TEXT NOT NULL,
		stop_loss REAL NOT NULL,
		take_profit REAL NOT NULL,
		position_size REAL NOT NULL,
		reasoning TEXT NOT NULL,
		pnl REAL
	)`
	if r.isPostgres {
		schema = `CREATE TABLE IF NOT EXISTS trade_decisions (
			id SERIAL PRIMARY KEY,
			timestamp TEXT NOT NULL,
			action TEXT NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			confidence TEXT NOT NULL,
			stop_loss DOUBLE PRECISION NOT NULL,
			take_profit DOUBLE PRECISION NOT NULL,
			position_size DOUBLE PRECISION NOT NULL,
			reasoning TEXT NOT NULL,
			pnl DOUBLE PRECISION
		)`
	}
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create recorder schema: %w", err)
	}
	return nil
}

// Record inserts one ledger entry.
func (r *Recorder) Record(d TradeDecision) error {
	query := `INSERT INTO trade_decisions
		(timestamp, action, price, confidence, stop_loss, take_profit, position_size, reasoning, pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if r.isPostgres {
		query = `INSERT INTO trade_decisions
			(timestamp, action, price, confidence, stop_loss, take_profit, position_size, reasoning, pnl)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	}

	var pnl sql.NullFloat64
	if d.PnL != nil {
		pnl = sql.NullFloat64{Float64: *d.PnL, Valid: true}
	}
	_, err := r.db.Exec(query,
		d.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
		d.Action, d.Price, string(d.Confidence),
		d.StopLoss, d.TakeProfit, d.PositionSize, d.Reasoning, pnl)
	if err != nil {
		return fmt.Errorf("failed to record trade decision: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (r *Recorder) Close() error {
	return r.db.Close()
}
