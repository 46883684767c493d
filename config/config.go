package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// timeframeSeconds maps exchange timeframe strings to their duration in seconds.
var timeframeSeconds = map[string]int{
	"1m":  60,
	"3m":  180,
	"5m":  300,
	"15m": 900,
	"30m": 1800,
	"1h":  3600,
	"2h":  7200,
	"3h":  10800,
	"4h":  14400,
	"6h":  21600,
	"12h": 43200,
	"1d":  86400,
	"1w":  604800,
}

// TimeframeSeconds returns the length of a timeframe in seconds, defaulting
// to 5 minutes for unknown values.
func TimeframeSeconds(timeframe string) int {
	if s, ok := timeframeSeconds[timeframe]; ok {
		return s
	}
	return 300
}

// ModelConfig settings for one OpenAI-compatible model endpoint
type ModelConfig struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
}

// ExchangeConfig market data source settings
type ExchangeConfig struct {
	Symbol    string `json:"symbol"`    // e.g. "BTCUSDT"
	Timeframe string `json:"timeframe"` // e.g. "5m", "1h"
	Limit     int    `json:"limit"`     // number of candles per fetch
}

// TradingConfig position policy constants. These were hardcoded in earlier
// versions; they are configuration, not derived behavior.
type TradingConfig struct {
	DefaultPositionSize      float64 `json:"default_position_size"` // fraction of portfolio
	DefaultStopLossPct       float64 `json:"default_stop_loss_pct"` // 0.02 = 2% from entry
	DefaultTakeProfitPct     float64 `json:"default_take_profit_pct"`
	SentimentRefreshSeconds  int     `json:"sentiment_refresh_seconds"`
	FixedDelaySeconds        int     `json:"fixed_delay_seconds"` // bypasses boundary alignment when > 0
	CooldownAfterErrorSecond int     `json:"cooldown_after_error_seconds"`
}

// RecorderConfig ledger mirror database settings (SQLite by default,
// PostgreSQL when a connection string is configured)
type RecorderConfig struct {
	Enabled     bool   `json:"enabled"`
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL DSN; empty = SQLite
	SQLitePath  string `json:"sqlite_path,omitempty"`
}

// Config main configuration. Built once at startup and treated as immutable.
type Config struct {
	Exchange      ExchangeConfig `json:"exchange"`
	Model         ModelConfig    `json:"model"`
	ModelFallback ModelConfig    `json:"model_fallback"`
	Trading       TradingConfig  `json:"trading"`
	Recorder      RecorderConfig `json:"recorder"`
	DataDir       string         `json:"data_dir"`
	APIServerPort int            `json:"api_server_port"`
	LogLevel      string         `json:"log_level"`
}

// LoadConfig loads configuration from file and applies environment overrides.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// applyEnvOverrides lets secrets and the listen port come from the
// environment so they stay out of config.json.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("MODEL_API_KEY"); key != "" {
		c.Model.APIKey = key
	}
	if key := os.Getenv("MODEL_FALLBACK_API_KEY"); key != "" {
		c.ModelFallback.APIKey = key
	}
	if dsn := os.Getenv("RECORDER_DATABASE_URL"); dsn != "" {
		c.Recorder.DatabaseURL = dsn
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.APIServerPort = p
		}
	}
}

// Validate validates configuration validity and fills defaults. A missing
// required field here is the only fatal startup condition.
func (c *Config) Validate() error {
	if c.Exchange.Symbol == "" {
		return fmt.Errorf("exchange.symbol must be configured")
	}
	if c.Exchange.Timeframe == "" {
		return fmt.Errorf("exchange.timeframe must be configured")
	}
	if _, ok := timeframeSeconds[c.Exchange.Timeframe]; !ok {
		return fmt.Errorf("exchange.timeframe '%s' is not a supported timeframe", c.Exchange.Timeframe)
	}
	if c.Exchange.Limit <= 0 {
		c.Exchange.Limit = 500
	}

	if c.Model.Name == "" || c.Model.BaseURL == "" {
		return fmt.Errorf("model.name and model.base_url must be configured")
	}
	if c.Model.APIKey == "" {
		return fmt.Errorf("model.api_key must be configured (or set MODEL_API_KEY)")
	}

	if c.Trading.DefaultPositionSize <= 0 || c.Trading.DefaultPositionSize > 1 {
		c.Trading.DefaultPositionSize = 0.1
	}
	if c.Trading.DefaultStopLossPct <= 0 {
		c.Trading.DefaultStopLossPct = 0.02
	}
	if c.Trading.DefaultTakeProfitPct <= 0 {
		c.Trading.DefaultTakeProfitPct = 0.04
	}
	if c.Trading.SentimentRefreshSeconds <= 0 {
		c.Trading.SentimentRefreshSeconds = 3600
	}
	if c.Trading.CooldownAfterErrorSecond <= 0 {
		c.Trading.CooldownAfterErrorSecond = 60
	}

	if c.DataDir == "" {
		c.DataDir = "trading_data"
	}
	if c.APIServerPort <= 0 {
		c.APIServerPort = 8080
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Recorder.Enabled && c.Recorder.DatabaseURL == "" && c.Recorder.SQLitePath == "" {
		c.Recorder.SQLitePath = "trading_data/decisions.db"
	}

	return nil
}

// Interval returns the decision cycle interval derived from the timeframe.
func (c *Config) Interval() time.Duration {
	return time.Duration(TimeframeSeconds(c.Exchange.Timeframe)) * time.Second
}
