package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `{
	"exchange": {"symbol": "BTCUSDT", "timeframe": "5m"},
	"model": {"name": "deepseek-reasoner", "base_url": "https://api.deepseek.com/v1", "api_key": "sk-test"}
}`

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Exchange.Limit != 500 {
		t.Errorf("expected default limit 500, got %d", cfg.Exchange.Limit)
	}
	if cfg.Trading.DefaultPositionSize != 0.1 {
		t.Errorf("expected default position size 0.1, got %v", cfg.Trading.DefaultPositionSize)
	}
	if cfg.Trading.DefaultStopLossPct != 0.02 || cfg.Trading.DefaultTakeProfitPct != 0.04 {
		t.Errorf("unexpected SL/TP defaults: %v / %v", cfg.Trading.DefaultStopLossPct, cfg.Trading.DefaultTakeProfitPct)
	}
	if cfg.Trading.CooldownAfterErrorSecond != 60 {
		t.Errorf("expected 60s cooldown default, got %d", cfg.Trading.CooldownAfterErrorSecond)
	}
	if cfg.DataDir != "trading_data" {
		t.Errorf("expected default data dir, got %q", cfg.DataDir)
	}
	if got := cfg.Interval().Seconds(); got != 300 {
		t.Errorf("expected 300s interval for 5m, got %v", got)
	}
}

func TestLoadConfigMissingAPIKey(t *testing.T) {
	body := `{
		"exchange": {"symbol": "BTCUSDT", "timeframe": "1h"},
		"model": {"name": "x", "base_url": "https://example.com/v1"}
	}`
	if _, err := LoadConfig(writeConfig(t, body)); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestLoadConfigBadTimeframe(t *testing.T) {
	body := `{
		"exchange": {"symbol": "BTCUSDT", "timeframe": "7m"},
		"model": {"name": "x", "base_url": "https://example.com/v1", "api_key": "k"}
	}`
	if _, err := LoadConfig(writeConfig(t, body)); err == nil {
		t.Fatal("expected error for unsupported timeframe")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MODEL_API_KEY", "sk-env")
	t.Setenv("PORT", "9090")
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Model.APIKey != "sk-env" {
		t.Errorf("expected env api key override, got %q", cfg.Model.APIKey)
	}
	if cfg.APIServerPort != 9090 {
		t.Errorf("expected PORT override 9090, got %d", cfg.APIServerPort)
	}
}

func TestTimeframeSeconds(t *testing.T) {
	if TimeframeSeconds("1h") != 3600 {
		t.Errorf("1h should be 3600s")
	}
	if TimeframeSeconds("bogus") != 300 {
		t.Errorf("unknown timeframe should default to 300s")
	}
}
