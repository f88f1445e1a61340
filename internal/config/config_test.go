package config

import (
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %s", cfg.HTTPAddr)
	}
	if len(cfg.Symbols) != 2 || cfg.Symbols[0].Name != "BTCUSDT" {
		t.Errorf("Symbols = %+v", cfg.Symbols)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("RATE_LIMIT_MS", "250")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_TTL_SEC", "30")
	t.Setenv("SYMBOLS", "SOLUSDT:SOL:USDT")

	cfg := LoadFromEnv("")
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %s", cfg.HTTPAddr)
	}
	if cfg.RateLimit != 250*time.Millisecond {
		t.Errorf("RateLimit = %s", cfg.RateLimit)
	}
	if cfg.RedisAddr != "localhost:6379" || cfg.RedisTTL != 30*time.Second {
		t.Errorf("redis config = %s / %s", cfg.RedisAddr, cfg.RedisTTL)
	}
	if len(cfg.Symbols) != 1 || cfg.Symbols[0].BaseAsset != "SOL" {
		t.Errorf("Symbols = %+v", cfg.Symbols)
	}
}

func TestParseSymbolsSkipsMalformed(t *testing.T) {
	got := parseSymbols("BTCUSDT:BTC:USDT, bad, ETHUSDT:ETH:USDT")
	if len(got) != 2 {
		t.Fatalf("parsed %d symbols, want 2", len(got))
	}
	if got[1].Name != "ETHUSDT" || got[1].QuoteAsset != "USDT" {
		t.Errorf("second symbol = %+v", got[1])
	}
}
