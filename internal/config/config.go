package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/spotcore/exchange/internal/domain"
)

type Config struct {
	HTTPAddr  string
	RateLimit time.Duration // min interval between requests per user

	RedisAddr     string // empty disables the redis cache
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	PostgresDSN string // empty disables the pg journal

	Symbols []domain.Symbol
}

func Default() Config {
	return Config{
		HTTPAddr:  ":8080",
		RateLimit: 100 * time.Millisecond,
		RedisTTL:  5 * time.Minute,
		Symbols: []domain.Symbol{
			{Name: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT"},
			{Name: "ETHUSDT", BaseAsset: "ETH", QuoteAsset: "USDT"},
		},
	}
}

// LoadFromEnv loads .env (if present) and then environment variables on top
// of the defaults. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("RATE_LIMIT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.RedisDB = db
		}
	}
	if v := os.Getenv("REDIS_TTL_SEC"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil {
			cfg.RedisTTL = time.Duration(sec) * time.Second
		}
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		if symbols := parseSymbols(v); len(symbols) > 0 {
			cfg.Symbols = symbols
		}
	}
	return cfg
}

// parseSymbols reads "BTCUSDT:BTC:USDT,ETHUSDT:ETH:USDT".
func parseSymbols(s string) []domain.Symbol {
	var res []domain.Symbol
	for _, part := range strings.Split(s, ",") {
		fields := strings.Split(strings.TrimSpace(part), ":")
		if len(fields) != 3 {
			continue
		}
		res = append(res, domain.Symbol{
			Name:       fields[0],
			BaseAsset:  fields[1],
			QuoteAsset: fields[2],
		})
	}
	return res
}
