package main

import (
	"context"
	"log"
	"net/http"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/spotcore/exchange/internal/adapter/cache"
	"github.com/spotcore/exchange/internal/adapter/in_memory"
	"github.com/spotcore/exchange/internal/adapter/pg"
	"github.com/spotcore/exchange/internal/api/ws"
	"github.com/spotcore/exchange/internal/config"
	"github.com/spotcore/exchange/internal/core"
	"github.com/spotcore/exchange/internal/ledger"
	"github.com/spotcore/exchange/internal/port"

	httpapi "github.com/spotcore/exchange/internal/api/http"
)

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func main() {
	ctx := context.Background()
	cfg := config.LoadFromEnv("")

	logger, err := newLogger()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	var repo port.Repository
	if cfg.PostgresDSN != "" {
		pgRepo, err := pg.NewPgRepo(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("failed to connect to Postgres", zap.Error(err))
		}
		defer pgRepo.Close(ctx)
		repo = pgRepo
	} else {
		repo = in_memory.NewMemoryRepo()
	}

	var depthCache port.Cache
	if cfg.RedisAddr != "" {
		depthCache = cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
	} else {
		depthCache = in_memory.NewCache()
	}

	led := ledger.New()
	engine := core.NewEngine(led, cfg.Symbols, repo, depthCache, logger)

	// Books and balances start empty; orders journaled as open by a previous
	// run cannot be restored without their fund reservations.
	for _, s := range cfg.Symbols {
		stale, err := repo.LoadOpenOrders(ctx, s.Name)
		if err != nil {
			logger.Warn("journal read failed", zap.String("symbol", s.Name), zap.Error(err))
			continue
		}
		if len(stale) > 0 {
			logger.Warn("journal holds open orders from a previous run",
				zap.String("symbol", s.Name), zap.Int("count", len(stale)))
		}
	}

	wsServer := ws.NewServer(engine, logger)
	server := httpapi.NewHTTPServer(engine, logger, cfg.RateLimit)

	mux := http.NewServeMux()
	mux.Handle("/ws", http.HandlerFunc(wsServer.Handle))
	mux.Handle("/", server.Router())

	logger.Info("starting exchange server",
		zap.String("addr", cfg.HTTPAddr),
		zap.Int("symbols", len(cfg.Symbols)))
	if err := http.ListenAndServe(cfg.HTTPAddr, mux); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}
}
