package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"notto/internal/admin/reconcile"
	drawmetrics "notto/internal/draw/metrics"
	drawservice "notto/internal/draw/service"
	"notto/internal/generation"
	identityservice "notto/internal/identity/service"
	"notto/internal/lotto/round"
	"notto/internal/platform/config"
	"notto/internal/platform/httpserver"
	"notto/internal/platform/lock"
	"notto/internal/platform/logger"
	"notto/internal/platform/metrics"
	platformredis "notto/internal/platform/redis"
	promptservice "notto/internal/prompt/service"
	"notto/internal/storage"
	filestore "notto/internal/storage/file"
	pgstore "notto/internal/storage/postgres"
	httptransport "notto/internal/transport/http"
)

// main wires dependencies and owns the server lifecycle. Business logic
// lives in the internal service packages.
func main() {
	_ = godotenv.Load()

	cfg := config.FromEnv()
	log := logger.New()
	ctx := context.Background()

	// Storage: postgres when configured, the versioned file store otherwise.
	var store storage.Store
	var health func(context.Context) error
	if cfg.DatabaseURL != "" {
		pg, err := pgstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("open postgres store", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		store = pg
		health = pg.Health
		log.Info("using postgres store")
	} else {
		fs, err := filestore.New(cfg.DataDir)
		if err != nil {
			log.Error("open file store", "error", err)
			os.Exit(1)
		}
		store = fs
		log.Info("using file store", "dir", cfg.DataDir)
	}

	var generator generation.Generator
	if cfg.GeminiAPIKey != "" {
		g, err := generation.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, log)
		if err != nil {
			log.Error("create gemini client", "error", err)
			os.Exit(1)
		}
		generator = g
	} else {
		log.Warn("GEMINI_API_KEY not set, number generation is disabled")
		generator = generation.Disabled{}
	}

	var locker lock.Locker = lock.NewLocal()
	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		locker = lock.NewRedis(redisClient.Client)
		log.Info("using redis job lock")
	}

	calc := round.Default(cfg.Timezone)
	appMetrics := metrics.New()

	identitySvc := identityservice.New(store, appMetrics, log)
	drawSvc := drawservice.New(store, generator, calc, locker, drawmetrics.New(), log, cfg.BatchSize, cfg.BatchDelay)
	promptSvc := promptservice.New(store, log)
	engine := reconcile.NewEngine(store, generator, log, cfg.BatchSize)

	router := httptransport.NewRouter(httptransport.Deps{
		Identity:   identitySvc,
		Draw:       drawSvc,
		Prompts:    promptSvc,
		Engine:     engine,
		AdminToken: cfg.AdminToken,
		Logger:     log,
		Health:     health,
	})

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting notto", "addr", cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
