package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"aihub/internal/keycrypt"
	"aihub/internal/ratelimit"
	"aihub/internal/usertoken"
	"aihub/internal/util"
	"aihub/pkg/ai"
	"aihub/pkg/store"
	"aihub/services/chat/internal/app"
	"aihub/services/chat/internal/config"
	"aihub/services/chat/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.InitLogger(cfg.LogLevel)

	jwtLeeway, err := config.ParseDuration("jwtLeeway", cfg.JWTLeeway)
	if err != nil {
		util.Fatal(logger, "failed to parse jwt leeway", "err", err)
	}
	cacheTTL, err := config.ParseDuration("summaryCacheTTL", cfg.SummaryCacheTTL)
	if err != nil {
		util.Fatal(logger, "failed to parse summary cache ttl", "err", err)
	}
	tokenVerifier, err := usertoken.NewVerifier(usertoken.Config{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   jwtLeeway,
	})
	if err != nil {
		util.Fatal(logger, "failed to init token verifier", "err", err)
	}

	var dataStore store.Store
	if cfg.DatabaseURL != "" {
		gormStore, err := store.NewGormStore(cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			util.Fatal(logger, "failed to init store", "err", err)
		}
		defer gormStore.Close()
		dataStore = gormStore
	} else {
		logger.Warn("databaseURL not set, using in-memory store")
		dataStore = store.NewMemoryStore()
	}

	var credentials store.CredentialStore = dataStore
	if cfg.CredentialKey != "" {
		box, err := keycrypt.NewFromString(cfg.CredentialKey)
		if err != nil {
			util.Fatal(logger, "failed to init credential key", "err", err)
		}
		credentials = store.NewSealedCredentials(dataStore, box)
	}

	var (
		summaries   store.SummaryStore = dataStore
		turnLimiter *ratelimit.FixedWindowLimiter
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer redisClient.Close()
		summaries = store.NewRedisSummaryCacheWithClient(dataStore, redisClient, cacheTTL)
		if cfg.TurnRateLimitPerMinute > 0 {
			turnLimiter, err = ratelimit.NewFixedWindowLimiter(redisClient, "aihub:chat:ratelimit:turns", cfg.TurnRateLimitPerMinute, time.Minute)
			if err != nil {
				util.Fatal(logger, "failed to init rate limiter", "err", err)
			}
		}
	}

	registry, err := config.BuildRegistry(cfg)
	if err != nil {
		util.Fatal(logger, "failed to init providers", "err", err)
	}
	var tokens ai.TokenCounter
	if counter, err := ai.DefaultTokenCounter(); err != nil {
		logger.Warn("token counter unavailable", "err", err)
	} else {
		tokens = counter
	}

	appCore, err := app.New(app.Config{
		Store:                dataStore,
		Summaries:            summaries,
		Credentials:          credentials,
		Providers:            registry,
		Tokens:               tokens,
		BroadcastConcurrency: cfg.BroadcastConcurrency,
	})
	if err != nil {
		util.Fatal(logger, "failed to init app", "err", err)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		util.Fatal(logger, "failed to parse trusted proxies", "err", err)
	}
	httpServer, err := server.New(server.Config{
		App:            appCore,
		TokenVerifier:  tokenVerifier,
		TurnLimiter:    turnLimiter,
		CORSOrigins:    cfg.CORSOrigins,
		TrustedProxies: trusted,
	})
	if err != nil {
		util.Fatal(logger, "failed to init server", "err", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:        addr,
		Handler:     httpServer.Router(),
		ReadTimeout: 15 * time.Second,
		// Broadcasts wait on several providers.
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "err", err)
		}
	}()

	slog.Info("chat server listening", "addr", addr, "providers", registry.Names())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
		return
	}
	<-shutdownDone
	slog.Info("chat server stopped")
}
