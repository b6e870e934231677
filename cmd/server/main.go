package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/church-space/church-space-sub003/internal/api"
	"github.com/church-space/church-space-sub003/internal/config"
	"github.com/church-space/church-space-sub003/internal/pco"
	"github.com/church-space/church-space-sub003/internal/pkg/distlock"
	"github.com/church-space/church-space-sub003/internal/pkg/logger"
	"github.com/church-space/church-space-sub003/internal/repository/postgres"
	"github.com/church-space/church-space-sub003/internal/repository/rediscache"
	"github.com/church-space/church-space-sub003/internal/service/eligibility"
	"github.com/church-space/church-space-sub003/internal/service/fullsync"
	"github.com/church-space/church-space-sub003/internal/service/token"
	"github.com/church-space/church-space-sub003/internal/service/webhook"
)

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		logger.Error("loading config failed", "error", err.Error())
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err.Error())
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Error("opening database failed", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancel()
		logger.Error("database unreachable", "error", err.Error())
		os.Exit(1)
	}
	cancel()
	logger.Info("connected to database")

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		logger.Info("redis configured", "addr", cfg.Redis.Addr)
	}

	pcoClient := pco.NewClient(pco.Config{
		BaseURL:      cfg.PCO.BaseURL,
		TokenURL:     cfg.PCO.TokenURL,
		ClientID:     cfg.PCO.ClientID,
		ClientSecret: cfg.PCO.ClientSecret,
	})

	newRefreshLock := func(orgID string) distlock.DistLock {
		return distlock.NewLock(redisClient, db, "pco:refresh:"+orgID, 30*time.Second)
	}

	connRepo := postgres.NewConnectionRepo(db)
	secretRepo := postgres.NewWebhookSecretRepo(db)
	mirrorRepo := postgres.NewMirrorRepo(db)
	statusRepo := postgres.NewSyncStatusRepo(db)
	eligRepo := postgres.NewEligibilityRepo(db)

	var replay webhook.ReplayCache
	if redisClient != nil {
		replay = rediscache.NewReplayCache(redisClient)
	}

	tokens := token.NewService(connRepo, pcoClient, cfg.PCO.GuardWindow(), newRefreshLock)
	webhooks := webhook.NewService(secretRepo, mirrorRepo, replay, pcoClient)
	syncs := fullsync.NewService(mirrorRepo, statusRepo, tokens, pcoClient, cfg.Sync.MaxPages, cfg.Sync.PerPage)
	elig := eligibility.NewService(eligRepo, cfg.Eligibility.BatchSize)

	server := api.NewServer(cfg, tokens, webhooks, syncs, elig)

	go func() {
		addr := cfg.Server.Addr()
		logger.Info("server listening", "addr", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", "error", err.Error())
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err.Error())
	}
}
