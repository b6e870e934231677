package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/church-space/church-space-sub003/internal/config"
	"github.com/church-space/church-space-sub003/internal/pco"
	"github.com/church-space/church-space-sub003/internal/pkg/distlock"
	"github.com/church-space/church-space-sub003/internal/pkg/logger"
	"github.com/church-space/church-space-sub003/internal/repository/postgres"
	"github.com/church-space/church-space-sub003/internal/service/fullsync"
	"github.com/church-space/church-space-sub003/internal/service/token"
	"github.com/church-space/church-space-sub003/internal/worker"
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
	}

	pcoClient := pco.NewClient(pco.Config{
		BaseURL:      cfg.PCO.BaseURL,
		TokenURL:     cfg.PCO.TokenURL,
		ClientID:     cfg.PCO.ClientID,
		ClientSecret: cfg.PCO.ClientSecret,
	})

	connRepo := postgres.NewConnectionRepo(db)
	mirrorRepo := postgres.NewMirrorRepo(db)
	statusRepo := postgres.NewSyncStatusRepo(db)

	newRefreshLock := func(orgID string) distlock.DistLock {
		return distlock.NewLock(redisClient, db, "pco:refresh:"+orgID, 30*time.Second)
	}
	tokens := token.NewService(connRepo, pcoClient, cfg.PCO.GuardWindow(), newRefreshLock)
	syncs := fullsync.NewService(mirrorRepo, statusRepo, tokens, pcoClient, cfg.Sync.MaxPages, cfg.Sync.PerPage)

	// A full sweep can run for a while; the lock TTL has to outlive it.
	newSweepLock := func(orgID string) distlock.DistLock {
		return distlock.NewLock(redisClient, db, "pco:sync:"+orgID, 30*time.Minute)
	}
	interval := time.Duration(cfg.Sync.IntervalMinutes) * time.Minute
	sched := worker.NewSyncScheduler(connRepo, syncs, newSweepLock, interval)

	ctx, stop := context.WithCancel(context.Background())
	sched.Start(ctx)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	logger.Info("shutting down")
	stop()
	sched.Stop()
}
