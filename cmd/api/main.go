package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/dicemaniacs/backend/internal/config"
	"github.com/dicemaniacs/backend/internal/db"
	"github.com/dicemaniacs/backend/internal/events"
	apphttp "github.com/dicemaniacs/backend/internal/http"
	"github.com/dicemaniacs/backend/internal/http/handlers"
	"github.com/dicemaniacs/backend/internal/repositories"
	"github.com/dicemaniacs/backend/internal/services"
	"github.com/dicemaniacs/backend/migrations"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, int32(cfg.PostgresMaxConns), log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	playerRepo := repositories.NewPlayerRepo(pool)
	referralRepo := repositories.NewReferralRepo(pool)
	countdownRepo := repositories.NewCountdownRepo(pool)
	predictionRepo := repositories.NewPredictionRepo(pool)
	leaderboardRepo := repositories.NewLeaderboardRepo(pool)
	reportRepo := repositories.NewReportRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Services
	roundService := services.NewRoundService(countdownRepo, predictionRepo, auditRepo, publisher, cfg, log)
	predictionService := services.NewPredictionService(predictionRepo, countdownRepo, playerRepo, referralRepo, auditRepo, publisher, cfg, log)
	playerService := services.NewPlayerService(playerRepo, referralRepo, auditRepo, publisher, cfg, log)
	leaderboardService := services.NewLeaderboardService(leaderboardRepo, cfg, log)
	// The API only reads stored reports; the worker builds them.
	reportService := services.NewReportService(reportRepo, nil, cfg, log)

	// Handlers
	authHandler := handlers.NewAuthHandler(playerService, cfg, log)
	countdownHandler := handlers.NewCountdownHandler(roundService, log)
	playerHandler := handlers.NewPlayerHandler(playerService, leaderboardService, cfg, log)
	predictionHandler := handlers.NewPredictionHandler(predictionService, log)
	adminHandler := handlers.NewAdminHandler(roundService, playerService, reportService, cfg, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	if err := wsHub.Start(ctx); err != nil {
		log.Fatal("failed to start ws hub", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: apphttp.ErrorHandler(log),
	})

	apphttp.SetupRouter(app, cfg, log, rdb, authHandler, countdownHandler, playerHandler, predictionHandler, adminHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
