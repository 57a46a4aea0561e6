package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mymmrac/telego"
	"go.uber.org/zap"

	"github.com/dicemaniacs/backend/internal/bot"
	"github.com/dicemaniacs/backend/internal/config"
	"github.com/dicemaniacs/backend/internal/db"
	"github.com/dicemaniacs/backend/internal/events"
	"github.com/dicemaniacs/backend/internal/locale"
	"github.com/dicemaniacs/backend/internal/repositories"
	"github.com/dicemaniacs/backend/internal/services"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)
	if cfg.BotToken == "" {
		log.Fatal("BOT_TOKEN is required for the bot service")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, int32(cfg.PostgresMaxConns), log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repos
	playerRepo := repositories.NewPlayerRepo(pool)
	referralRepo := repositories.NewReferralRepo(pool)
	countdownRepo := repositories.NewCountdownRepo(pool)
	predictionRepo := repositories.NewPredictionRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)
	playerService := services.NewPlayerService(playerRepo, referralRepo, auditRepo, publisher, cfg, log)
	roundService := services.NewRoundService(countdownRepo, predictionRepo, auditRepo, publisher, cfg, log)

	tr, err := locale.New()
	if err != nil {
		log.Fatal("failed to load translations", zap.Error(err))
	}

	api, err := telego.NewBot(cfg.BotToken)
	if err != nil {
		log.Fatal("failed to create telegram bot", zap.Error(err))
	}

	notifier := bot.NewNotifier(api, roundService, tr, cfg.NotifyRatePerSecond, log)
	if err := notifier.Start(ctx, subscriber); err != nil {
		log.Fatal("failed to subscribe to round events", zap.Error(err))
	}

	if err := bot.New(api, playerService, tr, cfg, log).Run(ctx); err != nil {
		log.Fatal("bot stopped", zap.Error(err))
	}
	log.Info("bot shut down")
}
