package http

import (
	"errors"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dicemaniacs/backend/internal/config"
	"github.com/dicemaniacs/backend/internal/http/dto"
	"github.com/dicemaniacs/backend/internal/http/handlers"
	"github.com/dicemaniacs/backend/internal/metrics"
	"github.com/dicemaniacs/backend/internal/middleware"
	"github.com/dicemaniacs/backend/internal/rbac"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb redis.Cmdable,
	authHandler *handlers.AuthHandler,
	countdownHandler *handlers.CountdownHandler,
	playerHandler *handlers.PlayerHandler,
	predictionHandler *handlers.PredictionHandler,
	adminHandler *handlers.AdminHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))
	app.Use(metrics.Middleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", metrics.Handler())

	api := app.Group("/api/v1")

	// Public
	api.Post("/auth/telegram", authHandler.TelegramAuth)

	// Rate-limited from here on
	api.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMinute, time.Minute, log))
	api.Get("/countdown", countdownHandler.GetActive)
	api.Get("/countdowns", countdownHandler.List)
	api.Get("/countdowns/:id/winners", countdownHandler.Winners)
	api.Get("/winners/last", countdownHandler.LastWinners)

	// Protected
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))
	protected.Get("/me", playerHandler.GetMe)
	protected.Post("/me/wallet", playerHandler.SetWallet)
	protected.Get("/me/referral-link", playerHandler.ReferralLink)
	protected.Get("/me/referrals", playerHandler.Referrals)
	protected.Get("/me/points", playerHandler.Points)
	protected.Get("/leaderboard", playerHandler.Leaderboard)
	protected.Get("/predict", predictionHandler.Box)
	protected.Post("/predict", predictionHandler.Submit)
	protected.Get("/predictions", predictionHandler.History)

	// Admin
	admin := protected.Group("/admin")
	admin.Post("/rounds", middleware.RequirePermission(rbac.PermCreateRound), adminHandler.CreateRound)
	admin.Post("/rounds/settle", middleware.RequirePermission(rbac.PermSettleRound), adminHandler.Settle)
	admin.Get("/reports", middleware.RequirePermission(rbac.PermViewReports), adminHandler.Report)
	admin.Get("/giveaway", middleware.RequirePermission(rbac.PermDrawGiveaway), adminHandler.Giveaway)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}

// ErrorHandler renders errors that escape the handlers, e.g. fiber's own 404/405.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		msg := "internal server error"
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code, msg = fe.Code, fe.Message
		} else {
			log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		}
		reqID, _ := c.Locals(middleware.CtxRequestID).(string)
		return c.Status(code).JSON(dto.ErrorResponse{Error: msg, RequestID: reqID})
	}
}
