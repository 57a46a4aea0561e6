package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/dicemaniacs/backend/internal/auth"
	"github.com/dicemaniacs/backend/internal/config"
	"github.com/dicemaniacs/backend/internal/http/dto"
	"github.com/dicemaniacs/backend/internal/models"
	"github.com/dicemaniacs/backend/internal/repositories"
)

type AuthHandler struct {
	players PlayerAPI
	cfg     *config.Config
	log     *zap.Logger
}

func NewAuthHandler(players PlayerAPI, cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{players: players, cfg: cfg, log: log}
}

// TelegramAuth exchanges mini-app initData for a session token.
// POST /auth/telegram
func (h *AuthHandler) TelegramAuth(c *fiber.Ctx) error {
	var req dto.AuthTelegramRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.InitData == "" {
		return badRequest(c, "init_data is required")
	}

	vals, err := auth.ValidateTelegramWebAppData(req.InitData, h.cfg.WebAppSecret, h.cfg.InitDataMaxAge)
	if err != nil {
		h.log.Debug("telegram auth validation failed", zap.Error(err))
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	u, startParam, err := auth.ParseWebAppUser(vals)
	if err != nil {
		return badRequest(c, err.Error())
	}

	player, created, err := h.players.Touch(c.UserContext(), repositories.PlayerUpsert{
		TelegramID:    u.ID,
		Username:      optional(u.Username),
		FirstName:     optional(u.FirstName),
		LastName:      optional(u.LastName),
		LanguageCode:  u.LanguageCode,
		OpenedMiniApp: true,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}

	// A referral only counts for players seen here for the first time.
	if created && startParam != "" {
		if _, err := h.players.RegisterReferral(c.UserContext(), startParam, u.ID); err != nil &&
			!errors.Is(err, models.ErrNotFound) && !errors.Is(err, models.ErrAlreadyReferred) && !errors.Is(err, models.ErrInvalidInput) {
			h.log.Warn("failed to register referral from start_param", zap.Int64("telegram_id", u.ID), zap.Error(err))
		}
	}

	token, err := auth.GenerateJWT(h.cfg.JWTSecret, player.TelegramID, h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("failed to generate jwt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}

	return c.JSON(dto.AuthResponse{Token: token, Player: player, Created: created})
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
