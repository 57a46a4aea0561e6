package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/dicemaniacs/backend/internal/config"
	"github.com/dicemaniacs/backend/internal/http/dto"
	"github.com/dicemaniacs/backend/internal/middleware"
)

type PlayerHandler struct {
	players     PlayerAPI
	leaderboard LeaderboardAPI
	cfg         *config.Config
	log         *zap.Logger
}

func NewPlayerHandler(players PlayerAPI, leaderboard LeaderboardAPI, cfg *config.Config, log *zap.Logger) *PlayerHandler {
	return &PlayerHandler{players: players, leaderboard: leaderboard, cfg: cfg, log: log}
}

// GET /me
func (h *PlayerHandler) GetMe(c *fiber.Ctx) error {
	p, err := h.players.Get(c.UserContext(), middleware.GetTelegramID(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: p})
}

// SetWallet stores the TON wallet the player connected in the mini-app.
// POST /me/wallet
func (h *PlayerHandler) SetWallet(c *fiber.Ctx) error {
	var req dto.SetWalletRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.WalletAddress == "" {
		return badRequest(c, "wallet_address is required")
	}

	addr, firstTime, err := h.players.SetWalletAddress(c.UserContext(), middleware.GetTelegramID(c), req.WalletAddress)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.WalletResponse{WalletAddress: addr, FirstTime: firstTime}})
}

// GET /me/referral-link
func (h *PlayerHandler) ReferralLink(c *fiber.Ctx) error {
	code, err := h.players.ReferralCode(c.UserContext(), middleware.GetTelegramID(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.ReferralLinkResponse{Code: code, Link: h.cfg.ReferralLink(code)}})
}

// GET /me/referrals
func (h *PlayerHandler) Referrals(c *fiber.Ctx) error {
	limit, offset := pagination(c, 50, 200)
	list, err := h.players.Referrals(c.UserContext(), middleware.GetTelegramID(c), limit, offset)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: list})
}

// Points returns the player's point breakdown and missions checklist.
// GET /me/points
func (h *PlayerHandler) Points(c *fiber.Ctx) error {
	pp, err := h.leaderboard.PlayerBreakdown(c.UserContext(), middleware.GetTelegramID(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: pp})
}

// GET /leaderboard
func (h *PlayerHandler) Leaderboard(c *fiber.Ctx) error {
	top, err := h.leaderboard.Top(c.UserContext(), c.QueryInt("limit", 0))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: top})
}
