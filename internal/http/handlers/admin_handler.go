package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/dicemaniacs/backend/internal/config"
	"github.com/dicemaniacs/backend/internal/http/dto"
	"github.com/dicemaniacs/backend/internal/middleware"
	"github.com/dicemaniacs/backend/internal/models"
	"github.com/dicemaniacs/backend/internal/services"
)

type AdminHandler struct {
	rounds  RoundAPI
	players PlayerAPI
	reports ReportAPI
	cfg     *config.Config
	log     *zap.Logger
	now     func() time.Time
}

func NewAdminHandler(rounds RoundAPI, players PlayerAPI, reports ReportAPI, cfg *config.Config, log *zap.Logger) *AdminHandler {
	return &AdminHandler{rounds: rounds, players: players, reports: reports, cfg: cfg, log: log, now: time.Now}
}

// CreateRound opens a new round, replacing the active one.
// POST /admin/rounds
func (h *AdminHandler) CreateRound(c *fiber.Ctx) error {
	var req dto.CreateRoundRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	in := services.CreateRoundInput{
		ExpireAt: req.ExpireDT,
		Dice1:    req.DiceNumber1,
		Dice2:    req.DiceNumber2,
		Amount:   h.cfg.RoundPrizeAmount,
	}
	if in.ExpireAt.IsZero() {
		in.ExpireAt = h.now().Add(h.cfg.RoundDuration)
	}
	if req.Amount != nil {
		in.Amount = *req.Amount
	}
	actor := middleware.GetTelegramID(c)
	in.ActorID = &actor

	round, err := h.rounds.CreateRound(c.UserContext(), in)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: round})
}

// Settle settles the given round, or the last expired one when no id is sent.
// POST /admin/rounds/settle
func (h *AdminHandler) Settle(c *fiber.Ctx) error {
	var req dto.SettleRoundRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
	}

	res, err := h.rounds.TriggerSettlement(c.UserContext(), req.CountdownID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	h.log.Info("settlement triggered by admin",
		zap.Int64("actor_id", middleware.GetTelegramID(c)),
		zap.Int64("round_id", res.CountdownID),
		zap.Bool("already_settled", res.AlreadySettled),
	)
	return c.JSON(dto.SuccessResponse{OK: true, Data: res})
}

// Report returns the stored daily report. date defaults to yesterday (UTC).
// GET /admin/reports?date=2006-01-02
func (h *AdminHandler) Report(c *fiber.Ctx) error {
	day := h.now().UTC().AddDate(0, 0, -1)
	if s := c.Query("date"); s != "" {
		d, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return badRequest(c, "date must be YYYY-MM-DD")
		}
		day = d
	}

	rep, err := h.reports.Get(c.UserContext(), day)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: rep})
}

// Giveaway draws a random player meeting the given minimums.
// GET /admin/giveaway?min_predictions=&min_wins=&min_referrals=&require_wallet=
func (h *AdminHandler) Giveaway(c *fiber.Ctx) error {
	f := models.GiveawayFilter{
		MinPredictions: c.QueryInt("min_predictions", 0),
		MinWins:        c.QueryInt("min_wins", 0),
		MinReferrals:   c.QueryInt("min_referrals", 0),
		RequireWallet:  c.QueryBool("require_wallet", true),
	}

	p, err := h.players.DrawGiveaway(c.UserContext(), f, middleware.GetTelegramID(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: p})
}
