package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/dicemaniacs/backend/internal/http/dto"
	"github.com/dicemaniacs/backend/internal/models"
)

type CountdownHandler struct {
	rounds RoundAPI
	log    *zap.Logger
	now    func() time.Time
}

func NewCountdownHandler(rounds RoundAPI, log *zap.Logger) *CountdownHandler {
	return &CountdownHandler{rounds: rounds, log: log, now: time.Now}
}

// GetActive returns the running round with its dice hidden. The last expired
// round is settled first so results show up even when the worker lags behind.
// GET /countdown
func (h *CountdownHandler) GetActive(c *fiber.Ctx) error {
	ctx := c.UserContext()
	last, err := h.rounds.GetLastCountdown(ctx)
	switch {
	case err == nil && !last.HasEnd:
		if _, err := h.rounds.TriggerSettlement(ctx, &last.ID); err != nil && !errors.Is(err, models.ErrInvalidState) {
			h.log.Warn("lazy settlement failed", zap.Int64("round_id", last.ID), zap.Error(err))
		}
	case err != nil && !errors.Is(err, models.ErrNotFound):
		h.log.Warn("failed to load last round", zap.Error(err))
	}

	round, err := h.rounds.GetActiveCountdown(ctx)
	if errors.Is(err, models.ErrNotFound) {
		return c.JSON(dto.SuccessResponse{OK: true})
	}
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: round.Public(h.now())})
}

// List returns finished rounds, newest first.
// GET /countdowns
func (h *CountdownHandler) List(c *fiber.Ctx) error {
	limit, offset := pagination(c, 20, 100)
	rounds, err := h.rounds.ListFinished(c.UserContext(), limit, offset)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: rounds})
}

// Winners lists the distinct winners of a finished round.
// GET /countdowns/:id/winners
func (h *CountdownHandler) Winners(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return badRequest(c, "invalid countdown id")
	}
	round, winners, err := h.rounds.Winners(c.UserContext(), int64(id))
	if errors.Is(err, models.ErrInvalidState) {
		return badRequest(c, err.Error())
	}
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.WinnersResponse{Countdown: round, Winners: winners}})
}

// LastWinners lists the winners of the most recently finished round.
// GET /winners/last
func (h *CountdownHandler) LastWinners(c *fiber.Ctx) error {
	round, winners, err := h.rounds.LastWinners(c.UserContext())
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.WinnersResponse{Countdown: round, Winners: winners}})
}
