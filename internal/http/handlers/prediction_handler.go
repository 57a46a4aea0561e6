package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/dicemaniacs/backend/internal/http/dto"
	"github.com/dicemaniacs/backend/internal/middleware"
)

type PredictionHandler struct {
	predictions PredictionAPI
	log         *zap.Logger
}

func NewPredictionHandler(predictions PredictionAPI, log *zap.Logger) *PredictionHandler {
	return &PredictionHandler{predictions: predictions, log: log}
}

// Box returns the player's slots in the active round.
// GET /predict
func (h *PredictionHandler) Box(c *fiber.Ctx) error {
	box, err := h.predictions.Box(c.UserContext(), middleware.GetTelegramID(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: box})
}

// Submit places or replaces the guess in one slot of the active round.
// POST /predict
func (h *PredictionHandler) Submit(c *fiber.Ctx) error {
	var req dto.SubmitPredictionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	p, err := h.predictions.SubmitToActive(c.UserContext(), middleware.GetTelegramID(c), req.Slot, req.DiceNumber1, req.DiceNumber2)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: p})
}

// History lists every prediction of the player, superseded ones included.
// GET /predictions
func (h *PredictionHandler) History(c *fiber.Ctx) error {
	limit, offset := pagination(c, 50, 200)
	rows, err := h.predictions.History(c.UserContext(), middleware.GetTelegramID(c), limit, offset)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: rows})
}
