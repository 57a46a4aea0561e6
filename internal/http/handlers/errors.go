package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/dicemaniacs/backend/internal/http/dto"
	"github.com/dicemaniacs/backend/internal/middleware"
	"github.com/dicemaniacs/backend/internal/models"
)

// writeError maps service errors onto HTTP. Game rule rejections are
// informational for the mini-app and go out as 200 with an error message.
func writeError(c *fiber.Ctx, log *zap.Logger, err error) error {
	reqID, _ := c.Locals(middleware.CtxRequestID).(string)
	resp := dto.ErrorResponse{Error: err.Error(), RequestID: reqID}

	switch {
	case errors.Is(err, models.ErrDuplicatePrediction),
		errors.Is(err, models.ErrInsufficientSlot),
		errors.Is(err, models.ErrRoundFinished),
		errors.Is(err, models.ErrWalletRequired):
		return c.Status(fiber.StatusOK).JSON(resp)
	case errors.Is(err, models.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(resp)
	case errors.Is(err, models.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(resp)
	case errors.Is(err, models.ErrInvalidState), errors.Is(err, models.ErrAlreadyReferred):
		return c.Status(fiber.StatusConflict).JSON(resp)
	case errors.Is(err, models.ErrDataIntegrity):
		log.Error("integrity violation", zap.String("path", c.Path()), zap.Error(err))
		resp.Error = models.ErrDataIntegrity.Error()
		return c.Status(fiber.StatusInternalServerError).JSON(resp)
	default:
		log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		resp.Error = "internal server error"
		return c.Status(fiber.StatusInternalServerError).JSON(resp)
	}
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: msg})
}

// pagination reads limit/offset with a default and an upper bound on limit.
func pagination(c *fiber.Ctx, def, max int) (int, int) {
	limit := c.QueryInt("limit", def)
	if limit <= 0 || limit > max {
		limit = def
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
