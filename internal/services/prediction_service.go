package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dicemaniacs/backend/internal/config"
	"github.com/dicemaniacs/backend/internal/events"
	"github.com/dicemaniacs/backend/internal/metrics"
	"github.com/dicemaniacs/backend/internal/models"
)

type PredictionService struct {
	predictions PredictionStore
	countdowns  CountdownStore
	players     PlayerStore
	referrals   ReferralStore
	auditRepo   AuditLogger
	publisher   events.Publisher
	cfg         *config.Config
	log         *zap.Logger
	now         func() time.Time
}

func NewPredictionService(
	predictions PredictionStore,
	countdowns CountdownStore,
	players PlayerStore,
	referrals ReferralStore,
	auditRepo AuditLogger,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *PredictionService {
	return &PredictionService{
		predictions: predictions,
		countdowns:  countdowns,
		players:     players,
		referrals:   referrals,
		auditRepo:   auditRepo,
		publisher:   publisher,
		cfg:         cfg,
		log:         log,
		now:         time.Now,
	}
}

// AvailableSlots applies the configured slot policy to the player's referrals.
func (s *PredictionService) AvailableSlots(ctx context.Context, playerID int64, round *models.Countdown) (int, error) {
	var since *time.Time
	if s.cfg.SlotPolicy == models.SlotPolicyPerRound && round != nil {
		since = &round.CreatedAt
	}
	n, err := s.referrals.CountByReferrer(ctx, playerID, since)
	if err != nil {
		return 0, fmt.Errorf("count referrals: %w", err)
	}
	return models.AvailableSlots(n), nil
}

// Submit stores a guess for slot in the given round, superseding the slot's
// previous guess. Validation runs under the player and round row locks.
func (s *PredictionService) Submit(ctx context.Context, playerID, countdownID int64, slot, dice1, dice2 int) (*models.Prediction, error) {
	guess := models.DicePair{A: dice1, B: dice2}
	if !guess.Valid() || slot < 1 || slot > models.MaxSlots {
		metrics.PredictionSubmitted("invalid")
		return nil, models.ErrInvalidInput
	}

	if s.cfg.PredictRequireWallet {
		player, err := s.players.GetByTelegramID(ctx, playerID)
		if err != nil {
			return nil, fmt.Errorf("load player: %w", err)
		}
		if !player.HasWallet() {
			metrics.PredictionSubmitted("wallet_required")
			return nil, models.ErrWalletRequired
		}
	}

	round, err := s.countdowns.GetByID(ctx, countdownID)
	if err != nil {
		return nil, fmt.Errorf("load round: %w", err)
	}
	available, err := s.AvailableSlots(ctx, playerID, round)
	if err != nil {
		return nil, err
	}

	p := &models.Prediction{
		PlayerID:    playerID,
		CountdownID: countdownID,
		Slot:        slot,
		DiceNumber1: dice1,
		DiceNumber2: dice2,
	}
	err = s.predictions.Submit(ctx, p, func(c *models.Countdown, active []models.Prediction) error {
		// the clock is read under the locks; waiting for them may cross expiry
		if !c.IsActive || c.HasEnd || c.IsFinished(s.now()) {
			return models.ErrRoundFinished
		}
		return models.ValidateSubmission(active, slot, guess, available)
	})
	if err != nil {
		metrics.PredictionSubmitted(submitResult(err))
		if errors.Is(err, models.ErrDataIntegrity) {
			s.log.Error("integrity violation on prediction submit",
				zap.Int64("player_id", playerID),
				zap.Int64("round_id", countdownID),
				zap.Int("slot", slot),
				zap.Error(err),
			)
		}
		return nil, err
	}
	metrics.PredictionSubmitted("accepted")

	_ = s.auditRepo.Log(ctx, models.AuditLog{
		ActorID:    &playerID,
		ActorType:  models.ActorTypePlayer,
		Action:     models.AuditActionPredictionSaved,
		EntityType: "prediction",
		EntityID:   &p.ID,
		Meta:       map[string]any{"countdown_id": countdownID, "slot": slot},
	})

	_ = s.publisher.Publish(ctx, events.RoundChannel, events.Event{
		Type: events.EventPredictionSubmitted,
		Payload: map[string]any{
			"countdown_id": countdownID,
			"player_id":    playerID,
			"slot":         slot,
		},
	})

	return p, nil
}

// SubmitToActive submits into the currently active round.
func (s *PredictionService) SubmitToActive(ctx context.Context, playerID int64, slot, dice1, dice2 int) (*models.Prediction, error) {
	round, err := s.countdowns.GetActive(ctx)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrRoundFinished
	}
	if err != nil {
		return nil, err
	}
	return s.Submit(ctx, playerID, round.ID, slot, dice1, dice2)
}

type PredictionBox struct {
	CountdownID *int64            `json:"countdown_id,omitempty"`
	Slots       int               `json:"slots"`
	Predictions []models.SlotView `json:"predictions"`
}

// Box returns the player's slots in the active round. A finished or missing
// round yields an empty box with a single slot.
func (s *PredictionService) Box(ctx context.Context, playerID int64) (*PredictionBox, error) {
	round, err := s.countdowns.GetActive(ctx)
	if errors.Is(err, models.ErrNotFound) {
		return &PredictionBox{Slots: 1, Predictions: []models.SlotView{}}, nil
	}
	if err != nil {
		return nil, err
	}
	if round.IsFinished(s.now()) {
		return &PredictionBox{Slots: 1, Predictions: []models.SlotView{}}, nil
	}

	available, err := s.AvailableSlots(ctx, playerID, round)
	if err != nil {
		return nil, err
	}
	active, err := s.predictions.ListActive(ctx, playerID, round.ID)
	if err != nil {
		return nil, err
	}
	return &PredictionBox{
		CountdownID: &round.ID,
		Slots:       available,
		Predictions: models.BuildPredictionBox(active, available),
	}, nil
}

func (s *PredictionService) History(ctx context.Context, playerID int64, limit, offset int) ([]models.PredictionHistoryRow, error) {
	return s.predictions.History(ctx, playerID, limit, offset)
}

func submitResult(err error) string {
	switch {
	case errors.Is(err, models.ErrDuplicatePrediction):
		return "duplicate"
	case errors.Is(err, models.ErrInsufficientSlot):
		return "insufficient_slot"
	case errors.Is(err, models.ErrRoundFinished):
		return "round_finished"
	case errors.Is(err, models.ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}
