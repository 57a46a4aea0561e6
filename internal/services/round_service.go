package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/dicemaniacs/backend/internal/config"
	"github.com/dicemaniacs/backend/internal/events"
	"github.com/dicemaniacs/backend/internal/metrics"
	"github.com/dicemaniacs/backend/internal/models"
)

// RoundService owns the round lifecycle: creation, lookup and settlement.
type RoundService struct {
	countdowns  CountdownStore
	predictions PredictionStore
	auditRepo   AuditLogger
	publisher   events.Publisher
	cfg         *config.Config
	log         *zap.Logger
	now         func() time.Time
}

func NewRoundService(
	countdowns CountdownStore,
	predictions PredictionStore,
	auditRepo AuditLogger,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *RoundService {
	return &RoundService{
		countdowns:  countdowns,
		predictions: predictions,
		auditRepo:   auditRepo,
		publisher:   publisher,
		cfg:         cfg,
		log:         log,
		now:         time.Now,
	}
}

type CreateRoundInput struct {
	ExpireAt time.Time `json:"expire_at"`
	Dice1    int       `json:"dice_number1"`
	Dice2    int       `json:"dice_number2"`
	Amount   float64   `json:"amount"`
	ActorID  *int64    `json:"-"` // nil when opened by the scheduler
}

// CreateRound opens a new round and deactivates every other one atomically.
func (s *RoundService) CreateRound(ctx context.Context, in CreateRoundInput) (*models.Countdown, error) {
	pair := models.DicePair{A: in.Dice1, B: in.Dice2}
	if !pair.Valid() {
		return nil, fmt.Errorf("%w: dice must be between %d and %d", models.ErrInvalidInput, models.DiceMin, models.DiceMax)
	}
	if in.Amount < 0 || math.IsNaN(in.Amount) || math.IsInf(in.Amount, 0) {
		return nil, fmt.Errorf("%w: amount must be a non-negative number", models.ErrInvalidInput)
	}
	if !in.ExpireAt.After(s.now()) {
		return nil, fmt.Errorf("%w: expiry must be in the future", models.ErrInvalidInput)
	}

	c := &models.Countdown{
		ExpireDT:    in.ExpireAt,
		DiceNumber1: &in.Dice1,
		DiceNumber2: &in.Dice2,
		Amount:      in.Amount,
	}
	if err := s.countdowns.CreateActive(ctx, c); err != nil {
		return nil, fmt.Errorf("create round: %w", err)
	}
	metrics.RoundCreated()

	actorType := models.ActorTypeSystem
	if in.ActorID != nil {
		actorType = models.ActorTypeAdmin
	}
	_ = s.auditRepo.Log(ctx, models.AuditLog{
		ActorID:    in.ActorID,
		ActorType:  actorType,
		Action:     models.AuditActionRoundCreated,
		EntityType: "countdown",
		EntityID:   &c.ID,
		Meta:       map[string]any{"expire_dt": c.ExpireDT, "amount": c.Amount},
	})

	_ = s.publisher.Publish(ctx, events.RoundChannel, events.Event{
		Type: events.EventRoundCreated,
		Payload: map[string]any{
			"countdown_id": c.ID,
			"expire_dt":    c.ExpireDT,
			"amount":       c.Amount,
		},
	})

	s.log.Info("round created",
		zap.Int64("round_id", c.ID),
		zap.Time("expire_dt", c.ExpireDT),
		zap.Float64("amount", c.Amount),
	)
	return c, nil
}

// OpenScheduledRound opens a round with random dice, the configured prize and duration.
func (s *RoundService) OpenScheduledRound(ctx context.Context) (*models.Countdown, error) {
	d1, err := rollDie()
	if err != nil {
		return nil, err
	}
	d2, err := rollDie()
	if err != nil {
		return nil, err
	}
	return s.CreateRound(ctx, CreateRoundInput{
		ExpireAt: s.now().Add(s.cfg.RoundDuration),
		Dice1:    d1,
		Dice2:    d2,
		Amount:   s.cfg.RoundPrizeAmount,
	})
}

// GetActiveCountdown returns the single active round. More than one active
// round is reported as ErrDataIntegrity and never resolved by picking one.
func (s *RoundService) GetActiveCountdown(ctx context.Context) (*models.Countdown, error) {
	c, err := s.countdowns.GetActive(ctx)
	if errors.Is(err, models.ErrDataIntegrity) {
		s.log.Error("integrity violation: multiple active rounds", zap.Error(err))
	}
	return c, err
}

// GetLastCountdown returns the most recently expired round.
func (s *RoundService) GetLastCountdown(ctx context.Context) (*models.Countdown, error) {
	return s.countdowns.GetLastFinished(ctx, s.now())
}

func (s *RoundService) GetCountdown(ctx context.Context, id int64) (*models.Countdown, error) {
	return s.countdowns.GetByID(ctx, id)
}

func (s *RoundService) ListFinished(ctx context.Context, limit, offset int) ([]models.Countdown, error) {
	return s.countdowns.ListFinished(ctx, s.now(), limit, offset)
}

// Winners lists the distinct winning players of a finished round. An expired
// round that was not settled yet is settled first, so an empty list always
// means nobody won.
func (s *RoundService) Winners(ctx context.Context, id int64) (*models.Countdown, []models.Winner, error) {
	c, err := s.countdowns.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !c.IsFinished(s.now()) {
		return nil, nil, models.ErrInvalidState
	}
	return s.settledWinners(ctx, c)
}

// LastWinners lists the winners of the most recently expired round.
func (s *RoundService) LastWinners(ctx context.Context) (*models.Countdown, []models.Winner, error) {
	c, err := s.GetLastCountdown(ctx)
	if err != nil {
		return nil, nil, err
	}
	return s.settledWinners(ctx, c)
}

func (s *RoundService) settledWinners(ctx context.Context, c *models.Countdown) (*models.Countdown, []models.Winner, error) {
	if !c.HasEnd {
		if _, err := s.EndCountdown(ctx, c.ID); err != nil {
			return nil, nil, err
		}
		reloaded, err := s.countdowns.GetByID(ctx, c.ID)
		if err != nil {
			return nil, nil, err
		}
		c = reloaded
	}
	winners, err := s.predictions.ListWinners(ctx, c.ID)
	if err != nil {
		return nil, nil, err
	}
	return c, winners, nil
}

// EndCountdown settles an expired round exactly once. Settling an open round
// fails with ErrInvalidState; settling a settled round is a successful no-op.
func (s *RoundService) EndCountdown(ctx context.Context, id int64) (*models.SettlementResult, error) {
	res, err := s.countdowns.Settle(ctx, id, s.now(), decideSettlement)
	switch {
	case errors.Is(err, models.ErrInvalidState):
		metrics.RoundSettled("not_expired", 0)
		return nil, err
	case errors.Is(err, models.ErrNotFound):
		metrics.RoundSettled("error", 0)
		return nil, fmt.Errorf("%w: round %d does not exist", models.ErrDataIntegrity, id)
	case err != nil:
		metrics.RoundSettled("error", 0)
		if errors.Is(err, models.ErrDataIntegrity) {
			s.log.Error("integrity violation during settlement", zap.Int64("round_id", id), zap.Error(err))
		}
		return nil, fmt.Errorf("settle round %d: %w", id, err)
	}

	if res.AlreadySettled {
		metrics.RoundSettled("already_settled", 0)
		return res, nil
	}
	metrics.RoundSettled("settled", res.WinnersCount)

	_ = s.auditRepo.Log(ctx, models.AuditLog{
		ActorType:  models.ActorTypeSystem,
		Action:     models.AuditActionRoundSettled,
		EntityType: "countdown",
		EntityID:   &res.CountdownID,
		Meta: map[string]any{
			"winners_count":       res.WinnersCount,
			"winning_predictions": res.WinningPredictions,
			"amount_per_winner":   res.AmountPerWinner,
		},
	})

	_ = s.publisher.Publish(ctx, events.RoundChannel, events.Event{
		Type: events.EventRoundSettled,
		Payload: map[string]any{
			"countdown_id":      res.CountdownID,
			"dice_number1":      res.DiceNumber1,
			"dice_number2":      res.DiceNumber2,
			"winners_count":     res.WinnersCount,
			"amount_per_winner": res.AmountPerWinner,
		},
	})

	s.log.Info("round settled",
		zap.Int64("round_id", res.CountdownID),
		zap.Int("winners", res.WinnersCount),
		zap.Int("winning_predictions", res.WinningPredictions),
		zap.Float64("amount_per_winner", res.AmountPerWinner),
	)
	return res, nil
}

// TriggerSettlement settles roundID, or the most recently expired round when
// nil. A round that cannot be resolved is a data integrity error.
func (s *RoundService) TriggerSettlement(ctx context.Context, roundID *int64) (*models.SettlementResult, error) {
	if roundID != nil {
		return s.EndCountdown(ctx, *roundID)
	}
	last, err := s.countdowns.GetLastFinished(ctx, s.now())
	if errors.Is(err, models.ErrNotFound) {
		s.log.Error("integrity violation: settlement without an expired round")
		return nil, fmt.Errorf("%w: no expired round to settle", models.ErrDataIntegrity)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve last round: %w", err)
	}
	return s.EndCountdown(ctx, last.ID)
}

// SettleExpired settles every expired round that was never settled, oldest
// first. A round failing with ErrDataIntegrity is flagged so later runs skip
// it, and the rest are still settled. Other failures are returned joined and
// retried on the next run.
func (s *RoundService) SettleExpired(ctx context.Context) ([]*models.SettlementResult, error) {
	pending, err := s.countdowns.ListUnsettled(ctx, s.now(), 10)
	if err != nil {
		return nil, err
	}
	var (
		results []*models.SettlementResult
		errs    []error
	)
	for _, c := range pending {
		res, err := s.EndCountdown(ctx, c.ID)
		if errors.Is(err, models.ErrDataIntegrity) {
			s.log.Error("round excluded from automatic settlement", zap.Int64("round_id", c.ID), zap.Error(err))
			if markErr := s.countdowns.MarkSettleFailed(ctx, c.ID, err.Error(), s.now()); markErr != nil {
				errs = append(errs, fmt.Errorf("flag round %d: %w", c.ID, markErr))
			}
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// decideSettlement marks the winning predictions and computes the split.
func decideSettlement(c *models.Countdown, active []models.Prediction) (*models.SettlementResult, error) {
	pair, ok := c.RevealedPair()
	if !ok {
		return nil, fmt.Errorf("%w: round %d has no dice", models.ErrDataIntegrity, c.ID)
	}
	winners := models.MarkWinners(pair, active)
	winning := 0
	for _, p := range active {
		if p.IsWin {
			winning++
		}
	}
	return &models.SettlementResult{
		CountdownID:        c.ID,
		DiceNumber1:        c.DiceNumber1,
		DiceNumber2:        c.DiceNumber2,
		Amount:             c.Amount,
		WinningPredictions: winning,
		WinnersCount:       winners,
		AmountPerWinner:    models.SplitPrize(c.Amount, winners),
	}, nil
}
