package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/dicemaniacs/backend/internal/config"
	"github.com/dicemaniacs/backend/internal/models"
)

// LeaderboardService recomputes points on every call; nothing is cached.
type LeaderboardService struct {
	points PointsStore
	cfg    *config.Config
	log    *zap.Logger
}

func NewLeaderboardService(points PointsStore, cfg *config.Config, log *zap.Logger) *LeaderboardService {
	return &LeaderboardService{points: points, cfg: cfg, log: log}
}

// Top ranks every player and returns the first n. n <= 0 uses the configured size.
func (s *LeaderboardService) Top(ctx context.Context, n int) ([]models.LeaderboardEntry, error) {
	if n <= 0 || n > s.cfg.LeaderboardSize {
		n = s.cfg.LeaderboardSize
	}
	inputs, err := s.points.AllPointInputs(ctx)
	if err != nil {
		return nil, err
	}
	return models.RankLeaderboard(inputs, n), nil
}

type PlayerPoints struct {
	TelegramID int64                 `json:"telegram_id"`
	Point      int                   `json:"point"`
	Breakdown  models.PointBreakdown `json:"breakdown"`
	Inputs     models.PointInputs    `json:"inputs"`
	Missions   models.Missions       `json:"missions"`
}

func (s *LeaderboardService) PlayerBreakdown(ctx context.Context, playerID int64) (*PlayerPoints, error) {
	in, err := s.points.PointInputs(ctx, playerID)
	if err != nil {
		return nil, err
	}
	b := models.ComputePoints(in)
	return &PlayerPoints{
		TelegramID: playerID,
		Point:      b.Total,
		Breakdown:  b,
		Inputs:     in,
		Missions:   models.MissionsFrom(in),
	}, nil
}
