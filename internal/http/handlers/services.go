package handlers

import (
	"context"
	"time"

	"github.com/dicemaniacs/backend/internal/models"
	"github.com/dicemaniacs/backend/internal/repositories"
	"github.com/dicemaniacs/backend/internal/services"
)

// Handlers depend on the subset of each service they call.

type RoundAPI interface {
	CreateRound(ctx context.Context, in services.CreateRoundInput) (*models.Countdown, error)
	GetActiveCountdown(ctx context.Context) (*models.Countdown, error)
	GetLastCountdown(ctx context.Context) (*models.Countdown, error)
	ListFinished(ctx context.Context, limit, offset int) ([]models.Countdown, error)
	Winners(ctx context.Context, id int64) (*models.Countdown, []models.Winner, error)
	LastWinners(ctx context.Context) (*models.Countdown, []models.Winner, error)
	TriggerSettlement(ctx context.Context, roundID *int64) (*models.SettlementResult, error)
}

type PlayerAPI interface {
	Touch(ctx context.Context, in repositories.PlayerUpsert) (*models.Player, bool, error)
	Get(ctx context.Context, telegramID int64) (*models.Player, error)
	RegisterReferral(ctx context.Context, code string, refereeID int64) (*models.Player, error)
	ReferralCode(ctx context.Context, telegramID int64) (string, error)
	Referrals(ctx context.Context, telegramID int64, limit, offset int) ([]models.ReferralWithReferee, error)
	SetWalletAddress(ctx context.Context, telegramID int64, address string) (string, bool, error)
	DrawGiveaway(ctx context.Context, f models.GiveawayFilter, actorID int64) (*models.Player, error)
}

type PredictionAPI interface {
	SubmitToActive(ctx context.Context, playerID int64, slot, dice1, dice2 int) (*models.Prediction, error)
	Box(ctx context.Context, playerID int64) (*services.PredictionBox, error)
	History(ctx context.Context, playerID int64, limit, offset int) ([]models.PredictionHistoryRow, error)
}

type LeaderboardAPI interface {
	Top(ctx context.Context, n int) ([]models.LeaderboardEntry, error)
	PlayerBreakdown(ctx context.Context, playerID int64) (*services.PlayerPoints, error)
}

type ReportAPI interface {
	Get(ctx context.Context, day time.Time) (*models.DailyReport, error)
}
