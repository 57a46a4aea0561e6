package services

import (
	"context"
	"time"

	"github.com/dicemaniacs/backend/internal/models"
	"github.com/dicemaniacs/backend/internal/repositories"
)

// The store interfaces are implemented by the pgx repositories and by
// in-memory fakes in tests.

type CountdownStore interface {
	CreateActive(ctx context.Context, c *models.Countdown) error
	GetActive(ctx context.Context) (*models.Countdown, error)
	GetByID(ctx context.Context, id int64) (*models.Countdown, error)
	GetLastFinished(ctx context.Context, now time.Time) (*models.Countdown, error)
	ListFinished(ctx context.Context, now time.Time, limit, offset int) ([]models.Countdown, error)
	ListUnsettled(ctx context.Context, now time.Time, limit int) ([]models.Countdown, error)
	MarkSettleFailed(ctx context.Context, id int64, reason string, now time.Time) error
	Settle(ctx context.Context, id int64, now time.Time, decide repositories.SettleFunc) (*models.SettlementResult, error)
}

type PredictionStore interface {
	Submit(ctx context.Context, p *models.Prediction, check repositories.SubmitCheck) error
	ListActive(ctx context.Context, playerID, countdownID int64) ([]models.Prediction, error)
	History(ctx context.Context, playerID int64, limit, offset int) ([]models.PredictionHistoryRow, error)
	ListWinners(ctx context.Context, countdownID int64) ([]models.Winner, error)
}

type PlayerStore interface {
	Upsert(ctx context.Context, in repositories.PlayerUpsert) (*models.Player, bool, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.Player, error)
	GetByReferralCode(ctx context.Context, code string) (*models.Player, error)
	EnsureReferralCode(ctx context.Context, telegramID int64, code string) (string, error)
	SetWallet(ctx context.Context, telegramID int64, address string, now time.Time) (bool, error)
	RandomEligible(ctx context.Context, f models.GiveawayFilter) (*models.Player, error)
}

type ReferralStore interface {
	Create(ctx context.Context, referrerID, refereeID int64) (bool, error)
	CountByReferrer(ctx context.Context, referrerID int64, since *time.Time) (int, error)
	ListByReferrer(ctx context.Context, referrerID int64, limit, offset int) ([]models.ReferralWithReferee, error)
}

type PointsStore interface {
	AllPointInputs(ctx context.Context) ([]models.PointInputs, error)
	PointInputs(ctx context.Context, playerID int64) (models.PointInputs, error)
}

type ReportStore interface {
	Compute(ctx context.Context, from, to time.Time) (*models.DailyReport, error)
	Upsert(ctx context.Context, rep *models.DailyReport) error
	Get(ctx context.Context, day time.Time) (*models.DailyReport, error)
}

type AuditLogger interface {
	Log(ctx context.Context, entry models.AuditLog) error
}
