package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dicemaniacs/backend/internal/config"
	"github.com/dicemaniacs/backend/internal/models"
)

// SubscriberCounter reports the subscriber count of a public channel.
type SubscriberCounter interface {
	Subscribers(ctx context.Context, channel string) (int64, error)
}

type ReportService struct {
	reports ReportStore
	counter SubscriberCounter
	cfg     *config.Config
	log     *zap.Logger
}

func NewReportService(reports ReportStore, counter SubscriberCounter, cfg *config.Config, log *zap.Logger) *ReportService {
	return &ReportService{reports: reports, counter: counter, cfg: cfg, log: log}
}

// BuildDaily computes and stores the report of the UTC day containing day.
// A failed subscriber lookup leaves the count empty instead of failing the report.
func (s *ReportService) BuildDaily(ctx context.Context, day time.Time) (*models.DailyReport, error) {
	from := truncateDay(day)
	to := from.Add(24 * time.Hour)

	rep, err := s.reports.Compute(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("compute report: %w", err)
	}
	rep.Day = from

	if s.counter != nil && s.cfg.AnnounceChannel != "" {
		n, err := s.counter.Subscribers(ctx, s.cfg.AnnounceChannel)
		if err != nil {
			s.log.Warn("failed to fetch channel subscribers", zap.String("channel", s.cfg.AnnounceChannel), zap.Error(err))
		} else {
			rep.ChannelSubscribers = &n
		}
	}

	if err := s.reports.Upsert(ctx, rep); err != nil {
		return nil, fmt.Errorf("store report: %w", err)
	}

	s.log.Info("daily report stored",
		zap.Time("day", from),
		zap.Int("joined_players", rep.JoinedPlayers),
		zap.Int("new_wallets", rep.NewWallets),
		zap.Int("winners", rep.Winners),
	)
	return rep, nil
}

func (s *ReportService) Get(ctx context.Context, day time.Time) (*models.DailyReport, error) {
	return s.reports.Get(ctx, truncateDay(day))
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
