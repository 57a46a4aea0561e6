package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dicemaniacs/backend/internal/models"
)

type ReportRepo struct {
	pool *pgxpool.Pool
}

func NewReportRepo(pool *pgxpool.Pool) *ReportRepo {
	return &ReportRepo{pool: pool}
}

// Compute aggregates activity in [from, to). Connected wallets is a running total.
func (r *ReportRepo) Compute(ctx context.Context, from, to time.Time) (*models.DailyReport, error) {
	rep := models.DailyReport{Day: from}
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM players WHERE created_at >= $1 AND created_at < $2),
			(SELECT COUNT(*) FROM players p WHERE p.created_at >= $1 AND p.created_at < $2
				AND NOT EXISTS (SELECT 1 FROM referrals rf WHERE rf.referee_id = p.telegram_id)),
			(SELECT COUNT(*) FROM players WHERE COALESCE(wallet_address, '') <> '' AND wallet_insert_dt < $2),
			(SELECT COUNT(*) FROM players WHERE wallet_insert_dt >= $1 AND wallet_insert_dt < $2),
			(SELECT COUNT(*) FROM referrals WHERE created_at >= $1 AND created_at < $2),
			(SELECT COUNT(DISTINCT p.player_id) FROM predictions p
				JOIN countdowns c ON c.id = p.countdown_id
				WHERE p.is_win AND c.settled_at >= $1 AND c.settled_at < $2),
			(SELECT COUNT(DISTINCT player_id) FROM predictions WHERE created_at >= $1 AND created_at < $2)
	`, from, to).Scan(&rep.JoinedPlayers, &rep.JoinedWithoutReferral, &rep.ConnectedWallets, &rep.NewWallets,
		&rep.Referrals, &rep.Winners, &rep.PredictingPlayers)
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

func (r *ReportRepo) Upsert(ctx context.Context, rep *models.DailyReport) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO daily_reports (day, joined_players, joined_without_referral, connected_wallets, new_wallets,
		                           referrals, winners, predicting_players, channel_subscribers)
		VALUES ($1::date, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (day) DO UPDATE SET
			joined_players = EXCLUDED.joined_players,
			joined_without_referral = EXCLUDED.joined_without_referral,
			connected_wallets = EXCLUDED.connected_wallets,
			new_wallets = EXCLUDED.new_wallets,
			referrals = EXCLUDED.referrals,
			winners = EXCLUDED.winners,
			predicting_players = EXCLUDED.predicting_players,
			channel_subscribers = COALESCE(EXCLUDED.channel_subscribers, daily_reports.channel_subscribers),
			created_at = now()
		RETURNING created_at
	`, rep.Day, rep.JoinedPlayers, rep.JoinedWithoutReferral, rep.ConnectedWallets, rep.NewWallets,
		rep.Referrals, rep.Winners, rep.PredictingPlayers, rep.ChannelSubscribers).Scan(&rep.CreatedAt)
}

func (r *ReportRepo) Get(ctx context.Context, day time.Time) (*models.DailyReport, error) {
	var rep models.DailyReport
	err := r.pool.QueryRow(ctx, `
		SELECT day, joined_players, joined_without_referral, connected_wallets, new_wallets,
		       referrals, winners, predicting_players, channel_subscribers, created_at
		FROM daily_reports WHERE day = $1::date
	`, day).Scan(&rep.Day, &rep.JoinedPlayers, &rep.JoinedWithoutReferral, &rep.ConnectedWallets, &rep.NewWallets,
		&rep.Referrals, &rep.Winners, &rep.PredictingPlayers, &rep.ChannelSubscribers, &rep.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &rep, nil
}
