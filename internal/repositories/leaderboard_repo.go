package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dicemaniacs/backend/internal/models"
)

// LeaderboardRepo loads the raw counters points are computed from.
type LeaderboardRepo struct {
	pool *pgxpool.Pool
}

func NewLeaderboardRepo(pool *pgxpool.Pool) *LeaderboardRepo {
	return &LeaderboardRepo{pool: pool}
}

const pointInputsQuery = `
	SELECT p.telegram_id, p.username, p.first_name,
	       p.mini_app_opened_at IS NOT NULL,
	       COALESCE(p.wallet_address, '') <> '',
	       COALESCE(w.cnt, 0), COALESCE(pr.cnt, 0), COALESCE(rf.cnt, 0)
	FROM players p
	LEFT JOIN (
		SELECT player_id, COUNT(DISTINCT countdown_id) AS cnt
		FROM predictions WHERE is_win GROUP BY player_id
	) w ON w.player_id = p.telegram_id
	LEFT JOIN (
		SELECT player_id, COUNT(DISTINCT countdown_id) AS cnt
		FROM predictions GROUP BY player_id
	) pr ON pr.player_id = p.telegram_id
	LEFT JOIN (
		SELECT referrer_id, COUNT(*) AS cnt
		FROM referrals GROUP BY referrer_id
	) rf ON rf.referrer_id = p.telegram_id`

func scanPointInputs(row pgx.Row) (models.PointInputs, error) {
	var in models.PointInputs
	err := row.Scan(&in.TelegramID, &in.Username, &in.FirstName, &in.MiniAppOpened, &in.WalletConnected,
		&in.WinningRounds, &in.RoundsPlayed, &in.Referrals)
	return in, err
}

func (r *LeaderboardRepo) AllPointInputs(ctx context.Context) ([]models.PointInputs, error) {
	rows, err := r.pool.Query(ctx, pointInputsQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var inputs []models.PointInputs
	for rows.Next() {
		in, err := scanPointInputs(rows)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}
	return inputs, rows.Err()
}

func (r *LeaderboardRepo) PointInputs(ctx context.Context, playerID int64) (models.PointInputs, error) {
	in, err := scanPointInputs(r.pool.QueryRow(ctx, pointInputsQuery+` WHERE p.telegram_id = $1`, playerID))
	if err != nil {
		return models.PointInputs{}, notFound(err)
	}
	return in, nil
}
