package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dicemaniacs/backend/internal/models"
)

type ReferralRepo struct {
	pool *pgxpool.Pool
}

func NewReferralRepo(pool *pgxpool.Pool) *ReferralRepo {
	return &ReferralRepo{pool: pool}
}

// Create records referee as referred by referrer. It returns false when the
// referee already had a referrer; the first referral always wins.
func (r *ReferralRepo) Create(ctx context.Context, referrerID, refereeID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO referrals (referrer_id, referee_id)
		VALUES ($1, $2)
		ON CONFLICT (referee_id) DO NOTHING
	`, referrerID, refereeID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CountByReferrer counts referrals made by referrerID, optionally only those since a moment.
func (r *ReferralRepo) CountByReferrer(ctx context.Context, referrerID int64, since *time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM referrals
		WHERE referrer_id = $1 AND ($2::timestamptz IS NULL OR created_at >= $2)
	`, referrerID, since).Scan(&n)
	return n, err
}

func (r *ReferralRepo) ListByReferrer(ctx context.Context, referrerID int64, limit, offset int) ([]models.ReferralWithReferee, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT rf.id, rf.referrer_id, rf.referee_id, rf.created_at, p.username, p.first_name
		FROM referrals rf
		JOIN players p ON p.telegram_id = rf.referee_id
		WHERE rf.referrer_id = $1
		ORDER BY rf.created_at DESC
		LIMIT $2 OFFSET $3
	`, referrerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := []models.ReferralWithReferee{}
	for rows.Next() {
		var ref models.ReferralWithReferee
		if err := rows.Scan(&ref.ID, &ref.ReferrerID, &ref.RefereeID, &ref.CreatedAt, &ref.RefereeUsername, &ref.RefereeFirstName); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
