package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dicemaniacs/backend/internal/models"
)

// roundCreateLockKey serializes round creation across api and worker.
const roundCreateLockKey = 7_301_604_412

type CountdownRepo struct {
	pool *pgxpool.Pool
}

func NewCountdownRepo(pool *pgxpool.Pool) *CountdownRepo {
	return &CountdownRepo{pool: pool}
}

const countdownColumns = `id, expire_dt, dice_number1, dice_number2, amount, is_active, has_end,
		       winners_count, amount_per_winner, settled_at, created_at`

func scanCountdown(row pgx.Row) (*models.Countdown, error) {
	var c models.Countdown
	err := row.Scan(&c.ID, &c.ExpireDT, &c.DiceNumber1, &c.DiceNumber2, &c.Amount, &c.IsActive, &c.HasEnd,
		&c.WinnersCount, &c.AmountPerWinner, &c.SettledAt, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func scanCountdowns(rows pgx.Rows) ([]models.Countdown, error) {
	defer rows.Close()
	list := []models.Countdown{}
	for rows.Next() {
		c, err := scanCountdown(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}

// CreateActive deactivates every active round and inserts c as the only active one.
func (r *CountdownRepo) CreateActive(ctx context.Context, c *models.Countdown) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, roundCreateLockKey); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE countdowns SET is_active = false WHERE is_active`); err != nil {
			return fmt.Errorf("deactivate rounds: %w", err)
		}
		created, err := scanCountdown(tx.QueryRow(ctx, `
			INSERT INTO countdowns (expire_dt, dice_number1, dice_number2, amount, is_active)
			VALUES ($1, $2, $3, $4, true)
			RETURNING `+countdownColumns,
			c.ExpireDT, c.DiceNumber1, c.DiceNumber2, c.Amount))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert round: %w", models.ErrDataIntegrity)
			}
			return fmt.Errorf("insert round: %w", err)
		}
		*c = *created
		return nil
	})
}

// GetActive returns the single active round. Two active rows is an integrity failure.
func (r *CountdownRepo) GetActive(ctx context.Context) (*models.Countdown, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+countdownColumns+` FROM countdowns WHERE is_active ORDER BY id LIMIT 2`)
	if err != nil {
		return nil, err
	}
	list, err := scanCountdowns(rows)
	if err != nil {
		return nil, err
	}
	switch len(list) {
	case 0:
		return nil, models.ErrNotFound
	case 1:
		return &list[0], nil
	default:
		return nil, fmt.Errorf("%w: rounds %d and %d are both active", models.ErrDataIntegrity, list[0].ID, list[1].ID)
	}
}

func (r *CountdownRepo) GetByID(ctx context.Context, id int64) (*models.Countdown, error) {
	return scanCountdown(r.pool.QueryRow(ctx, `SELECT `+countdownColumns+` FROM countdowns WHERE id = $1`, id))
}

// GetLastFinished returns the round with the latest expiry at or before now.
func (r *CountdownRepo) GetLastFinished(ctx context.Context, now time.Time) (*models.Countdown, error) {
	return scanCountdown(r.pool.QueryRow(ctx, `
		SELECT `+countdownColumns+` FROM countdowns
		WHERE expire_dt <= $1
		ORDER BY expire_dt DESC, id DESC LIMIT 1
	`, now))
}

func (r *CountdownRepo) ListFinished(ctx context.Context, now time.Time, limit, offset int) ([]models.Countdown, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+countdownColumns+` FROM countdowns
		WHERE expire_dt <= $1
		ORDER BY expire_dt DESC, id DESC
		LIMIT $2 OFFSET $3
	`, now, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanCountdowns(rows)
}

// ListUnsettled returns expired rounds that were never settled, oldest first.
// Rounds flagged by MarkSettleFailed are left out.
func (r *CountdownRepo) ListUnsettled(ctx context.Context, now time.Time, limit int) ([]models.Countdown, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+countdownColumns+` FROM countdowns
		WHERE expire_dt <= $1 AND has_end = false AND settle_failed_at IS NULL
		ORDER BY expire_dt ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return scanCountdowns(rows)
}

// MarkSettleFailed flags a round so automatic settlement stops picking it up.
func (r *CountdownRepo) MarkSettleFailed(ctx context.Context, id int64, reason string, now time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE countdowns SET settle_failed_at = $2, settle_error = $3
		WHERE id = $1 AND has_end = false
	`, id, now, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SettleFunc decides the outcome of a round. It receives the round with
// has_end already claimed and the round's active predictions, sets IsWin on
// them and returns the payout figures.
type SettleFunc func(c *models.Countdown, active []models.Prediction) (*models.SettlementResult, error)

// Settle claims the round with a conditional update so only one caller ever
// settles it, then persists the outcome decided by decide in the same transaction.
// An already settled round yields its stored result with AlreadySettled set.
func (r *CountdownRepo) Settle(ctx context.Context, id int64, now time.Time, decide SettleFunc) (*models.SettlementResult, error) {
	var result *models.SettlementResult
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		c, err := scanCountdown(tx.QueryRow(ctx, `
			UPDATE countdowns SET has_end = true, settled_at = $2
			WHERE id = $1 AND has_end = false AND expire_dt <= $2
			RETURNING `+countdownColumns, id, now))
		if errors.Is(err, models.ErrNotFound) {
			cur, err := scanCountdown(tx.QueryRow(ctx, `SELECT `+countdownColumns+` FROM countdowns WHERE id = $1`, id))
			if err != nil {
				return err
			}
			if cur.HasEnd {
				result = models.ResultFromCountdown(cur)
				return nil
			}
			return models.ErrInvalidState
		}
		if err != nil {
			return err
		}

		active, err := listPredictions(ctx, tx, `
			SELECT `+predictionColumns+` FROM predictions
			WHERE countdown_id = $1 AND is_active
			ORDER BY id
			FOR UPDATE
		`, id)
		if err != nil {
			return fmt.Errorf("load predictions: %w", err)
		}

		res, err := decide(c, active)
		if err != nil {
			return err
		}

		winnerIDs := make([]int64, 0)
		for _, p := range active {
			if p.IsWin {
				winnerIDs = append(winnerIDs, p.ID)
			}
		}
		if _, err := tx.Exec(ctx, `
			UPDATE predictions SET is_win = (id = ANY($2))
			WHERE countdown_id = $1
		`, id, winnerIDs); err != nil {
			return fmt.Errorf("mark winners: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE countdowns SET winners_count = $2, amount_per_winner = $3
			WHERE id = $1
		`, id, res.WinnersCount, res.AmountPerWinner); err != nil {
			return fmt.Errorf("store payout: %w", err)
		}

		res.CountdownID = c.ID
		res.SettledAt = &now
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
