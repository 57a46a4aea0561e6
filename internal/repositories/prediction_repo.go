package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dicemaniacs/backend/internal/models"
)

type PredictionRepo struct {
	pool *pgxpool.Pool
}

func NewPredictionRepo(pool *pgxpool.Pool) *PredictionRepo {
	return &PredictionRepo{pool: pool}
}

const predictionColumns = `id, player_id, countdown_id, slot, dice_number1, dice_number2, is_win, is_active, created_at`

func listPredictions(ctx context.Context, q querier, sql string, args ...any) ([]models.Prediction, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	preds := []models.Prediction{}
	for rows.Next() {
		var p models.Prediction
		if err := rows.Scan(&p.ID, &p.PlayerID, &p.CountdownID, &p.Slot, &p.DiceNumber1, &p.DiceNumber2,
			&p.IsWin, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, rows.Err()
}

// SubmitCheck validates a submission while the player row and the round row are locked.
type SubmitCheck func(c *models.Countdown, active []models.Prediction) error

// Submit stores p as the active prediction of its slot, superseding the
// previous one. The player row is locked for update and the round row for
// share, so a player's submissions are serialized and a settlement of the
// round never interleaves with them.
func (r *PredictionRepo) Submit(ctx context.Context, p *models.Prediction, check SubmitCheck) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var locked int64
		err := tx.QueryRow(ctx, `SELECT telegram_id FROM players WHERE telegram_id = $1 FOR UPDATE`, p.PlayerID).Scan(&locked)
		if err != nil {
			return fmt.Errorf("lock player: %w", notFound(err))
		}

		c, err := scanCountdown(tx.QueryRow(ctx, `SELECT `+countdownColumns+` FROM countdowns WHERE id = $1 FOR SHARE`, p.CountdownID))
		if err != nil {
			return fmt.Errorf("lock round: %w", err)
		}

		active, err := listPredictions(ctx, tx, `
			SELECT `+predictionColumns+` FROM predictions
			WHERE player_id = $1 AND countdown_id = $2 AND is_active
			ORDER BY slot
		`, p.PlayerID, p.CountdownID)
		if err != nil {
			return err
		}

		if err := check(c, active); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE predictions SET is_active = false
			WHERE player_id = $1 AND countdown_id = $2 AND slot = $3 AND is_active
		`, p.PlayerID, p.CountdownID, p.Slot); err != nil {
			return fmt.Errorf("supersede slot: %w", err)
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO predictions (player_id, countdown_id, slot, dice_number1, dice_number2, is_active)
			VALUES ($1, $2, $3, $4, $5, true)
			RETURNING id, is_win, is_active, created_at
		`, p.PlayerID, p.CountdownID, p.Slot, p.DiceNumber1, p.DiceNumber2).Scan(&p.ID, &p.IsWin, &p.IsActive, &p.CreatedAt)
		if isUniqueViolation(err) {
			return fmt.Errorf("insert prediction: %w", models.ErrDataIntegrity)
		}
		return err
	})
}

func (r *PredictionRepo) ListActive(ctx context.Context, playerID, countdownID int64) ([]models.Prediction, error) {
	return listPredictions(ctx, r.pool, `
		SELECT `+predictionColumns+` FROM predictions
		WHERE player_id = $1 AND countdown_id = $2 AND is_active
		ORDER BY slot
	`, playerID, countdownID)
}

// History lists every prediction of the player, superseded ones included, newest first.
func (r *PredictionRepo) History(ctx context.Context, playerID int64, limit, offset int) ([]models.PredictionHistoryRow, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.player_id, p.countdown_id, p.slot, p.dice_number1, p.dice_number2, p.is_win, p.is_active, p.created_at,
		       c.expire_dt, c.has_end
		FROM predictions p
		JOIN countdowns c ON c.id = p.countdown_id
		WHERE p.player_id = $1
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT $2 OFFSET $3
	`, playerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []models.PredictionHistoryRow{}
	for rows.Next() {
		var h models.PredictionHistoryRow
		if err := rows.Scan(&h.ID, &h.PlayerID, &h.CountdownID, &h.Slot, &h.DiceNumber1, &h.DiceNumber2, &h.IsWin, &h.IsActive, &h.CreatedAt,
			&h.CountdownExpireDT, &h.CountdownHasEnd); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// ListWinners returns one row per distinct winning player of a settled round.
func (r *PredictionRepo) ListWinners(ctx context.Context, countdownID int64) ([]models.Winner, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (p.player_id)
		       p.player_id, pl.username, pl.first_name, pl.language_code, pl.wallet_address,
		       p.dice_number1, p.dice_number2, c.amount_per_winner
		FROM predictions p
		JOIN players pl ON pl.telegram_id = p.player_id
		JOIN countdowns c ON c.id = p.countdown_id
		WHERE p.countdown_id = $1 AND p.is_win
		ORDER BY p.player_id, p.slot
	`, countdownID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	winners := []models.Winner{}
	for rows.Next() {
		var w models.Winner
		if err := rows.Scan(&w.PlayerID, &w.Username, &w.FirstName, &w.LanguageCode, &w.WalletAddress,
			&w.DiceNumber1, &w.DiceNumber2, &w.Amount); err != nil {
			return nil, err
		}
		winners = append(winners, w)
	}
	return winners, rows.Err()
}
