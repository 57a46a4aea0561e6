package repositories

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dicemaniacs/backend/internal/models"
)

type PlayerRepo struct {
	pool *pgxpool.Pool
}

func NewPlayerRepo(pool *pgxpool.Pool) *PlayerRepo {
	return &PlayerRepo{pool: pool}
}

// PlayerUpsert carries the Telegram profile of a player seen by the bot or the mini-app.
type PlayerUpsert struct {
	TelegramID    int64
	Username      *string
	FirstName     *string
	LastName      *string
	LanguageCode  string
	OpenedMiniApp bool
}

const playerColumns = `telegram_id, username, first_name, last_name, language_code, wallet_address,
		       wallet_insert_dt, referral_code, mini_app_opened_at, created_at, last_active_at`

func scanPlayer(row pgx.Row, extra ...any) (*models.Player, error) {
	var p models.Player
	dest := []any{&p.TelegramID, &p.Username, &p.FirstName, &p.LastName, &p.LanguageCode, &p.WalletAddress,
		&p.WalletInsertDT, &p.ReferralCode, &p.MiniAppOpenedAt, &p.CreatedAt, &p.LastActiveAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// Upsert creates the player or refreshes its profile. created reports whether
// the row was inserted by this call.
func (r *PlayerRepo) Upsert(ctx context.Context, in PlayerUpsert) (*models.Player, bool, error) {
	lang := in.LanguageCode
	if lang == "" {
		lang = "en"
	}
	var created bool
	p, err := scanPlayer(r.pool.QueryRow(ctx, `
		INSERT INTO players (telegram_id, username, first_name, last_name, language_code, mini_app_opened_at)
		VALUES ($1, $2, $3, $4, $5, CASE WHEN $6 THEN now() END)
		ON CONFLICT (telegram_id) DO UPDATE SET
			username = COALESCE(EXCLUDED.username, players.username),
			first_name = COALESCE(EXCLUDED.first_name, players.first_name),
			last_name = COALESCE(EXCLUDED.last_name, players.last_name),
			language_code = EXCLUDED.language_code,
			mini_app_opened_at = COALESCE(players.mini_app_opened_at, EXCLUDED.mini_app_opened_at),
			last_active_at = now()
		RETURNING `+playerColumns+`, (xmax = 0)
	`, in.TelegramID, in.Username, in.FirstName, in.LastName, lang, in.OpenedMiniApp), &created)
	if err != nil {
		return nil, false, err
	}
	return p, created, nil
}

func (r *PlayerRepo) GetByTelegramID(ctx context.Context, telegramID int64) (*models.Player, error) {
	return scanPlayer(r.pool.QueryRow(ctx, `SELECT `+playerColumns+` FROM players WHERE telegram_id = $1`, telegramID))
}

func (r *PlayerRepo) GetByReferralCode(ctx context.Context, code string) (*models.Player, error) {
	return scanPlayer(r.pool.QueryRow(ctx, `SELECT `+playerColumns+` FROM players WHERE referral_code = $1`, code))
}

// EnsureReferralCode stores code unless the player already has one, and
// returns the code in effect. A collision with another player's code
// surfaces as ErrDuplicateCode so the caller can retry with a new one.
func (r *PlayerRepo) EnsureReferralCode(ctx context.Context, telegramID int64, code string) (string, error) {
	var stored string
	err := r.pool.QueryRow(ctx, `
		UPDATE players SET referral_code = COALESCE(referral_code, $2)
		WHERE telegram_id = $1
		RETURNING referral_code
	`, telegramID, code).Scan(&stored)
	if isUniqueViolation(err) {
		return "", ErrDuplicateCode
	}
	if err != nil {
		return "", notFound(err)
	}
	return stored, nil
}

// SetWallet stores the address and stamps wallet_insert_dt only the first time.
func (r *PlayerRepo) SetWallet(ctx context.Context, telegramID int64, address string, now time.Time) (bool, error) {
	var firstTime bool
	err := r.pool.QueryRow(ctx, `
		WITH prev AS (
			SELECT wallet_insert_dt FROM players WHERE telegram_id = $1 FOR UPDATE
		)
		UPDATE players p SET
			wallet_address = $2,
			wallet_insert_dt = COALESCE(p.wallet_insert_dt, $3),
			last_active_at = $3
		FROM prev
		WHERE p.telegram_id = $1
		RETURNING prev.wallet_insert_dt IS NULL
	`, telegramID, address, now).Scan(&firstTime)
	if err != nil {
		return false, notFound(err)
	}
	return firstTime, nil
}

// RandomEligible draws one player meeting every minimum of f, or ErrNotFound.
func (r *PlayerRepo) RandomEligible(ctx context.Context, f models.GiveawayFilter) (*models.Player, error) {
	query := `
		SELECT ` + qualified("p", playerColumns) + `
		FROM players p
		LEFT JOIN (SELECT player_id, COUNT(*) AS cnt FROM predictions GROUP BY player_id) pr ON pr.player_id = p.telegram_id
		LEFT JOIN (SELECT player_id, COUNT(DISTINCT countdown_id) AS cnt FROM predictions WHERE is_win GROUP BY player_id) w ON w.player_id = p.telegram_id
		LEFT JOIN (SELECT referrer_id, COUNT(*) AS cnt FROM referrals GROUP BY referrer_id) rf ON rf.referrer_id = p.telegram_id
		WHERE COALESCE(pr.cnt, 0) >= $1 AND COALESCE(w.cnt, 0) >= $2 AND COALESCE(rf.cnt, 0) >= $3`
	if f.RequireWallet {
		query += ` AND p.wallet_address IS NOT NULL AND p.wallet_address <> ''`
	}
	query += ` ORDER BY random() LIMIT 1`

	return scanPlayer(r.pool.QueryRow(ctx, query, f.MinPredictions, f.MinWins, f.MinReferrals))
}

// qualified prefixes every column of a comma separated list with alias.
func qualified(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, c := range parts {
		parts[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(parts, ", ")
}
