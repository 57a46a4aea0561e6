package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dicemaniacs/backend/internal/config"
	"github.com/dicemaniacs/backend/internal/events"
	"github.com/dicemaniacs/backend/internal/metrics"
	"github.com/dicemaniacs/backend/internal/models"
	"github.com/dicemaniacs/backend/internal/repositories"
	"github.com/dicemaniacs/backend/internal/ton"
)

const referralCodeAttempts = 5

type PlayerService struct {
	players   PlayerStore
	referrals ReferralStore
	auditRepo AuditLogger
	publisher events.Publisher
	cfg       *config.Config
	log       *zap.Logger
	now       func() time.Time
}

func NewPlayerService(
	players PlayerStore,
	referrals ReferralStore,
	auditRepo AuditLogger,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *PlayerService {
	return &PlayerService{
		players:   players,
		referrals: referrals,
		auditRepo: auditRepo,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// Touch creates or refreshes the player. created is true on first contact.
func (s *PlayerService) Touch(ctx context.Context, in repositories.PlayerUpsert) (*models.Player, bool, error) {
	p, created, err := s.players.Upsert(ctx, in)
	if err != nil {
		return nil, false, fmt.Errorf("upsert player: %w", err)
	}
	if created {
		s.log.Info("player joined", zap.Int64("telegram_id", p.TelegramID))
	}
	return p, created, nil
}

func (s *PlayerService) Get(ctx context.Context, telegramID int64) (*models.Player, error) {
	return s.players.GetByTelegramID(ctx, telegramID)
}

// RegisterReferral links refereeID to the owner of code. A referee keeps its
// first referrer forever.
func (s *PlayerService) RegisterReferral(ctx context.Context, code string, refereeID int64) (*models.Player, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, models.ErrInvalidInput
	}
	referrer, err := s.players.GetByReferralCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("resolve referral code: %w", err)
	}
	if referrer.TelegramID == refereeID {
		return nil, fmt.Errorf("%w: self referral", models.ErrInvalidInput)
	}

	created, err := s.referrals.Create(ctx, referrer.TelegramID, refereeID)
	if err != nil {
		return nil, fmt.Errorf("create referral: %w", err)
	}
	if !created {
		return nil, models.ErrAlreadyReferred
	}
	metrics.ReferralRegistered()

	_ = s.auditRepo.Log(ctx, models.AuditLog{
		ActorID:    &refereeID,
		ActorType:  models.ActorTypePlayer,
		Action:     models.AuditActionReferralRegistered,
		EntityType: "player",
		EntityID:   &referrer.TelegramID,
	})

	_ = s.publisher.Publish(ctx, events.RoundChannel, events.Event{
		Type: events.EventReferralRegistered,
		Payload: map[string]any{
			"referrer_id": referrer.TelegramID,
			"referee_id":  refereeID,
		},
	})

	s.log.Info("referral registered",
		zap.Int64("referrer_id", referrer.TelegramID),
		zap.Int64("referee_id", refereeID),
	)
	return referrer, nil
}

// ReferralCode returns the player's code, generating it on first use.
func (s *PlayerService) ReferralCode(ctx context.Context, telegramID int64) (string, error) {
	p, err := s.players.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return "", err
	}
	if p.ReferralCode != nil && *p.ReferralCode != "" {
		return *p.ReferralCode, nil
	}

	for i := 0; i < referralCodeAttempts; i++ {
		code, err := s.players.EnsureReferralCode(ctx, telegramID, newReferralCode())
		if errors.Is(err, repositories.ErrDuplicateCode) {
			continue
		}
		return code, err
	}
	return "", fmt.Errorf("could not allocate referral code after %d attempts", referralCodeAttempts)
}

func (s *PlayerService) ReferralLink(ctx context.Context, telegramID int64) (string, error) {
	code, err := s.ReferralCode(ctx, telegramID)
	if err != nil {
		return "", err
	}
	return s.cfg.ReferralLink(code), nil
}

func (s *PlayerService) Referrals(ctx context.Context, telegramID int64, limit, offset int) ([]models.ReferralWithReferee, error) {
	return s.referrals.ListByReferrer(ctx, telegramID, limit, offset)
}

// SetWalletAddress normalizes and stores the address. firstTime reports
// whether this is the player's first wallet; wallet_insert_dt is only set then.
func (s *PlayerService) SetWalletAddress(ctx context.Context, telegramID int64, address string) (string, bool, error) {
	normalized, err := ton.NormalizeAddress(address, s.cfg.TONNetwork)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}

	firstTime, err := s.players.SetWallet(ctx, telegramID, normalized, s.now())
	if err != nil {
		return "", false, fmt.Errorf("set wallet: %w", err)
	}

	_ = s.auditRepo.Log(ctx, models.AuditLog{
		ActorID:    &telegramID,
		ActorType:  models.ActorTypePlayer,
		Action:     models.AuditActionWalletConnected,
		EntityType: "player",
		EntityID:   &telegramID,
		Meta:       map[string]any{"address": normalized, "first_time": firstTime},
	})

	s.log.Info("wallet connected",
		zap.Int64("telegram_id", telegramID),
		zap.String("address", normalized),
		zap.Bool("first_time", firstTime),
	)
	return normalized, firstTime, nil
}

// DrawGiveaway picks a random player meeting every minimum of f.
func (s *PlayerService) DrawGiveaway(ctx context.Context, f models.GiveawayFilter, actorID int64) (*models.Player, error) {
	if f.MinPredictions < 0 || f.MinWins < 0 || f.MinReferrals < 0 {
		return nil, models.ErrInvalidInput
	}
	p, err := s.players.RandomEligible(ctx, f)
	if err != nil {
		return nil, err
	}

	_ = s.auditRepo.Log(ctx, models.AuditLog{
		ActorID:    &actorID,
		ActorType:  models.ActorTypeAdmin,
		Action:     models.AuditActionGiveawayDrawn,
		EntityType: "player",
		EntityID:   &p.TelegramID,
		Meta:       f,
	})
	return p, nil
}

func newReferralCode() string {
	b := make([]byte, 5)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
