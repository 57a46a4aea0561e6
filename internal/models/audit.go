package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActorTypePlayer = "player"
	ActorTypeAdmin  = "admin"
	ActorTypeSystem = "system"
	ActorTypeBot    = "bot"
)

const (
	AuditActionRoundCreated       = "round_created"
	AuditActionRoundSettled       = "round_settled"
	AuditActionPredictionSaved    = "prediction_submitted"
	AuditActionReferralRegistered = "referral_registered"
	AuditActionWalletConnected    = "wallet_connected"
	AuditActionGiveawayDrawn      = "giveaway_drawn"
)

type AuditLog struct {
	ID         uuid.UUID `json:"id"`
	ActorID    *int64    `json:"actor_id,omitempty"`
	ActorType  string    `json:"actor_type"` // player/admin/system/bot
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   *int64    `json:"entity_id,omitempty"`
	Meta       any       `json:"meta,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
