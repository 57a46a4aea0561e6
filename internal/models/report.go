package models

import "time"

// DailyReport is the per-day dashboard row.
type DailyReport struct {
	Day                   time.Time `json:"day"`
	JoinedPlayers         int       `json:"joined_players"`
	JoinedWithoutReferral int       `json:"joined_without_referral"`
	ConnectedWallets      int       `json:"connected_wallets"`
	NewWallets            int       `json:"new_wallets"`
	Referrals             int       `json:"referrals"`
	Winners               int       `json:"winners"`
	PredictingPlayers     int       `json:"predicting_players"`
	ChannelSubscribers    *int64    `json:"channel_subscribers,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

// GiveawayFilter restricts the random draw to players meeting every minimum.
type GiveawayFilter struct {
	MinPredictions int  `json:"min_predictions"`
	MinWins        int  `json:"min_wins"`
	MinReferrals   int  `json:"min_referrals"`
	RequireWallet  bool `json:"require_wallet"`
}
