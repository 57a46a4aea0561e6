package models

import "time"

type Player struct {
	TelegramID      int64      `json:"telegram_id"`
	Username        *string    `json:"telegram_username,omitempty"`
	FirstName       *string    `json:"first_name,omitempty"`
	LastName        *string    `json:"last_name,omitempty"`
	LanguageCode    string     `json:"telegram_language_code"`
	WalletAddress   *string    `json:"wallet_address,omitempty"`
	WalletInsertDT  *time.Time `json:"wallet_insert_dt,omitempty"`
	ReferralCode    *string    `json:"referral_code,omitempty"`
	MiniAppOpenedAt *time.Time `json:"mini_app_opened_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	LastActiveAt    time.Time  `json:"last_active_at"`
}

func (p *Player) HasWallet() bool {
	return p.WalletAddress != nil && *p.WalletAddress != ""
}

// DisplayName returns the best human-readable name for notifications.
func (p *Player) DisplayName() string {
	if p.FirstName != nil && *p.FirstName != "" {
		return *p.FirstName
	}
	if p.Username != nil && *p.Username != "" {
		return *p.Username
	}
	return "player"
}

type Referral struct {
	ID         int64     `json:"id"`
	ReferrerID int64     `json:"referrer_id"`
	RefereeID  int64     `json:"referee_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReferralWithReferee is a referral row joined with the referee profile.
type ReferralWithReferee struct {
	Referral
	RefereeUsername  *string `json:"referee_username,omitempty"`
	RefereeFirstName *string `json:"referee_first_name,omitempty"`
}
