package models

import "sort"

// Point weights.
const (
	PointsBase          = 5
	PointsMiniApp       = 10
	PointsWallet        = 500
	PointsPerWinRound   = 50
	PointsPerRound      = 1
	PointsPerReferral   = 5
	DefaultLeaderboardN = 100
)

// PointInputs are the raw counters a player's score is derived from.
type PointInputs struct {
	TelegramID      int64   `json:"telegram_id"`
	Username        *string `json:"username,omitempty"`
	FirstName       *string `json:"first_name,omitempty"`
	MiniAppOpened   bool    `json:"mini_app_opened"`
	WalletConnected bool    `json:"wallet_connected"`
	WinningRounds   int     `json:"winning_rounds"`
	RoundsPlayed    int     `json:"rounds_played"`
	Referrals       int     `json:"referrals"`
}

type PointBreakdown struct {
	Base      int `json:"base"`
	MiniApp   int `json:"mini_app"`
	Wallet    int `json:"wallet"`
	Wins      int `json:"wins"`
	Rounds    int `json:"rounds"`
	Referrals int `json:"referrals"`
	Total     int `json:"total"`
}

func ComputePoints(in PointInputs) PointBreakdown {
	b := PointBreakdown{
		Base:      PointsBase,
		Wins:      PointsPerWinRound * in.WinningRounds,
		Rounds:    PointsPerRound * in.RoundsPlayed,
		Referrals: PointsPerReferral * in.Referrals,
	}
	if in.MiniAppOpened {
		b.MiniApp = PointsMiniApp
	}
	if in.WalletConnected {
		b.Wallet = PointsWallet
	}
	b.Total = b.Base + b.MiniApp + b.Wallet + b.Wins + b.Rounds + b.Referrals
	return b
}

type LeaderboardEntry struct {
	Rank       int     `json:"rank"`
	TelegramID int64   `json:"telegram_id"`
	Username   *string `json:"username,omitempty"`
	FirstName  *string `json:"first_name,omitempty"`
	Point      int     `json:"point"`
}

// RankLeaderboard orders players by point desc, ties broken by telegram id asc,
// and keeps the first limit entries. limit <= 0 keeps everyone.
func RankLeaderboard(inputs []PointInputs, limit int) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(inputs))
	for _, in := range inputs {
		entries = append(entries, LeaderboardEntry{
			TelegramID: in.TelegramID,
			Username:   in.Username,
			FirstName:  in.FirstName,
			Point:      ComputePoints(in).Total,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Point != entries[j].Point {
			return entries[i].Point > entries[j].Point
		}
		return entries[i].TelegramID < entries[j].TelegramID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// Missions is the onboarding checklist shown next to the point breakdown.
type Missions struct {
	MiniAppOpened   bool `json:"mini_app_opened"`
	WalletConnected bool `json:"wallet_connected"`
	HasPredicted    bool `json:"has_predicted"`
	HasReferred     bool `json:"has_referred"`
}

func MissionsFrom(in PointInputs) Missions {
	return Missions{
		MiniAppOpened:   in.MiniAppOpened,
		WalletConnected: in.WalletConnected,
		HasPredicted:    in.RoundsPlayed > 0,
		HasReferred:     in.Referrals > 0,
	}
}
