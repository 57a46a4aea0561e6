package rbac

import "github.com/dicemaniacs/backend/internal/config"

// Role constants
const (
	RolePlayer  = "player"
	RoleSupport = "support"
	RoleAdmin   = "admin"
)

// Permission constants
const (
	PermCreateRound  = "create_round"
	PermSettleRound  = "settle_round"
	PermViewReports  = "view_reports"
	PermDrawGiveaway = "draw_giveaway"
)

// RolePermissions defines what each role can do.
var RolePermissions = map[string][]string{
	RoleAdmin: {
		PermCreateRound, PermSettleRound, PermViewReports, PermDrawGiveaway,
	},
	RoleSupport: {
		PermSettleRound, PermViewReports,
		// Support CANNOT: PermCreateRound, PermDrawGiveaway
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	for _, p := range RolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// RoleOf resolves the role of a Telegram user from the configured id lists.
func RoleOf(cfg *config.Config, telegramID int64) string {
	switch {
	case cfg.IsAdmin(telegramID):
		return RoleAdmin
	case cfg.IsSupport(telegramID):
		return RoleSupport
	default:
		return RolePlayer
	}
}
