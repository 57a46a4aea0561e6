package dto

type AuthResponse struct {
	Token   string `json:"token"`
	Player  any    `json:"player"`
	Created bool   `json:"created"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type WinnersResponse struct {
	Countdown any `json:"countdown"`
	Winners   any `json:"winners"`
}

type ReferralLinkResponse struct {
	Code string `json:"code"`
	Link string `json:"link"`
}

type WalletResponse struct {
	WalletAddress string `json:"wallet_address"`
	FirstTime     bool   `json:"first_time"`
}
