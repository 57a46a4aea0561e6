package dto

import "time"

type AuthTelegramRequest struct {
	InitData string `json:"init_data"`
}

type SetWalletRequest struct {
	WalletAddress string `json:"wallet_address"`
}

type SubmitPredictionRequest struct {
	Slot        int `json:"slot"`
	DiceNumber1 int `json:"dice_number1"`
	DiceNumber2 int `json:"dice_number2"`
}

// CreateRoundRequest opens a round. Zero ExpireDT falls back to now plus the
// configured round duration; nil Amount uses the configured prize.
type CreateRoundRequest struct {
	ExpireDT    time.Time `json:"expire_dt"`
	DiceNumber1 int       `json:"dice_number1"`
	DiceNumber2 int       `json:"dice_number2"`
	Amount      *float64  `json:"amount,omitempty"`
}

type SettleRoundRequest struct {
	CountdownID *int64 `json:"countdown_id,omitempty"`
}
