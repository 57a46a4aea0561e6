package models

import "time"

// Countdown states. Only has_end is stored; expired is derived from the wall clock.
const (
	CountdownStateOpen    = "open"
	CountdownStateExpired = "expired"
	CountdownStateSettled = "settled"
)

const (
	DiceMin  = 1
	DiceMax  = 6
	MaxSlots = 21
)

type Countdown struct {
	ID              int64      `json:"id"`
	ExpireDT        time.Time  `json:"expire_dt"`
	DiceNumber1     *int       `json:"dice_number1,omitempty"`
	DiceNumber2     *int       `json:"dice_number2,omitempty"`
	Amount          float64    `json:"amount"`
	IsActive        bool       `json:"is_active"`
	HasEnd          bool       `json:"has_end"`
	WinnersCount    int        `json:"winners_count"`
	AmountPerWinner float64    `json:"amount_per_winner"`
	SettledAt       *time.Time `json:"settled_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (c *Countdown) State(now time.Time) string {
	switch {
	case c.HasEnd:
		return CountdownStateSettled
	case c.IsFinished(now):
		return CountdownStateExpired
	default:
		return CountdownStateOpen
	}
}

// IsFinished reports whether the expiry has passed (expire_dt <= now).
func (c *Countdown) IsFinished(now time.Time) bool {
	return !c.ExpireDT.After(now)
}

// RevealedPair returns the round's dice. ok is false while either die is unset.
func (c *Countdown) RevealedPair() (DicePair, bool) {
	if c.DiceNumber1 == nil || c.DiceNumber2 == nil {
		return DicePair{}, false
	}
	return DicePair{A: *c.DiceNumber1, B: *c.DiceNumber2}, true
}

// Public hides the dice of a round that has not finished yet.
func (c Countdown) Public(now time.Time) Countdown {
	if !c.IsFinished(now) {
		c.DiceNumber1 = nil
		c.DiceNumber2 = nil
	}
	return c
}

type DicePair struct {
	A int `json:"dice_number1"`
	B int `json:"dice_number2"`
}

func (p DicePair) Valid() bool {
	return p.A >= DiceMin && p.A <= DiceMax && p.B >= DiceMin && p.B <= DiceMax
}

// Matches compares two pairs ignoring order: (3,5) matches (5,3).
func (p DicePair) Matches(o DicePair) bool {
	return (p.A == o.A && p.B == o.B) || (p.A == o.B && p.B == o.A)
}

// MarkWinners resets every prediction to lost, then marks those matching the
// revealed pair as won. It returns the number of distinct winning players.
func MarkWinners(revealed DicePair, predictions []Prediction) int {
	winners := make(map[int64]struct{})
	for i := range predictions {
		predictions[i].IsWin = false
	}
	for i := range predictions {
		if predictions[i].Pair().Matches(revealed) {
			predictions[i].IsWin = true
			winners[predictions[i].PlayerID] = struct{}{}
		}
	}
	return len(winners)
}

// SplitPrize divides the prize evenly between distinct winning players.
// No winners means no payout rather than a division error.
func SplitPrize(amount float64, winners int) float64 {
	if winners <= 0 {
		return 0
	}
	return amount / float64(winners)
}

type SettlementResult struct {
	CountdownID        int64      `json:"countdown_id"`
	DiceNumber1        *int       `json:"dice_number1,omitempty"`
	DiceNumber2        *int       `json:"dice_number2,omitempty"`
	Amount             float64    `json:"amount"`
	WinningPredictions int        `json:"winning_predictions"`
	WinnersCount       int        `json:"winners_count"`
	AmountPerWinner    float64    `json:"amount_per_winner"`
	AlreadySettled     bool       `json:"already_settled"`
	SettledAt          *time.Time `json:"settled_at,omitempty"`
}

// ResultFromCountdown describes an already settled round.
func ResultFromCountdown(c *Countdown) *SettlementResult {
	return &SettlementResult{
		CountdownID:     c.ID,
		DiceNumber1:     c.DiceNumber1,
		DiceNumber2:     c.DiceNumber2,
		Amount:          c.Amount,
		WinnersCount:    c.WinnersCount,
		AmountPerWinner: c.AmountPerWinner,
		AlreadySettled:  true,
		SettledAt:       c.SettledAt,
	}
}

// Winner is one distinct winning player of a settled round.
type Winner struct {
	PlayerID      int64   `json:"telegram_id"`
	Username      *string `json:"username,omitempty"`
	FirstName     *string `json:"first_name,omitempty"`
	LanguageCode  string  `json:"language_code"`
	WalletAddress *string `json:"wallet_address,omitempty"`
	DiceNumber1   int     `json:"dice_number1"`
	DiceNumber2   int     `json:"dice_number2"`
	Amount        float64 `json:"amount"`
}
