package models

import "time"

type Prediction struct {
	ID          int64     `json:"id"`
	PlayerID    int64     `json:"player_id"`
	CountdownID int64     `json:"countdown_id"`
	Slot        int       `json:"slot"`
	DiceNumber1 int       `json:"dice_number1"`
	DiceNumber2 int       `json:"dice_number2"`
	IsWin       bool      `json:"is_win"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

func (p *Prediction) Pair() DicePair {
	return DicePair{A: p.DiceNumber1, B: p.DiceNumber2}
}

// Slot policies for referral-driven slot growth.
const (
	SlotPolicyCumulative = "cumulative"
	SlotPolicyPerRound   = "per_round"
)

// AvailableSlots is one base slot plus one per referral, capped at MaxSlots.
func AvailableSlots(referrals int) int {
	if referrals < 0 {
		referrals = 0
	}
	n := 1 + referrals
	if n > MaxSlots {
		return MaxSlots
	}
	return n
}

// ValidateSubmission checks a new guess against the player's active
// predictions in the same round. active must only hold is_active rows.
func ValidateSubmission(active []Prediction, slot int, guess DicePair, available int) error {
	if !guess.Valid() {
		return ErrInvalidInput
	}
	if slot < 1 || slot > MaxSlots {
		return ErrInvalidInput
	}
	for _, p := range active {
		if p.Pair().Matches(guess) {
			return ErrDuplicatePrediction
		}
	}
	if slot > available {
		return ErrInsufficientSlot
	}
	return nil
}

// SlotView is one row of the prediction box shown in the mini-app.
type SlotView struct {
	Slot        int  `json:"slot"`
	DiceNumber1 *int `json:"dice_number1"`
	DiceNumber2 *int `json:"dice_number2"`
}

// BuildPredictionBox lists the active predictions by slot and pads the
// box with empty slots up to the allowance.
func BuildPredictionBox(active []Prediction, available int) []SlotView {
	bySlot := make(map[int]Prediction, len(active))
	maxSlot := available
	for _, p := range active {
		bySlot[p.Slot] = p
		if p.Slot > maxSlot {
			maxSlot = p.Slot
		}
	}
	box := make([]SlotView, 0, maxSlot)
	for slot := 1; slot <= maxSlot; slot++ {
		p, ok := bySlot[slot]
		if !ok {
			if slot <= available {
				box = append(box, SlotView{Slot: slot})
			}
			continue
		}
		d1, d2 := p.DiceNumber1, p.DiceNumber2
		box = append(box, SlotView{Slot: slot, DiceNumber1: &d1, DiceNumber2: &d2})
	}
	return box
}

// PredictionHistoryRow is a prediction joined with its round outcome.
type PredictionHistoryRow struct {
	Prediction
	CountdownExpireDT time.Time `json:"countdown_expire_dt"`
	CountdownHasEnd   bool      `json:"countdown_has_end"`
}
