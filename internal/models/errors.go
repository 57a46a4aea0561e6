package models

import "errors"

// Game errors. Validation errors are informational for the player,
// ErrDataIntegrity means a core invariant was broken upstream and needs an operator.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidState        = errors.New("countdown is not finished yet")
	ErrRoundFinished       = errors.New("countdown is finished, wait for new event")
	ErrDuplicatePrediction = errors.New("you already have this prediction in this round")
	ErrInsufficientSlot    = errors.New("not enough slots, invite friends to unlock more")
	ErrWalletRequired      = errors.New("wallet is not connected yet")
	ErrAlreadyReferred     = errors.New("player was already referred")
	ErrDataIntegrity       = errors.New("data integrity violation")
)
