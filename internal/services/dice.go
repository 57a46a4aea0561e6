package services

import (
	"crypto/rand"
	"math/big"

	"github.com/dicemaniacs/backend/internal/models"
)

func rollDie() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(models.DiceMax))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()) + models.DiceMin, nil
}
