package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dicemaniacs/backend/internal/models"
	"github.com/dicemaniacs/backend/internal/repositories"
)

func TestSubmitSupersedesSlot(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	round := env.openRound(t, 1, 2, 10)
	env.db.addPlayer(1, true)

	_, err := env.predictions.Submit(ctx, 1, round.ID, 1, 3, 4)
	require.NoError(t, err)
	second, err := env.predictions.Submit(ctx, 1, round.ID, 1, 5, 5)
	require.NoError(t, err)

	active := env.db.activePredictions(1, round.ID)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)
	assert.Equal(t, models.DicePair{A: 5, B: 5}, active[0].Pair())
	assert.Len(t, env.db.allPredictions(round.ID), 2)
}

func TestSubmitRejectsDuplicatePair(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	round := env.openRound(t, 1, 2, 10)
	env.db.addPlayer(1, true)
	env.db.addPlayer(2, true)
	_, err := env.players.RegisterReferral(ctx, mustReferralCode(t, env, 1), 2)
	require.NoError(t, err)

	_, err = env.predictions.Submit(ctx, 1, round.ID, 1, 3, 4)
	require.NoError(t, err)

	// the reversed pair counts as the same guess, even in another slot
	_, err = env.predictions.Submit(ctx, 1, round.ID, 2, 4, 3)
	assert.ErrorIs(t, err, models.ErrDuplicatePrediction)

	// resubmitting the same pair into its own slot is a duplicate too
	_, err = env.predictions.Submit(ctx, 1, round.ID, 1, 3, 4)
	assert.ErrorIs(t, err, models.ErrDuplicatePrediction)

	assert.Len(t, env.db.activePredictions(1, round.ID), 1)
}

func TestSubmitSlotCapacity(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	round := env.openRound(t, 1, 2, 10)
	env.db.addPlayer(1, true)

	_, err := env.predictions.Submit(ctx, 1, round.ID, 2, 3, 4)
	assert.ErrorIs(t, err, models.ErrInsufficientSlot)

	code := mustReferralCode(t, env, 1)
	env.db.addPlayer(2, false)
	_, err = env.players.RegisterReferral(ctx, code, 2)
	require.NoError(t, err)

	_, err = env.predictions.Submit(ctx, 1, round.ID, 2, 3, 4)
	require.NoError(t, err)

	_, err = env.predictions.Submit(ctx, 1, round.ID, 3, 5, 6)
	assert.ErrorIs(t, err, models.ErrInsufficientSlot)
}

func TestSubmitInvalidInput(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	round := env.openRound(t, 1, 2, 10)
	env.db.addPlayer(1, true)

	tests := []struct {
		name             string
		slot, die1, die2 int
	}{
		{"zero die", 1, 0, 3},
		{"seven", 1, 7, 3},
		{"slot zero", 0, 1, 3},
		{"slot above max", models.MaxSlots + 1, 1, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.predictions.Submit(ctx, 1, round.ID, tt.slot, tt.die1, tt.die2)
			assert.ErrorIs(t, err, models.ErrInvalidInput)
		})
	}
}

func TestSubmitRequiresWallet(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	round := env.openRound(t, 1, 2, 10)
	env.db.addPlayer(1, false)

	_, err := env.predictions.Submit(ctx, 1, round.ID, 1, 3, 4)
	assert.ErrorIs(t, err, models.ErrWalletRequired)

	env.cfg.PredictRequireWallet = false
	_, err = env.predictions.Submit(ctx, 1, round.ID, 1, 3, 4)
	assert.NoError(t, err)
}

func TestSubmitAfterExpiry(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	round := env.openRound(t, 1, 2, 10)
	env.db.addPlayer(1, true)

	env.now = round.ExpireDT
	_, err := env.predictions.Submit(ctx, 1, round.ID, 1, 3, 4)
	assert.ErrorIs(t, err, models.ErrRoundFinished)
	assert.Empty(t, env.db.allPredictions(round.ID))
}

// lockWaitPredictions advances the clock before the locked check runs, as if
// the submission had waited on the row locks.
type lockWaitPredictions struct {
	memPredictions
	env  *testEnv
	wait time.Duration
}

func (l lockWaitPredictions) Submit(ctx context.Context, p *models.Prediction, check repositories.SubmitCheck) error {
	l.env.now = l.env.now.Add(l.wait)
	return l.memPredictions.Submit(ctx, p, check)
}

func TestSubmitExpiresWhileWaitingForLocks(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	round := env.openRound(t, 1, 2, 10)
	env.db.addPlayer(1, true)
	env.predictions.predictions = lockWaitPredictions{memPredictions: memPredictions{env.db}, env: env, wait: 2 * time.Hour}

	_, err := env.predictions.Submit(ctx, 1, round.ID, 1, 3, 4)
	assert.ErrorIs(t, err, models.ErrRoundFinished)
	assert.Empty(t, env.db.allPredictions(round.ID))
}

func TestSubmitIntoReplacedRound(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	old := env.openRound(t, 1, 2, 10)
	env.openRound(t, 3, 4, 10)
	env.db.addPlayer(1, true)

	_, err := env.predictions.Submit(ctx, 1, old.ID, 1, 3, 4)
	assert.ErrorIs(t, err, models.ErrRoundFinished)
}

func TestConcurrentSubmitsKeepOneActivePerSlot(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	round := env.openRound(t, 1, 2, 10)
	env.db.addPlayer(1, true)

	pairs := [][2]int{{1, 1}, {1, 2}, {1, 3}, {1, 4}, {1, 5}, {1, 6}, {2, 2}, {2, 3}}
	var wg sync.WaitGroup
	for _, pair := range pairs {
		wg.Add(1)
		go func(d1, d2 int) {
			defer wg.Done()
			if _, err := env.predictions.Submit(ctx, 1, round.ID, 1, d1, d2); err != nil {
				t.Errorf("submit %d-%d: %v", d1, d2, err)
			}
		}(pair[0], pair[1])
	}
	wg.Wait()

	assert.Len(t, env.db.activePredictions(1, round.ID), 1)
	all := env.db.allPredictions(round.ID)
	require.Len(t, all, len(pairs))
	inactive := 0
	for _, p := range all {
		if !p.IsActive {
			inactive++
		}
	}
	assert.Equal(t, len(pairs)-1, inactive)
}

func TestSubmitRacingSettlement(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	round := env.openRound(t, 3, 3, 100)

	// submissions still see an open round while the settler sees it expired
	expired := round.ExpireDT
	env.rounds.now = func() time.Time { return expired }

	const players = 12
	for id := int64(1); id <= players; id++ {
		env.db.addPlayer(id, true)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		res      *models.SettlementResult
	)
	for id := int64(1); id <= players; id++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := env.predictions.Submit(ctx, id, round.ID, 1, 3, 3)
			if err != nil {
				assert.ErrorIs(t, err, models.ErrRoundFinished, fmt.Sprintf("player %d", id))
				return
			}
			mu.Lock()
			accepted++
			mu.Unlock()
		}(id)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		r, err := env.rounds.EndCountdown(ctx, round.ID)
		if assert.NoError(t, err) {
			res = r
		}
	}()
	wg.Wait()

	require.NotNil(t, res)
	// every stored guess was seen by the settlement
	assert.Equal(t, accepted, res.WinnersCount)
	for _, p := range env.db.allPredictions(round.ID) {
		assert.True(t, p.IsWin, "prediction %d", p.ID)
	}
}

func TestSubmitToActiveWithoutRound(t *testing.T) {
	env := newTestEnv()
	env.db.addPlayer(1, true)

	_, err := env.predictions.SubmitToActive(context.Background(), 1, 1, 3, 4)
	assert.ErrorIs(t, err, models.ErrRoundFinished)
}

func TestPerRoundSlotPolicy(t *testing.T) {
	env := newTestEnv()
	env.cfg.SlotPolicy = models.SlotPolicyPerRound
	ctx := context.Background()

	env.db.addPlayer(1, true)
	env.db.addPlayer(2, false)
	_, err := env.players.RegisterReferral(ctx, mustReferralCode(t, env, 1), 2)
	require.NoError(t, err)

	// referrals made before the round opened do not count under per_round
	env.db.mu.Lock()
	env.db.referrals[0].CreatedAt = time.Now().Add(-time.Hour)
	env.db.mu.Unlock()

	round := env.openRound(t, 1, 2, 10)
	n, err := env.predictions.AvailableSlots(ctx, 1, round)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	env.cfg.SlotPolicy = models.SlotPolicyCumulative
	n, err = env.predictions.AvailableSlots(ctx, 1, round)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestBox(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.db.addPlayer(1, true)

	box, err := env.predictions.Box(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, box.CountdownID)
	assert.Equal(t, 1, box.Slots)
	assert.Empty(t, box.Predictions)

	round := env.openRound(t, 1, 2, 10)
	_, err = env.predictions.Submit(ctx, 1, round.ID, 1, 6, 6)
	require.NoError(t, err)

	box, err = env.predictions.Box(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, box.CountdownID)
	assert.Equal(t, round.ID, *box.CountdownID)
	require.Len(t, box.Predictions, 1)
	assert.Equal(t, 6, *box.Predictions[0].DiceNumber1)

	env.now = round.ExpireDT.Add(time.Second)
	box, err = env.predictions.Box(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, box.CountdownID)
	assert.Empty(t, box.Predictions)
}

func mustReferralCode(t *testing.T, env *testEnv, playerID int64) string {
	t.Helper()
	code, err := env.players.ReferralCode(context.Background(), playerID)
	require.NoError(t, err)
	return code
}
