package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dicemaniacs/backend/internal/events"
	"github.com/dicemaniacs/backend/internal/models"
)

func TestCreateRoundValidation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateRoundInput
	}{
		{"die too low", CreateRoundInput{ExpireAt: env.now.Add(time.Hour), Dice1: 0, Dice2: 3, Amount: 10}},
		{"die too high", CreateRoundInput{ExpireAt: env.now.Add(time.Hour), Dice1: 3, Dice2: 7, Amount: 10}},
		{"negative amount", CreateRoundInput{ExpireAt: env.now.Add(time.Hour), Dice1: 1, Dice2: 1, Amount: -1}},
		{"expiry in the past", CreateRoundInput{ExpireAt: env.now.Add(-time.Minute), Dice1: 1, Dice2: 1, Amount: 10}},
		{"expiry now", CreateRoundInput{ExpireAt: env.now, Dice1: 1, Dice2: 1, Amount: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.rounds.CreateRound(ctx, tt.in)
			assert.ErrorIs(t, err, models.ErrInvalidInput)
		})
	}
	assert.Empty(t, env.db.countdowns)
}

func TestCreateRoundKeepsSingleActive(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	var last *models.Countdown
	for i := 0; i < 3; i++ {
		last = env.openRound(t, 1, 2, 10)
	}

	active, err := env.rounds.GetActiveCountdown(ctx)
	require.NoError(t, err)
	assert.Equal(t, last.ID, active.ID)

	n := 0
	for _, c := range env.db.countdowns {
		if c.IsActive {
			n++
		}
	}
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, env.pub.count(events.EventRoundCreated))
}

func TestGetActiveCountdownReportsIntegrityViolation(t *testing.T) {
	env := newTestEnv()
	env.db.addCountdown(models.Countdown{ExpireDT: env.now.Add(time.Hour), IsActive: true})
	env.db.addCountdown(models.Countdown{ExpireDT: env.now.Add(2 * time.Hour), IsActive: true})

	_, err := env.rounds.GetActiveCountdown(context.Background())
	assert.ErrorIs(t, err, models.ErrDataIntegrity)
}

func TestOpenScheduledRound(t *testing.T) {
	env := newTestEnv()

	c, err := env.rounds.OpenScheduledRound(context.Background())
	require.NoError(t, err)

	assert.Equal(t, env.now.Add(24*time.Hour), c.ExpireDT)
	assert.Equal(t, 100.0, c.Amount)
	pair, ok := c.RevealedPair()
	require.True(t, ok)
	assert.True(t, pair.Valid())
}

func TestEndCountdownSplitsPrizeBetweenWinners(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	round := env.openRound(t, 2, 6, 100)
	for _, id := range []int64{1, 2, 3} {
		env.db.addPlayer(id, true)
	}
	_, err := env.predictions.Submit(ctx, 1, round.ID, 1, 2, 6)
	require.NoError(t, err)
	_, err = env.predictions.Submit(ctx, 2, round.ID, 1, 6, 2)
	require.NoError(t, err)
	_, err = env.predictions.Submit(ctx, 3, round.ID, 1, 1, 1)
	require.NoError(t, err)

	env.now = env.now.Add(2 * time.Hour)

	res, err := env.rounds.EndCountdown(ctx, round.ID)
	require.NoError(t, err)
	assert.False(t, res.AlreadySettled)
	assert.Equal(t, 2, res.WinnersCount)
	assert.Equal(t, 2, res.WinningPredictions)
	assert.InDelta(t, 50.0, res.AmountPerWinner, 1e-9)

	for _, p := range env.db.allPredictions(round.ID) {
		assert.Equal(t, p.PlayerID != 3, p.IsWin, "player %d", p.PlayerID)
	}

	_, winners, err := env.rounds.Winners(ctx, round.ID)
	require.NoError(t, err)
	assert.Len(t, winners, 2)
	assert.Equal(t, 1, env.pub.count(events.EventRoundSettled))
}

func TestEndCountdownIsIdempotent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	round := env.openRound(t, 3, 3, 90)
	env.db.addPlayer(1, true)
	_, err := env.predictions.Submit(ctx, 1, round.ID, 1, 3, 3)
	require.NoError(t, err)
	env.now = env.now.Add(2 * time.Hour)

	first, err := env.rounds.EndCountdown(ctx, round.ID)
	require.NoError(t, err)
	second, err := env.rounds.EndCountdown(ctx, round.ID)
	require.NoError(t, err)

	assert.True(t, second.AlreadySettled)
	assert.Equal(t, first.WinnersCount, second.WinnersCount)
	assert.Equal(t, first.AmountPerWinner, second.AmountPerWinner)
	assert.Equal(t, 1, env.pub.count(events.EventRoundSettled))
}

func TestEndCountdownConcurrentCallsSettleOnce(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	round := env.openRound(t, 4, 5, 100)
	env.now = env.now.Add(2 * time.Hour)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fresh int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := env.rounds.EndCountdown(ctx, round.ID)
			if err != nil {
				t.Errorf("settle: %v", err)
				return
			}
			if !res.AlreadySettled {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fresh)
	assert.Equal(t, 1, env.pub.count(events.EventRoundSettled))
}

func TestEndCountdownRejectsOpenRound(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	round := env.openRound(t, 1, 1, 100)
	env.db.addPlayer(1, true)
	_, err := env.predictions.Submit(ctx, 1, round.ID, 1, 1, 1)
	require.NoError(t, err)

	_, err = env.rounds.EndCountdown(ctx, round.ID)
	assert.ErrorIs(t, err, models.ErrInvalidState)

	stored, err := env.rounds.GetCountdown(ctx, round.ID)
	require.NoError(t, err)
	assert.False(t, stored.HasEnd)
	for _, p := range env.db.allPredictions(round.ID) {
		assert.False(t, p.IsWin)
	}
}

func TestEndCountdownWithoutWinners(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	round := env.openRound(t, 6, 6, 100)
	env.db.addPlayer(1, true)
	_, err := env.predictions.Submit(ctx, 1, round.ID, 1, 1, 2)
	require.NoError(t, err)
	env.now = env.now.Add(2 * time.Hour)

	res, err := env.rounds.EndCountdown(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, res.WinnersCount)
	assert.Zero(t, res.AmountPerWinner)
}

func TestEndCountdownUnknownRound(t *testing.T) {
	env := newTestEnv()

	_, err := env.rounds.EndCountdown(context.Background(), 404)
	assert.ErrorIs(t, err, models.ErrDataIntegrity)
}

func TestTriggerSettlementPicksLastExpiredRound(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.rounds.TriggerSettlement(ctx, nil)
	assert.True(t, errors.Is(err, models.ErrDataIntegrity))

	round := env.openRound(t, 1, 2, 10)
	env.now = env.now.Add(2 * time.Hour)

	res, err := env.rounds.TriggerSettlement(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, round.ID, res.CountdownID)
}

func TestSettleExpired(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	older := env.db.addCountdown(models.Countdown{ExpireDT: env.now.Add(-2 * time.Hour), DiceNumber1: intPtr(1), DiceNumber2: intPtr(1)})
	newer := env.db.addCountdown(models.Countdown{ExpireDT: env.now.Add(-time.Hour), DiceNumber1: intPtr(2), DiceNumber2: intPtr(2)})
	env.db.addCountdown(models.Countdown{ExpireDT: env.now.Add(time.Hour), DiceNumber1: intPtr(3), DiceNumber2: intPtr(3), IsActive: true})

	results, err := env.rounds.SettleExpired(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, older.ID, results[0].CountdownID)
	assert.Equal(t, newer.ID, results[1].CountdownID)

	results, err = env.rounds.SettleExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSettleExpiredSkipsBrokenRound(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	broken := env.db.addCountdown(models.Countdown{ExpireDT: env.now.Add(-2 * time.Hour)})
	good := env.db.addCountdown(models.Countdown{ExpireDT: env.now.Add(-time.Hour), DiceNumber1: intPtr(4), DiceNumber2: intPtr(4), Amount: 10})

	results, err := env.rounds.SettleExpired(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, good.ID, results[0].CountdownID)
	assert.Contains(t, env.db.failed, broken.ID)

	stored, err := env.rounds.GetCountdown(ctx, good.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasEnd)

	// the broken round is not picked up again
	for i := 0; i < 2; i++ {
		results, err = env.rounds.SettleExpired(ctx)
		require.NoError(t, err)
		assert.Empty(t, results)
	}
	stored, err = env.rounds.GetCountdown(ctx, broken.ID)
	require.NoError(t, err)
	assert.False(t, stored.HasEnd)
}

func TestWinnersSettlesExpiredRound(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	round := env.openRound(t, 5, 1, 60)
	env.db.addPlayer(1, true)
	_, err := env.predictions.Submit(ctx, 1, round.ID, 1, 1, 5)
	require.NoError(t, err)
	env.now = env.now.Add(2 * time.Hour)

	c, winners, err := env.rounds.Winners(ctx, round.ID)
	require.NoError(t, err)
	assert.True(t, c.HasEnd)
	assert.Equal(t, 1, c.WinnersCount)
	require.Len(t, winners, 1)
	assert.InDelta(t, 60.0, winners[0].Amount, 1e-9)

	c, winners, err = env.rounds.LastWinners(ctx)
	require.NoError(t, err)
	assert.Equal(t, round.ID, c.ID)
	assert.Len(t, winners, 1)
	assert.Equal(t, 1, env.pub.count(events.EventRoundSettled))
}

func TestLastWinnersSettlesFirst(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	round := env.openRound(t, 2, 2, 10)
	env.now = env.now.Add(2 * time.Hour)

	c, winners, err := env.rounds.LastWinners(ctx)
	require.NoError(t, err)
	assert.Equal(t, round.ID, c.ID)
	assert.True(t, c.HasEnd)
	assert.Empty(t, winners)
}

func TestWinnersOfOpenRound(t *testing.T) {
	env := newTestEnv()
	round := env.openRound(t, 1, 2, 10)

	_, _, err := env.rounds.Winners(context.Background(), round.ID)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func intPtr(v int) *int { return &v }
