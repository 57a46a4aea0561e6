package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dicemaniacs/backend/internal/config"
	"github.com/dicemaniacs/backend/internal/events"
	"github.com/dicemaniacs/backend/internal/models"
	"github.com/dicemaniacs/backend/internal/repositories"
)

// memDB is an in-memory stand-in for postgres. A single mutex plays the role
// of the row locks the pgx repositories take.
type memDB struct {
	mu          sync.Mutex
	nextID      int64
	countdowns  []*models.Countdown
	predictions []*models.Prediction
	players     map[int64]*models.Player
	referrals   []models.Referral
	reports     map[string]models.DailyReport
	audit       []models.AuditLog
	failed      map[int64]string
}

func newMemDB() *memDB {
	return &memDB{
		players: map[int64]*models.Player{},
		reports: map[string]models.DailyReport{},
		failed:  map[int64]string{},
	}
}

func (db *memDB) id() int64 {
	db.nextID++
	return db.nextID
}

func (db *memDB) countdown(id int64) *models.Countdown {
	for _, c := range db.countdowns {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// addPlayer seeds a player directly.
func (db *memDB) addPlayer(id int64, wallet bool) *models.Player {
	db.mu.Lock()
	defer db.mu.Unlock()
	p := &models.Player{TelegramID: id, LanguageCode: "en", CreatedAt: time.Now()}
	if wallet {
		addr := "UQwallet"
		p.WalletAddress = &addr
	}
	db.players[id] = p
	return p
}

// addCountdown seeds a round directly, bypassing the single-active rule.
func (db *memDB) addCountdown(c models.Countdown) *models.Countdown {
	db.mu.Lock()
	defer db.mu.Unlock()
	c.ID = db.id()
	db.countdowns = append(db.countdowns, &c)
	return &c
}

func (db *memDB) activePredictions(playerID, countdownID int64) []models.Prediction {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []models.Prediction
	for _, p := range db.predictions {
		if p.PlayerID == playerID && p.CountdownID == countdownID && p.IsActive {
			out = append(out, *p)
		}
	}
	return out
}

func (db *memDB) allPredictions(countdownID int64) []models.Prediction {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []models.Prediction
	for _, p := range db.predictions {
		if p.CountdownID == countdownID {
			out = append(out, *p)
		}
	}
	return out
}

// --- countdowns ---

type memCountdowns struct{ db *memDB }

func (m memCountdowns) CreateActive(_ context.Context, c *models.Countdown) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, other := range m.db.countdowns {
		other.IsActive = false
	}
	c.ID = m.db.id()
	c.IsActive = true
	c.CreatedAt = time.Now()
	cp := *c
	m.db.countdowns = append(m.db.countdowns, &cp)
	return nil
}

func (m memCountdowns) GetActive(_ context.Context) (*models.Countdown, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var found []*models.Countdown
	for _, c := range m.db.countdowns {
		if c.IsActive {
			found = append(found, c)
		}
	}
	switch len(found) {
	case 0:
		return nil, models.ErrNotFound
	case 1:
		cp := *found[0]
		return &cp, nil
	default:
		return nil, models.ErrDataIntegrity
	}
}

func (m memCountdowns) GetByID(_ context.Context, id int64) (*models.Countdown, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	c := m.db.countdown(id)
	if c == nil {
		return nil, models.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m memCountdowns) finished(now time.Time) []models.Countdown {
	var out []models.Countdown
	for _, c := range m.db.countdowns {
		if !c.ExpireDT.After(now) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpireDT.After(out[j].ExpireDT) })
	return out
}

func (m memCountdowns) GetLastFinished(_ context.Context, now time.Time) (*models.Countdown, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	list := m.finished(now)
	if len(list) == 0 {
		return nil, models.ErrNotFound
	}
	return &list[0], nil
}

func (m memCountdowns) ListFinished(_ context.Context, now time.Time, limit, offset int) ([]models.Countdown, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	list := m.finished(now)
	if offset >= len(list) {
		return []models.Countdown{}, nil
	}
	list = list[offset:]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m memCountdowns) ListUnsettled(_ context.Context, now time.Time, limit int) ([]models.Countdown, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.Countdown
	for _, c := range m.finished(now) {
		if _, flagged := m.db.failed[c.ID]; !c.HasEnd && !flagged {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpireDT.Before(out[j].ExpireDT) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m memCountdowns) MarkSettleFailed(_ context.Context, id int64, reason string, _ time.Time) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	c := m.db.countdown(id)
	if c == nil || c.HasEnd {
		return models.ErrNotFound
	}
	m.db.failed[id] = reason
	return nil
}

func (m memCountdowns) Settle(_ context.Context, id int64, now time.Time, decide repositories.SettleFunc) (*models.SettlementResult, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	c := m.db.countdown(id)
	if c == nil {
		return nil, models.ErrNotFound
	}
	if c.HasEnd {
		return models.ResultFromCountdown(c), nil
	}
	if c.ExpireDT.After(now) {
		return nil, models.ErrInvalidState
	}

	var active []models.Prediction
	for _, p := range m.db.predictions {
		if p.CountdownID == id && p.IsActive {
			active = append(active, *p)
		}
	}
	claimed := *c
	claimed.HasEnd = true
	res, err := decide(&claimed, active)
	if err != nil {
		return nil, err
	}

	won := map[int64]bool{}
	for _, p := range active {
		won[p.ID] = p.IsWin
	}
	for _, p := range m.db.predictions {
		if p.CountdownID == id {
			p.IsWin = won[p.ID]
		}
	}
	c.HasEnd = true
	c.SettledAt = &now
	c.WinnersCount = res.WinnersCount
	c.AmountPerWinner = res.AmountPerWinner
	res.SettledAt = &now
	return res, nil
}

// --- predictions ---

type memPredictions struct{ db *memDB }

func (m memPredictions) Submit(_ context.Context, p *models.Prediction, check repositories.SubmitCheck) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	if _, ok := m.db.players[p.PlayerID]; !ok {
		return models.ErrNotFound
	}
	c := m.db.countdown(p.CountdownID)
	if c == nil {
		return models.ErrNotFound
	}
	var active []models.Prediction
	for _, existing := range m.db.predictions {
		if existing.PlayerID == p.PlayerID && existing.CountdownID == p.CountdownID && existing.IsActive {
			active = append(active, *existing)
		}
	}
	if err := check(c, active); err != nil {
		return err
	}
	for _, existing := range m.db.predictions {
		if existing.PlayerID == p.PlayerID && existing.CountdownID == p.CountdownID && existing.Slot == p.Slot && existing.IsActive {
			existing.IsActive = false
		}
	}
	p.ID = m.db.id()
	p.IsActive = true
	p.CreatedAt = time.Now()
	cp := *p
	m.db.predictions = append(m.db.predictions, &cp)
	return nil
}

func (m memPredictions) ListActive(_ context.Context, playerID, countdownID int64) ([]models.Prediction, error) {
	return m.db.activePredictions(playerID, countdownID), nil
}

func (m memPredictions) History(_ context.Context, playerID int64, _, _ int) ([]models.PredictionHistoryRow, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.PredictionHistoryRow
	for i := len(m.db.predictions) - 1; i >= 0; i-- {
		p := m.db.predictions[i]
		if p.PlayerID == playerID {
			out = append(out, models.PredictionHistoryRow{Prediction: *p})
		}
	}
	return out, nil
}

func (m memPredictions) ListWinners(_ context.Context, countdownID int64) ([]models.Winner, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	c := m.db.countdown(countdownID)
	seen := map[int64]bool{}
	winners := []models.Winner{}
	for _, p := range m.db.predictions {
		if p.CountdownID != countdownID || !p.IsWin || seen[p.PlayerID] {
			continue
		}
		seen[p.PlayerID] = true
		winners = append(winners, models.Winner{
			PlayerID:    p.PlayerID,
			DiceNumber1: p.DiceNumber1,
			DiceNumber2: p.DiceNumber2,
			Amount:      c.AmountPerWinner,
		})
	}
	return winners, nil
}

// --- players ---

type memPlayers struct{ db *memDB }

func (m memPlayers) Upsert(_ context.Context, in repositories.PlayerUpsert) (*models.Player, bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.players[in.TelegramID]
	if !ok {
		p = &models.Player{TelegramID: in.TelegramID, CreatedAt: time.Now()}
		m.db.players[in.TelegramID] = p
	}
	p.Username, p.FirstName, p.LanguageCode = in.Username, in.FirstName, in.LanguageCode
	if in.OpenedMiniApp && p.MiniAppOpenedAt == nil {
		now := time.Now()
		p.MiniAppOpenedAt = &now
	}
	cp := *p
	return &cp, !ok, nil
}

func (m memPlayers) GetByTelegramID(_ context.Context, id int64) (*models.Player, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.players[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m memPlayers) GetByReferralCode(_ context.Context, code string) (*models.Player, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, p := range m.db.players {
		if p.ReferralCode != nil && *p.ReferralCode == code {
			cp := *p
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m memPlayers) EnsureReferralCode(_ context.Context, id int64, code string) (string, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.players[id]
	if !ok {
		return "", models.ErrNotFound
	}
	if p.ReferralCode == nil {
		p.ReferralCode = &code
	}
	return *p.ReferralCode, nil
}

func (m memPlayers) SetWallet(_ context.Context, id int64, address string, now time.Time) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.players[id]
	if !ok {
		return false, models.ErrNotFound
	}
	first := p.WalletInsertDT == nil
	p.WalletAddress = &address
	if first {
		p.WalletInsertDT = &now
	}
	return first, nil
}

func (m memPlayers) RandomEligible(_ context.Context, f models.GiveawayFilter) (*models.Player, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	ids := make([]int64, 0, len(m.db.players))
	for id := range m.db.players {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		p := m.db.players[id]
		if f.RequireWallet && !p.HasWallet() {
			continue
		}
		cp := *p
		return &cp, nil
	}
	return nil, models.ErrNotFound
}

// --- referrals ---

type memReferrals struct{ db *memDB }

func (m memReferrals) Create(_ context.Context, referrerID, refereeID int64) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, r := range m.db.referrals {
		if r.RefereeID == refereeID {
			return false, nil
		}
	}
	m.db.referrals = append(m.db.referrals, models.Referral{ID: m.db.id(), ReferrerID: referrerID, RefereeID: refereeID, CreatedAt: time.Now()})
	return true, nil
}

func (m memReferrals) CountByReferrer(_ context.Context, referrerID int64, since *time.Time) (int, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	n := 0
	for _, r := range m.db.referrals {
		if r.ReferrerID == referrerID && (since == nil || !r.CreatedAt.Before(*since)) {
			n++
		}
	}
	return n, nil
}

func (m memReferrals) ListByReferrer(_ context.Context, referrerID int64, _, _ int) ([]models.ReferralWithReferee, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := []models.ReferralWithReferee{}
	for _, r := range m.db.referrals {
		if r.ReferrerID == referrerID {
			out = append(out, models.ReferralWithReferee{Referral: r})
		}
	}
	return out, nil
}

// --- audit / events ---

type memAudit struct{ db *memDB }

func (m memAudit) Log(_ context.Context, entry models.AuditLog) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.audit = append(m.db.audit, entry)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

// --- wiring ---

type testEnv struct {
	db          *memDB
	pub         *recordingPublisher
	cfg         *config.Config
	now         time.Time
	rounds      *RoundService
	predictions *PredictionService
	players     *PlayerService
}

func newTestEnv() *testEnv {
	db := newMemDB()
	pub := &recordingPublisher{}
	cfg := &config.Config{
		BotUsername:          "DiceBot",
		TONNetwork:           "mainnet",
		SlotPolicy:           models.SlotPolicyCumulative,
		PredictRequireWallet: true,
		RoundPrizeAmount:     100,
		RoundDuration:        24 * time.Hour,
		LeaderboardSize:      models.DefaultLeaderboardN,
	}
	log := zap.NewNop()

	env := &testEnv{db: db, pub: pub, cfg: cfg, now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return env.now }

	env.rounds = NewRoundService(memCountdowns{db}, memPredictions{db}, memAudit{db}, pub, cfg, log)
	env.rounds.now = clock
	env.predictions = NewPredictionService(memPredictions{db}, memCountdowns{db}, memPlayers{db}, memReferrals{db}, memAudit{db}, pub, cfg, log)
	env.predictions.now = clock
	env.players = NewPlayerService(memPlayers{db}, memReferrals{db}, memAudit{db}, pub, cfg, log)
	env.players.now = clock
	return env
}

func (e *testEnv) openRound(t interface{ Fatalf(string, ...any) }, d1, d2 int, amount float64) *models.Countdown {
	c, err := e.rounds.CreateRound(context.Background(), CreateRoundInput{
		ExpireAt: e.now.Add(time.Hour),
		Dice1:    d1,
		Dice2:    d2,
		Amount:   amount,
	})
	if err != nil {
		t.Fatalf("create round: %v", err)
	}
	return c
}
