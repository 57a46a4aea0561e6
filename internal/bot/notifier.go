package bot

import (
	"context"
	"strconv"
	"sync/atomic"

	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dicemaniacs/backend/internal/events"
	"github.com/dicemaniacs/backend/internal/locale"
	"github.com/dicemaniacs/backend/internal/metrics"
	"github.com/dicemaniacs/backend/internal/models"
)

// sendConcurrency bounds in-flight sends; the limiter bounds their rate.
const sendConcurrency = 4

type WinnerSource interface {
	Winners(ctx context.Context, id int64) (*models.Countdown, []models.Winner, error)
}

// Notifier sends every distinct winner of a settled round a private message.
type Notifier struct {
	sender  Sender
	winners WinnerSource
	tr      *locale.Translator
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewNotifier throttles sends to perSecond; perSecond <= 0 disables throttling.
func NewNotifier(sender Sender, winners WinnerSource, tr *locale.Translator, perSecond int, log *zap.Logger) *Notifier {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Notifier{
		sender:  sender,
		winners: winners,
		tr:      tr,
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
	}
}

// Start listens for round_settled events until ctx is cancelled.
func (n *Notifier) Start(ctx context.Context, sub events.Subscriber) error {
	return sub.Subscribe(ctx, events.RoundChannel, func(e events.Event) {
		if e.Type != events.EventRoundSettled {
			return
		}
		id, ok := e.Int64("countdown_id")
		if !ok {
			n.log.Warn("round_settled event without countdown_id")
			return
		}
		if _, err := n.NotifyWinners(ctx, id); err != nil {
			n.log.Error("winner notification failed", zap.Int64("round_id", id), zap.Error(err))
		}
	})
}

// NotifyWinners messages the winners of roundID and returns how many messages went out.
// A failed send is logged and does not stop the others.
func (n *Notifier) NotifyWinners(ctx context.Context, roundID int64) (int, error) {
	round, winners, err := n.winners.Winners(ctx, roundID)
	if err != nil {
		return 0, err
	}

	var sent atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sendConcurrency)

	for _, w := range winners {
		g.Go(func() error {
			if err := n.limiter.Wait(gctx); err != nil {
				return err
			}
			text := n.tr.T(w.LanguageCode, locale.MsgWinner, map[string]any{
				"Name":    winnerName(w),
				"RoundID": round.ID,
				"Dice1":   w.DiceNumber1,
				"Dice2":   w.DiceNumber2,
				"Amount":  strconv.FormatFloat(w.Amount, 'f', -1, 64),
			})
			_, err := n.sender.SendMessage(gctx, tu.Message(tu.ID(w.PlayerID), text))
			metrics.NotificationSent(err == nil)
			if err != nil {
				n.log.Warn("failed to notify winner", zap.Int64("telegram_id", w.PlayerID), zap.Error(err))
				return nil
			}
			sent.Add(1)
			return nil
		})
	}

	err = g.Wait()
	n.log.Info("winners notified",
		zap.Int64("round_id", roundID),
		zap.Int("winners", len(winners)),
		zap.Int64("sent", sent.Load()),
	)
	return int(sent.Load()), err
}

func winnerName(w models.Winner) string {
	if w.FirstName != nil && *w.FirstName != "" {
		return *w.FirstName
	}
	if w.Username != nil && *w.Username != "" {
		return *w.Username
	}
	return "player"
}
