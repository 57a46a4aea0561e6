// Package bot runs the Telegram bot: /start with referral codes and winner notifications.
package bot

import (
	"context"
	"errors"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/zap"

	"github.com/dicemaniacs/backend/internal/config"
	"github.com/dicemaniacs/backend/internal/locale"
	"github.com/dicemaniacs/backend/internal/models"
	"github.com/dicemaniacs/backend/internal/repositories"
)

// Sender is the part of *telego.Bot used to answer players.
type Sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

type Players interface {
	Touch(ctx context.Context, in repositories.PlayerUpsert) (*models.Player, bool, error)
	RegisterReferral(ctx context.Context, code string, refereeID int64) (*models.Player, error)
	ReferralLink(ctx context.Context, telegramID int64) (string, error)
}

type Bot struct {
	api     *telego.Bot
	sender  Sender
	players Players
	tr      *locale.Translator
	cfg     *config.Config
	log     *zap.Logger
}

func New(api *telego.Bot, players Players, tr *locale.Translator, cfg *config.Config, log *zap.Logger) *Bot {
	return &Bot{api: api, sender: api, players: players, tr: tr, cfg: cfg, log: log}
}

// Run long-polls updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	updates, err := b.api.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{Timeout: 10})
	if err != nil {
		return err
	}

	bh, err := th.NewBotHandler(b.api, updates)
	if err != nil {
		return err
	}
	defer bh.Stop()

	bh.HandleMessage(b.onStart, th.CommandEqual("start"))
	bh.HandleMessage(b.onInvite, th.CommandEqual("invite"))
	bh.HandleMessage(b.onHelp, th.AnyCommand())

	go bh.Start()
	b.log.Info("bot started")

	<-ctx.Done()
	return nil
}

func (b *Bot) onStart(ctx *th.Context, message telego.Message) error {
	if message.From == nil {
		return nil
	}
	_, _, args := tu.ParseCommand(message.Text)
	code := ""
	if len(args) > 0 {
		code = args[0]
	}
	return b.reply(ctx, b.startReply(ctx, message.Chat.ID, message.From, code))
}

func (b *Bot) onInvite(ctx *th.Context, message telego.Message) error {
	if message.From == nil {
		return nil
	}
	link, err := b.players.ReferralLink(ctx, message.From.ID)
	if err != nil {
		b.log.Warn("failed to build referral link", zap.Int64("telegram_id", message.From.ID), zap.Error(err))
		return nil
	}
	text := b.tr.T(message.From.LanguageCode, locale.MsgReferralLink, map[string]any{"Link": link})
	return b.reply(ctx, tu.Message(tu.ID(message.Chat.ID), text))
}

func (b *Bot) onHelp(ctx *th.Context, message telego.Message) error {
	lang := ""
	if message.From != nil {
		lang = message.From.LanguageCode
	}
	return b.reply(ctx, tu.Message(tu.ID(message.Chat.ID), b.tr.T(lang, locale.MsgHelp, nil)))
}

// startReply registers the player, and the referral when the /start payload
// carries a code, then builds the localized welcome.
func (b *Bot) startReply(ctx context.Context, chatID int64, from *telego.User, code string) *telego.SendMessageParams {
	player, created, err := b.players.Touch(ctx, repositories.PlayerUpsert{
		TelegramID:   from.ID,
		Username:     optional(from.Username),
		FirstName:    optional(from.FirstName),
		LastName:     optional(from.LastName),
		LanguageCode: from.LanguageCode,
	})
	if err != nil {
		b.log.Error("failed to upsert player from bot", zap.Int64("telegram_id", from.ID), zap.Error(err))
	}

	data := map[string]any{"Name": displayName(from)}
	msgID := locale.MsgWelcome
	if created && code != "" {
		referrer, err := b.players.RegisterReferral(ctx, code, from.ID)
		switch {
		case err == nil:
			msgID = locale.MsgWelcomeReferred
			data["Referrer"] = referrer.DisplayName()
		case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrAlreadyReferred):
			b.log.Debug("referral ignored", zap.Int64("telegram_id", from.ID), zap.String("code", code), zap.Error(err))
		default:
			b.log.Warn("failed to register referral", zap.Int64("telegram_id", from.ID), zap.Error(err))
		}
	}

	lang := from.LanguageCode
	if player != nil {
		lang = player.LanguageCode
	}
	msg := tu.Message(tu.ID(chatID), b.tr.T(lang, msgID, data))
	if b.cfg.MiniAppURL != "" {
		msg = msg.WithReplyMarkup(tu.InlineKeyboard(tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(b.tr.T(lang, locale.MsgOpenApp, nil)).WithWebApp(&telego.WebAppInfo{URL: b.cfg.MiniAppURL}),
		)))
	}
	return msg
}

func (b *Bot) reply(ctx context.Context, params *telego.SendMessageParams) error {
	if _, err := b.sender.SendMessage(ctx, params); err != nil {
		b.log.Warn("failed to send bot reply", zap.Error(err))
	}
	return nil
}

func displayName(u *telego.User) string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.Username != "" {
		return u.Username
	}
	return "player"
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
