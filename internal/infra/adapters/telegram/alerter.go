package telegram

import (
	"context"
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"sme-compliance/internal/config"
	"sme-compliance/internal/domain/ports/adapter"
)

var _ adapter.OpsAlerter = (*Alerter)(nil)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Alerter pushes operator alerts into the configured Telegram chats.
type Alerter struct {
	bot     sender
	chatIDs []int64
}

func NewAlerter(cfg config.AlertsConfig) (*Alerter, error) {
	if cfg.TelegramToken == "" {
		return nil, errors.New("telegram token is empty")
	}
	if len(cfg.ChatIDs) == 0 {
		return nil, errors.New("no alert chat ids configured")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, err
	}
	return &Alerter{bot: bot, chatIDs: cfg.ChatIDs}, nil
}

// Alert sends text to every chat and joins the per-chat failures.
func (a *Alerter) Alert(ctx context.Context, text string) error {
	var errs []error
	for _, id := range a.chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(id, truncate(text, 4000))
		msg.DisableWebPagePreview = true
		if _, err := a.bot.Send(msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// NoopAlerter drops alerts; used when no bot token is configured.
type NoopAlerter struct{}

func (NoopAlerter) Alert(ctx context.Context, text string) error { return nil }
