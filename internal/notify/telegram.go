package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Telegram pushes operator alerts. Nil-safe and fire-and-forget: a
// missing token or a failed send never touches the decision path.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram returns nil when token is empty; every method on a nil
// notifier is a no-op.
func NewTelegram(token string, chatID int64) *Telegram {
	if token == "" || chatID == 0 {
		log.Info().Msg("telegram notifier disabled")
		return nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Warn().Err(err).Msg("telegram init failed, notifier disabled")
		return nil
	}
	return &Telegram{bot: bot, chatID: chatID}
}

func (t *Telegram) send(text string) {
	if t == nil {
		return
	}
	go func() {
		msg := tgbotapi.NewMessage(t.chatID, text)
		if _, err := t.bot.Send(msg); err != nil {
			log.Debug().Err(err).Msg("telegram send failed")
		}
	}()
}

// NotifyEntry reports an accepted one-sided entry.
func (t *Telegram) NotifyEntry(marketID, side string, price, size decimal.Decimal) {
	t.send(fmt.Sprintf("🎯 ENTRY %s %s %s @ %s", marketID, side, size.StringFixed(2), price.StringFixed(2)))
}

// NotifyHedge reports a hedge placement.
func (t *Telegram) NotifyHedge(marketID, side string, qty, price decimal.Decimal, emergency bool) {
	tag := "⚖️ HEDGE"
	if emergency {
		tag = "🚨 EMERGENCY HEDGE"
	}
	t.send(fmt.Sprintf("%s %s %s %s @ %s", tag, marketID, side, qty.StringFixed(2), price.StringFixed(2)))
}

// NotifyExit reports a reversal-guard emergency exit.
func (t *Telegram) NotifyExit(marketID, held string, closed decimal.Decimal) {
	t.send(fmt.Sprintf("🛑 REVERSAL EXIT %s held=%s closed=%s", marketID, held, closed.StringFixed(2)))
}

// NotifySettlement reports a settled market's realized pnl.
func (t *Telegram) NotifySettlement(marketID, winner string, pnl decimal.Decimal) {
	t.send(fmt.Sprintf("🏁 SETTLED %s winner=%s pnl=%s", marketID, winner, pnl.StringFixed(2)))
}
