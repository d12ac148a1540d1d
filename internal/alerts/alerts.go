// Package alerts отправляет служебные уведомления команде в Telegram:
// платежи, отказы приёма, ошибки движка.
package alerts

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"cryptorockets.net/backend/internal/config"
)

// Notifier шлёт сообщения в служебный чат. При выключенных алертах
// все методы — no-op: код вызывающих не обрастает проверками.
type Notifier struct {
	bot     *telego.Bot
	chatID  int64
	enabled bool
}

// New создаёт нотификатор. Ошибка создания бота не фатальна для движка:
// алерты деградируют в лог.
func New(cfg *config.Config) *Notifier {
	n := &Notifier{chatID: cfg.AlertsChatID, enabled: cfg.AlertsEnabled}
	if !cfg.AlertsEnabled {
		return n
	}

	bot, err := telego.NewBot(cfg.AlertsBotToken, telego.WithDiscardLogger())
	if err != nil {
		log.WithError(err).Error("Не удалось создать бота алертов, уведомления уходят только в лог")
		n.enabled = false
		return n
	}
	n.bot = bot
	return n
}

// Send отправляет сообщение в служебный чат с ретраями.
func (n *Notifier) Send(ctx context.Context, msg string) error {
	return n.SendTo(ctx, n.chatID, msg)
}

// SendTo отправляет сообщение в произвольный чат. Telegram временами
// отдаёт 429/5xx, три попытки с паузой закрывают почти все случаи.
func (n *Notifier) SendTo(ctx context.Context, chatID int64, msg string) error {
	if !n.enabled {
		log.WithField("msg", msg).Debug("Алерты выключены")
		return nil
	}

	return retry.Do(
		func() error {
			_, err := n.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), msg))
			return err
		},
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.Context(ctx),
	)
}

// Async отправляет сообщение fire-and-forget. Ошибка доставки
// логируется и никогда не влияет на вызывающего.
func (n *Notifier) Async(msg string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := n.Send(ctx, msg); err != nil {
			log.WithError(err).Warn("Не удалось отправить алерт")
		}
	}()
}
