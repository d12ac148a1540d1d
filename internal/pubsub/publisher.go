// Package pubsub публикует события движка в Redis-канал, который
// слушает websocket-раздатчик. Клиенты получают live-обновления
// балансов, призов и платежей без опроса.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"cryptorockets.net/backend/internal/config"
)

// Event — сообщение в канале.
type Event struct {
	Event      string `json:"event"`
	TelegramID int64  `json:"telegram_id"`
	Payload    any    `json:"payload,omitempty"`
}

// Publisher публикует события в Redis.
type Publisher struct {
	client  *redis.Client
	channel string
}

// New подключается к Redis и проверяет доступность.
func New(ctx context.Context, cfg *config.Config) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis недоступен: %w", err)
	}

	log.Info("Подключение к Redis установлено")
	return &Publisher{client: client, channel: cfg.RedisChannel}, nil
}

// Publish публикует событие синхронно.
func (p *Publisher) Publish(ctx context.Context, event string, telegramID int64, payload any) error {
	body, err := json.Marshal(Event{Event: event, TelegramID: telegramID, Payload: payload})
	if err != nil {
		return fmt.Errorf("ошибка сериализации события: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		return fmt.Errorf("ошибка публикации события: %w", err)
	}
	return nil
}

// PublishAsync публикует fire-and-forget. Live-обновление — best effort:
// потерянное событие клиент доберёт следующим запросом.
func (p *Publisher) PublishAsync(event string, telegramID int64, payload any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := p.Publish(ctx, event, telegramID, payload); err != nil {
			log.WithError(err).WithField("event", event).Warn("Не удалось опубликовать событие")
		}
	}()
}

// Close закрывает соединение с Redis.
func (p *Publisher) Close() error {
	return p.client.Close()
}
