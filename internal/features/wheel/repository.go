// Package wheel — repository.go пишет и читает историю призов.
package wheel

import (
	"context"
	"fmt"
	"time"

	"cryptorockets.net/backend/internal/db/postgres"
)

// Repository работает с таблицей wheel_prizes.
type Repository struct{}

// NewRepository создаёт репозиторий колеса.
func NewRepository() *Repository {
	return &Repository{}
}

// InsertPrize записывает выигрыш в историю.
func (r *Repository) InsertPrize(ctx context.Context, q postgres.Querier, e *HistoryEntry) error {
	query := `
		INSERT INTO wheel_prizes (user_id, type, amount, icon)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := q.QueryRow(ctx, query, e.UserID, e.Type, e.Amount, e.Icon).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи приза: %w", postgres.MapError(err))
	}
	return nil
}

// ListRecent возвращает выигрыши за окно (лента последних победителей).
func (r *Repository) ListRecent(ctx context.Context, q postgres.Querier, window time.Duration) ([]HistoryEntry, error) {
	query := `
		SELECT id, user_id, type, amount, icon, created_at
		FROM wheel_prizes
		WHERE created_at > NOW() - make_interval(secs => $1)
		ORDER BY created_at DESC
	`
	rows, err := q.Query(ctx, query, window.Seconds())
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки истории призов: %w", postgres.MapError(err))
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Amount, &e.Icon, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
