// Package rockets — repository.go выполняет запросы к таблице rockets
// и к таймерам регенерации на строке пользователя.
package rockets

import (
	"context"
	"fmt"
	"time"

	"cryptorockets.net/backend/internal/common"
	"cryptorockets.net/backend/internal/db/postgres"
)

const rocketColumns = `id, user_id, type, fuel_capacity, current_fuel, enabled, seen, created_at, updated_at`

// Колонки таймеров регенерации. Белый список — имена подставляются в SQL.
var timerColumns = map[Type]string{
	TypeDefault: "next_default_rocket_at",
	TypeOffline: "next_offline_rocket_at",
	TypePremium: "next_premium_rocket_at",
}

// Repository работает с таблицей rockets.
type Repository struct{}

// NewRepository создаёт репозиторий ракет.
func NewRepository() *Repository {
	return &Repository{}
}

func scanRocket(row interface{ Scan(dest ...any) error }) (*Rocket, error) {
	var r Rocket
	err := row.Scan(
		&r.ID, &r.UserID, &r.Type, &r.FuelCapacity, &r.CurrentFuel,
		&r.Enabled, &r.Seen, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, common.ErrRocketNotFound
		}
		return nil, fmt.Errorf("ошибка чтения ракеты: %w", postgres.MapError(err))
	}
	return &r, nil
}

// GetForUpdate читает ракету пользователя под эксклюзивной блокировкой строки.
func (r *Repository) GetForUpdate(ctx context.Context, q postgres.Querier, telegramID, rocketID int64) (*Rocket, error) {
	query := `SELECT ` + rocketColumns + ` FROM rockets WHERE id = $1 AND user_id = $2 FOR UPDATE`
	return scanRocket(q.QueryRow(ctx, query, rocketID, telegramID))
}

// GetByTypeForUpdate блокирует одну ракету тира (для реферальной заправки).
func (r *Repository) GetByTypeForUpdate(ctx context.Context, q postgres.Querier, telegramID int64, t Type) (*Rocket, error) {
	query := `SELECT ` + rocketColumns + ` FROM rockets WHERE user_id = $1 AND type = $2 ORDER BY id LIMIT 1 FOR UPDATE`
	return scanRocket(q.QueryRow(ctx, query, telegramID, t))
}

// SetFuel записывает уровень топлива. Значение уже зажато сервисом в [0, cap].
func (r *Repository) SetFuel(ctx context.Context, q postgres.Querier, rocketID int64, fuel int) error {
	query := `UPDATE rockets SET current_fuel = $2, updated_at = NOW() WHERE id = $1`
	if _, err := q.Exec(ctx, query, rocketID, fuel); err != nil {
		return fmt.Errorf("ошибка записи топлива: %w", postgres.MapError(err))
	}
	return nil
}

// MarkLaunched сбрасывает бак и выключает ракету после запуска.
func (r *Repository) MarkLaunched(ctx context.Context, q postgres.Querier, rocketID int64) error {
	query := `UPDATE rockets SET current_fuel = 0, enabled = FALSE, updated_at = NOW() WHERE id = $1`
	if _, err := q.Exec(ctx, query, rocketID); err != nil {
		return fmt.Errorf("ошибка сброса ракеты: %w", postgres.MapError(err))
	}
	return nil
}

// SetEnabled включает или выключает ракету.
func (r *Repository) SetEnabled(ctx context.Context, q postgres.Querier, rocketID int64, enabled bool) error {
	query := `UPDATE rockets SET enabled = $2, updated_at = NOW() WHERE id = $1`
	if _, err := q.Exec(ctx, query, rocketID, enabled); err != nil {
		return fmt.Errorf("ошибка переключения ракеты: %w", postgres.MapError(err))
	}
	return nil
}

// Create добавляет ракету и заполняет её ID.
func (r *Repository) Create(ctx context.Context, q postgres.Querier, rocket *Rocket) error {
	query := `
		INSERT INTO rockets (user_id, type, fuel_capacity, current_fuel, enabled, seen)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := q.QueryRow(ctx, query,
		rocket.UserID, rocket.Type, rocket.FuelCapacity, rocket.CurrentFuel, rocket.Enabled, rocket.Seen,
	).Scan(&rocket.ID, &rocket.CreatedAt, &rocket.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания ракеты: %w", postgres.MapError(err))
	}
	return nil
}

// HasEnabledOfType сообщает, держит ли пользователь включённую ракету тира.
// По этому признаку регенерация пропускает выдачу (идемпотентность на тир).
func (r *Repository) HasEnabledOfType(ctx context.Context, q postgres.Querier, telegramID int64, t Type) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM rockets WHERE user_id = $1 AND type = $2 AND enabled)`
	var exists bool
	if err := q.QueryRow(ctx, query, telegramID, t).Scan(&exists); err != nil {
		return false, fmt.Errorf("ошибка проверки ракеты: %w", postgres.MapError(err))
	}
	return exists, nil
}

// AdvanceTimer двигает таймер тира вперёд. GREATEST гарантирует
// монотонность: назад таймер не откатывается никогда.
func (r *Repository) AdvanceTimer(ctx context.Context, q postgres.Querier, telegramID int64, t Type, next time.Time) error {
	column, ok := timerColumns[t]
	if !ok {
		return fmt.Errorf("тир %s не регенерируется по таймеру", t)
	}

	query := fmt.Sprintf(
		`UPDATE users SET %s = GREATEST(%s, $2), updated_at = NOW() WHERE telegram_id = $1`,
		column, column,
	)
	if _, err := q.Exec(ctx, query, telegramID, next); err != nil {
		return fmt.Errorf("ошибка сдвига таймера: %w", postgres.MapError(err))
	}
	return nil
}

// AdvanceWheelTimer двигает таймер бесплатного билета колеса вперёд.
func (r *Repository) AdvanceWheelTimer(ctx context.Context, q postgres.Querier, telegramID int64, next time.Time) error {
	query := `UPDATE users SET next_wheel_at = GREATEST(next_wheel_at, $2), updated_at = NOW() WHERE telegram_id = $1`
	if _, err := q.Exec(ctx, query, telegramID, next); err != nil {
		return fmt.Errorf("ошибка сдвига таймера колеса: %w", postgres.MapError(err))
	}
	return nil
}

// ListDueUsers возвращает пользователей, у которых истёк хотя бы один
// таймер регенерации. Пейджинг батчами для планировщика.
func (r *Repository) ListDueUsers(ctx context.Context, q postgres.Querier, limit int) ([]int64, error) {
	query := `
		SELECT telegram_id FROM users
		WHERE LEAST(next_default_rocket_at, next_offline_rocket_at, next_premium_rocket_at, next_wheel_at) <= NOW()
		ORDER BY telegram_id
		LIMIT $1
	`
	rows, err := q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки должников регенерации: %w", postgres.MapError(err))
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка сканирования: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
