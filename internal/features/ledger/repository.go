// Package ledger — repository.go выполняет все запросы к таблицам users и transactions.
// Методы принимают postgres.Querier: вызывающий решает, работать через пул
// или внутри открытого транзакционного скоупа.
package ledger

import (
	"context"
	"fmt"
	"time"

	"cryptorockets.net/backend/internal/common"
	"cryptorockets.net/backend/internal/config"
	"cryptorockets.net/backend/internal/db/postgres"
)

const userColumns = `
	id, telegram_id,
	ton_balance, usdt_balance, token_balance, fuel_balance, wheel_balance,
	spin_count, referral_from,
	next_default_rocket_at, next_offline_rocket_at, next_premium_rocket_at, next_wheel_at,
	created_at, updated_at`

// Repository предоставляет методы для работы с балансами и журналом.
type Repository struct {
	cfg *config.Config
}

// NewRepository создаёт репозиторий леджера.
func NewRepository(cfg *config.Config) *Repository {
	return &Repository{cfg: cfg}
}

func scanUser(row interface{ Scan(dest ...any) error }) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.TelegramID,
		&u.TONBalance, &u.USDTBalance, &u.TokenBalance, &u.FuelBalance, &u.WheelBalance,
		&u.SpinCount, &u.ReferralFrom,
		&u.NextDefaultRocketAt, &u.NextOfflineRocketAt, &u.NextPremiumRocketAt, &u.NextWheelAt,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, common.ErrUserNotFound
		}
		return nil, fmt.Errorf("ошибка чтения пользователя: %w", postgres.MapError(err))
	}
	return &u, nil
}

// GetUser возвращает пользователя по telegram id без блокировки.
func (r *Repository) GetUser(ctx context.Context, q postgres.Querier, telegramID int64) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`
	return scanUser(q.QueryRow(ctx, query, telegramID))
}

// GetUserForUpdate читает пользователя под эксклюзивной блокировкой строки.
// Конкурирующие мутации того же пользователя встанут в очередь до коммита.
func (r *Repository) GetUserForUpdate(ctx context.Context, q postgres.Querier, telegramID int64) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1 FOR UPDATE`
	return scanUser(q.QueryRow(ctx, query, telegramID))
}

// UpdateBalance записывает новый баланс валюты.
// Вызывается ТОЛЬКО из Service.ChangeBalance — это единственный
// легальный путь изменения балансовых колонок.
func (r *Repository) UpdateBalance(ctx context.Context, q postgres.Querier, telegramID int64, c Currency, newBalance any) error {
	column, ok := balanceColumns[c]
	if !ok {
		return common.ErrUnknownCurrency
	}

	query := fmt.Sprintf(`UPDATE users SET %s = $2, updated_at = NOW() WHERE telegram_id = $1`, column)
	if _, err := q.Exec(ctx, query, telegramID, newBalance); err != nil {
		return fmt.Errorf("ошибка записи баланса: %w", postgres.MapError(err))
	}
	return nil
}

// InsertTransaction добавляет запись журнала и заполняет ID/CreatedAt.
func (r *Repository) InsertTransaction(ctx context.Context, q postgres.Querier, t *Transaction) error {
	query := `
		INSERT INTO transactions (user_id, currency, balance_before, balance_after, amount, type, status, refund_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := q.QueryRow(ctx, query,
		t.UserID, t.Currency, t.BalanceBefore, t.BalanceAfter, t.Amount, t.Type, t.Status, t.RefundID,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи транзакции: %w", postgres.MapError(err))
	}
	return nil
}

// AttachRefund привязывает возврат к существующей записи журнала.
// Единственная разрешённая мутация уже записанной транзакции.
func (r *Repository) AttachRefund(ctx context.Context, q postgres.Querier, txID, refundID int64) error {
	query := `UPDATE transactions SET refund_id = $2 WHERE id = $1 AND refund_id IS NULL`
	tag, err := q.Exec(ctx, query, txID, refundID)
	if err != nil {
		return fmt.Errorf("ошибка привязки возврата: %w", postgres.MapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("транзакция %d не найдена или возврат уже привязан", txID)
	}
	return nil
}

// IncrementSpinCount увеличивает счётчик спинов ровно на единицу.
func (r *Repository) IncrementSpinCount(ctx context.Context, q postgres.Querier, telegramID int64) error {
	query := `UPDATE users SET spin_count = spin_count + 1, updated_at = NOW() WHERE telegram_id = $1`
	if _, err := q.Exec(ctx, query, telegramID); err != nil {
		return fmt.Errorf("ошибка инкремента спинов: %w", postgres.MapError(err))
	}
	return nil
}

// CreateUser создаёт пользователя со стартовыми билетами колеса
// и таймерами регенерации, сдвинутыми на кулдаун вперёд.
// Стартовый набор ракет создаёт вызывающий сервис.
func (r *Repository) CreateUser(ctx context.Context, q postgres.Querier, telegramID int64, referralFrom *int64) (*User, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO users (
			telegram_id, wheel_balance, referral_from,
			next_default_rocket_at, next_offline_rocket_at, next_premium_rocket_at, next_wheel_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + userColumns
	row := q.QueryRow(ctx, query,
		telegramID, r.cfg.StartingWheelTickets, referralFrom,
		now.Add(r.cfg.RocketCooldownDefault),
		now.Add(r.cfg.RocketCooldownOffline),
		now.Add(r.cfg.RocketCooldownPremium),
		now.Add(r.cfg.WheelCooldown),
	)
	return scanUser(row)
}
