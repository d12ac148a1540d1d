// Package payments — repository.go выполняет запросы к таблицам
// invoices, user_consumables и gifts.
package payments

import (
	"context"
	"fmt"

	"cryptorockets.net/backend/internal/common"
	"cryptorockets.net/backend/internal/db/postgres"
)

// Repository работает с таблицами приёма платежей.
type Repository struct{}

// NewRepository создаёт репозиторий платежей.
func NewRepository() *Repository {
	return &Repository{}
}

// InsertInvoice вставляет инвойс со статусом created. Дубликат
// external_id ловится уникальным индексом и превращается в
// ErrDuplicatePayment: гонку двух доставок решает база.
func (r *Repository) InsertInvoice(ctx context.Context, q postgres.Querier, inv *Invoice) error {
	query := `
		INSERT INTO invoices (user_id, external_id, status, currency, currency_amount, currency_fee, usd_amount, callback_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := q.QueryRow(ctx, query,
		inv.UserID, inv.ExternalID, inv.Status,
		inv.Currency, inv.CurrencyAmount, inv.CurrencyFee, inv.USDAmount,
		inv.CallbackData,
	).Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return common.ErrDuplicatePayment
		}
		return fmt.Errorf("ошибка создания инвойса: %w", postgres.MapError(err))
	}
	return nil
}

// FinalizeInvoice проставляет финальный статус и ссылки на эффекты платежа.
func (r *Repository) FinalizeInvoice(ctx context.Context, q postgres.Querier, invoiceID int64, status InvoiceStatus, transactionID, rocketID *int64) error {
	query := `UPDATE invoices SET status = $2, transaction_id = $3, rocket_id = $4 WHERE id = $1`
	if _, err := q.Exec(ctx, query, invoiceID, status, transactionID, rocketID); err != nil {
		return fmt.Errorf("ошибка финализации инвойса: %w", postgres.MapError(err))
	}
	return nil
}

// UpsertConsumable увеличивает именованный счётчик расходника пользователя.
func (r *Repository) UpsertConsumable(ctx context.Context, q postgres.Querier, telegramID int64, name string, delta int) error {
	query := `
		INSERT INTO user_consumables (user_id, name, count)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, name)
		DO UPDATE SET count = user_consumables.count + EXCLUDED.count, updated_at = NOW()
	`
	if _, err := q.Exec(ctx, query, telegramID, name, delta); err != nil {
		return fmt.Errorf("ошибка начисления расходника: %w", postgres.MapError(err))
	}
	return nil
}

// GiftStatusForUpdate читает статус подарка под блокировкой строки.
func (r *Repository) GiftStatusForUpdate(ctx context.Context, q postgres.Querier, telegramID, giftID int64) (string, error) {
	query := `SELECT status FROM gifts WHERE id = $1 AND user_id = $2 FOR UPDATE`
	var status string
	if err := q.QueryRow(ctx, query, giftID, telegramID).Scan(&status); err != nil {
		if postgres.IsNoRows(err) {
			return "", common.ErrGiftUnavailable
		}
		return "", fmt.Errorf("ошибка чтения подарка: %w", postgres.MapError(err))
	}
	return status, nil
}

// SetGiftStatus переводит подарок в новый статус.
func (r *Repository) SetGiftStatus(ctx context.Context, q postgres.Querier, giftID int64, status string) error {
	query := `UPDATE gifts SET status = $2, updated_at = NOW() WHERE id = $1`
	if _, err := q.Exec(ctx, query, giftID, status); err != nil {
		return fmt.Errorf("ошибка обновления подарка: %w", postgres.MapError(err))
	}
	return nil
}
