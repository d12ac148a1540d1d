// Package payments — models.go описывает инвойс и нормализованный платёж.
package payments

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"cryptorockets.net/backend/internal/features/ledger"
)

// InvoiceStatus — статус инвойса.
type InvoiceStatus string

// Статусы
const (
	InvoiceStatusCreated InvoiceStatus = "created"
	InvoiceStatusSuccess InvoiceStatus = "success"
	InvoiceStatusError   InvoiceStatus = "error"
)

// Invoice — строка таблицы invoices. external_id — ключ идемпотентности,
// уникальность держит индекс базы, не приложение.
type Invoice struct {
	ID     int64 `db:"id"`
	UserID int64 `db:"user_id"`

	ExternalID string        `db:"external_id"`
	Status     InvoiceStatus `db:"status"`

	Currency       ledger.Currency  `db:"currency"`
	CurrencyAmount decimal.Decimal  `db:"currency_amount"`
	CurrencyFee    *decimal.Decimal `db:"currency_fee"`
	USDAmount      decimal.Decimal  `db:"usd_amount"`

	TransactionID *int64 `db:"transaction_id"`
	RocketID      *int64 `db:"rocket_id"`

	CallbackData json.RawMessage `db:"callback_data"`
	Refunded     bool            `db:"refunded"`

	CreatedAt time.Time `db:"created_at"`
}

// Payment — платёж, нормализованный из колбэка провайдера.
// Currency: ton для on-chain депозитов, xtr для Telegram Stars.
type Payment struct {
	ExternalID string
	TelegramID int64
	Currency   ledger.Currency
	Amount     decimal.Decimal

	ItemID string
	// Третье поле payload: количество для обычных товаров,
	// id подарка для вывода. Интерпретируется по варианту товара.
	Extra *int64

	// Сырой колбэк, уходит в invoices.callback_data как есть.
	Raw json.RawMessage
}
