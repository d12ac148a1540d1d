// Package ledger управляет балансами пользователей и журналом транзакций.
// models.go описывает валюты, типы операций и структуры таблиц users/transactions.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency — валюта движка.
type Currency string

// Валюты. XTR (Telegram Stars) существует только в инвойсах,
// балансовой колонки у неё нет.
const (
	CurrencyTON   Currency = "ton"
	CurrencyUSDT  Currency = "usdt"
	CurrencyToken Currency = "token"
	CurrencyFuel  Currency = "fuel"
	CurrencyWheel Currency = "wheel"
	CurrencyXTR   Currency = "xtr"
)

// balanceColumns — белый список колонок балансов.
// Через него же валидируется Currency перед подстановкой имени колонки в SQL.
var balanceColumns = map[Currency]string{
	CurrencyTON:   "ton_balance",
	CurrencyUSDT:  "usdt_balance",
	CurrencyToken: "token_balance",
	CurrencyFuel:  "fuel_balance",
	CurrencyWheel: "wheel_balance",
}

// HasBalance сообщает, есть ли у валюты балансовая колонка.
func (c Currency) HasBalance() bool {
	_, ok := balanceColumns[c]
	return ok
}

// TxType — тип операции в журнале.
type TxType string

// Типы операций
const (
	TxTypeWheelSpin      TxType = "wheel_spin"
	TxTypeRocketLaunch   TxType = "rocket_launch"
	TxTypePurchase       TxType = "purchase"
	TxTypeTaskCompletion TxType = "task_completion"
	TxTypeRetentionGrant TxType = "retention_grant"
	TxTypeAds            TxType = "ads"
)

// TxStatus — статус записи журнала.
type TxStatus string

// Статусы
const (
	TxStatusCreated TxStatus = "created"
	TxStatusSuccess TxStatus = "success"
	TxStatusError   TxStatus = "error"
)

// User — строка таблицы users: пять балансов, счётчик спинов
// и таймеры регенерации. Инвариант: все балансы >= 0,
// таймеры двигаются только вперёд.
type User struct {
	ID         int64 `db:"id"`
	TelegramID int64 `db:"telegram_id"`

	TONBalance   decimal.Decimal `db:"ton_balance"`
	USDTBalance  decimal.Decimal `db:"usdt_balance"`
	TokenBalance decimal.Decimal `db:"token_balance"`
	FuelBalance  decimal.Decimal `db:"fuel_balance"`
	WheelBalance decimal.Decimal `db:"wheel_balance"`

	SpinCount    int    `db:"spin_count"`
	ReferralFrom *int64 `db:"referral_from"`

	NextDefaultRocketAt time.Time `db:"next_default_rocket_at"`
	NextOfflineRocketAt time.Time `db:"next_offline_rocket_at"`
	NextPremiumRocketAt time.Time `db:"next_premium_rocket_at"`
	NextWheelAt         time.Time `db:"next_wheel_at"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Balance возвращает баланс пользователя в указанной валюте.
// Для валют без балансовой колонки — ноль.
func (u *User) Balance(c Currency) decimal.Decimal {
	switch c {
	case CurrencyTON:
		return u.TONBalance
	case CurrencyUSDT:
		return u.USDTBalance
	case CurrencyToken:
		return u.TokenBalance
	case CurrencyFuel:
		return u.FuelBalance
	case CurrencyWheel:
		return u.WheelBalance
	}
	return decimal.Zero
}

// setBalance обновляет снапшот после записи в базу.
func (u *User) setBalance(c Currency, v decimal.Decimal) {
	switch c {
	case CurrencyTON:
		u.TONBalance = v
	case CurrencyUSDT:
		u.USDTBalance = v
	case CurrencyToken:
		u.TokenBalance = v
	case CurrencyFuel:
		u.FuelBalance = v
	case CurrencyWheel:
		u.WheelBalance = v
	}
}

// Transaction — запись журнала. Неизменяема после вставки;
// единственное разрешённое обновление — привязка refund_id.
type Transaction struct {
	ID     int64 `db:"id"`
	UserID int64 `db:"user_id"`

	Currency      Currency        `db:"currency"`
	BalanceBefore decimal.Decimal `db:"balance_before"`
	BalanceAfter  decimal.Decimal `db:"balance_after"`
	Amount        decimal.Decimal `db:"amount"` // со знаком: дебет < 0

	Type     TxType   `db:"type"`
	Status   TxStatus `db:"status"`
	RefundID *int64   `db:"refund_id"`

	CreatedAt time.Time `db:"created_at"`
}

// ChangeResult — результат мутации баланса: обновлённый снапшот
// пользователя и созданная запись журнала.
type ChangeResult struct {
	User        *User
	Transaction *Transaction
}
