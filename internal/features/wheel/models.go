// Package wheel реализует колесо фортуны: взвешенный розыгрыш приза
// за билет, анти-абьюз у капа баланса и скриптованные первые спины.
// models.go описывает таблицу призов и строку истории wheel_prizes.
package wheel

import (
	"time"

	"github.com/shopspring/decimal"

	"cryptorockets.net/backend/internal/features/ledger"
	"cryptorockets.net/backend/internal/features/rockets"
	"cryptorockets.net/backend/internal/i18n"
)

// Kind — вид приза: начисление валюты или выдача ракеты.
type Kind string

// Виды призов
const (
	KindCurrency Kind = "currency"
	KindRocket   Kind = "rocket"
)

// Prize — слот колеса. Вес ноль означает витринный слот:
// он рисуется на клиенте, но розыгрышем недостижим.
type Prize struct {
	Name   string
	Kind   Kind
	Weight int
	Icon   string

	// Для KindCurrency
	Currency ledger.Currency
	Amount   decimal.Decimal

	// Для KindRocket
	RocketTier rockets.Type
}

// Prizes — таблица колеса. Веса продуктовые, сумма не нормирована.
var Prizes = []Prize{
	{Name: "default_rocket", Kind: KindRocket, Weight: 20, Icon: "rocket_default", RocketTier: rockets.TypeDefault},
	{Name: "offline_rocket", Kind: KindRocket, Weight: 19, Icon: "rocket_offline", RocketTier: rockets.TypeOffline},
	{Name: "premium_rocket", Kind: KindRocket, Weight: 10, Icon: "rocket_premium", RocketTier: rockets.TypePremium},
	{Name: "wheel", Kind: KindCurrency, Weight: 5, Icon: "wheel", Currency: ledger.CurrencyWheel, Amount: decimal.NewFromInt(1)},
	{Name: "usdt100", Kind: KindCurrency, Weight: 0, Icon: "usdt", Currency: ledger.CurrencyUSDT, Amount: decimal.NewFromInt(100)},
	{Name: "usdt1", Kind: KindCurrency, Weight: 4, Icon: "usdt", Currency: ledger.CurrencyUSDT, Amount: decimal.NewFromInt(1)},
	{Name: "ton1", Kind: KindCurrency, Weight: 2, Icon: "ton", Currency: ledger.CurrencyTON, Amount: decimal.NewFromInt(1)},
	{Name: "token500", Kind: KindCurrency, Weight: 20, Icon: "token", Currency: ledger.CurrencyToken, Amount: decimal.NewFromInt(500)},
	{Name: "token1500", Kind: KindCurrency, Weight: 20, Icon: "token", Currency: ledger.CurrencyToken, Amount: decimal.NewFromInt(1500)},
	{Name: "ton50", Kind: KindCurrency, Weight: 0, Icon: "ton", Currency: ledger.CurrencyTON, Amount: decimal.NewFromInt(50)},
}

// Label возвращает подпись слота на языке клиента.
func (p Prize) Label(lang string) string {
	return i18n.T("prize."+p.Name, lang)
}

// prizeByName находит слот по имени (для скриптованных спинов).
func prizeByName(name string) (Prize, bool) {
	for _, p := range Prizes {
		if p.Name == name {
			return p, true
		}
	}
	return Prize{}, false
}

// HistoryEntry — строка таблицы wheel_prizes, история выигрышей.
type HistoryEntry struct {
	ID        int64            `db:"id"`
	UserID    int64            `db:"user_id"`
	Type      string           `db:"type"`
	Amount    *decimal.Decimal `db:"amount"`
	Icon      string           `db:"icon"`
	CreatedAt time.Time        `db:"created_at"`
}

// SpinResult — итог спина: выпавший слот и снапшот пользователя.
type SpinResult struct {
	Prize Prize
	User  *ledger.User
}
