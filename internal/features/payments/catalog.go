// Package payments — catalog.go описывает каталог товаров.
// Каталог собирается один раз на старте и дальше только читается:
// цена и содержимое товара никогда не меняются на лету.
package payments

import (
	"github.com/shopspring/decimal"

	"cryptorockets.net/backend/internal/features/ledger"
	"cryptorockets.net/backend/internal/features/rockets"
)

// Price — цена товара в двух платёжных валютах.
type Price struct {
	Stars int64           // Telegram Stars, целые
	TON   decimal.Decimal // TON за единицу
}

// Item — товар каталога. Конкретные эффекты оплаты определяет вариант.
type Item interface {
	ItemID() string
	Price() Price
}

// CurrencyItem начисляет валюту на баланс.
type CurrencyItem struct {
	ID       string
	Cost     Price
	Currency ledger.Currency
	Amount   decimal.Decimal
}

func (i CurrencyItem) ItemID() string { return i.ID }
func (i CurrencyItem) Price() Price   { return i.Cost }

// RocketItem выдаёт ракету тира с полным баком.
type RocketItem struct {
	ID   string
	Cost Price
	Tier rockets.Type
}

func (i RocketItem) ItemID() string { return i.ID }
func (i RocketItem) Price() Price   { return i.Cost }

// ConsumableItem увеличивает именованный расходник пользователя.
type ConsumableItem struct {
	ID    string
	Cost  Price
	Name  string
	Count int
}

func (i ConsumableItem) ItemID() string { return i.ID }
func (i ConsumableItem) Price() Price   { return i.Cost }

// GiftWithdrawalItem — комиссия за вывод подарка. Идентификатор
// подарка приходит третьим полем payload.
type GiftWithdrawalItem struct {
	ID   string
	Cost Price
}

func (i GiftWithdrawalItem) ItemID() string { return i.ID }
func (i GiftWithdrawalItem) Price() Price   { return i.Cost }

// Catalog — неизменяемая карта товаров по id.
type Catalog map[string]Item

// DefaultCatalog возвращает боевой каталог.
func DefaultCatalog() Catalog {
	items := []Item{
		CurrencyItem{ID: "wheel_1", Cost: Price{Stars: 25, TON: decimal.RequireFromString("0.1")},
			Currency: ledger.CurrencyWheel, Amount: decimal.NewFromInt(1)},
		CurrencyItem{ID: "wheel_10", Cost: Price{Stars: 225, TON: decimal.RequireFromString("0.9")},
			Currency: ledger.CurrencyWheel, Amount: decimal.NewFromInt(10)},
		CurrencyItem{ID: "fuel_1", Cost: Price{Stars: 15, TON: decimal.RequireFromString("0.05")},
			Currency: ledger.CurrencyFuel, Amount: decimal.NewFromInt(1)},
		CurrencyItem{ID: "fuel_10", Cost: Price{Stars: 125, TON: decimal.RequireFromString("0.45")},
			Currency: ledger.CurrencyFuel, Amount: decimal.NewFromInt(10)},

		RocketItem{ID: "rocket_premium", Cost: Price{Stars: 250, TON: decimal.NewFromInt(1)},
			Tier: rockets.TypePremium},
		RocketItem{ID: "rocket_super", Cost: Price{Stars: 750, TON: decimal.NewFromInt(3)},
			Tier: rockets.TypeSuper},

		ConsumableItem{ID: "autopilot_7d", Cost: Price{Stars: 350, TON: decimal.RequireFromString("1.5")},
			Name: "autopilot_days", Count: 7},

		GiftWithdrawalItem{ID: "gift_withdrawal", Cost: Price{Stars: 100, TON: decimal.RequireFromString("0.4")}},
	}

	c := make(Catalog, len(items))
	for _, item := range items {
		c[item.ItemID()] = item
	}
	return c
}
