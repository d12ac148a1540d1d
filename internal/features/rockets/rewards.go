// Package rockets — rewards.go считает награду за запуск.
// Кривая продуктовая: разгон новичков, замедление у капа, редкий
// джекпот с убывающим размером. Все колени кривой — в конфиге.
package rockets

import (
	"math/rand"

	"github.com/shopspring/decimal"

	"cryptorockets.net/backend/internal/config"
	"cryptorockets.net/backend/internal/features/ledger"
)

// Токены за запуск: целое из [tokenRewardMin, tokenRewardMax].
const (
	tokenRewardMin = 50
	tokenRewardMax = 300
)

// Веса валют награды обычного запуска.
var regularCurrencyWeights = []struct {
	currency ledger.Currency
	weight   int
}{
	{ledger.CurrencyUSDT, 30},
	{ledger.CurrencyTON, 30},
	{ledger.CurrencyToken, 40},
}

// rewardCurve инкапсулирует генерацию наград. Использует глобальный
// math/rand: источник потокобезопасен, детерминизм тестам не нужен,
// они проверяют границы.
type rewardCurve struct {
	cfg *config.Config
}

func newRewardCurve(cfg *config.Config) *rewardCurve {
	return &rewardCurve{cfg: cfg}
}

// pickCurrencies выбирает валюты награды. Премиум и супер-тиры платят
// всеми тремя, обычный запуск — одной, взвешенно 30/30/40.
func (rc *rewardCurve) pickCurrencies(tier Type) []ledger.Currency {
	switch tier {
	case TypePremium, TypeSuper, TypeMega, TypeUltra, TypeSuperMegaUltra:
		return []ledger.Currency{ledger.CurrencyUSDT, ledger.CurrencyTON, ledger.CurrencyToken}
	}

	total := 0
	for _, w := range regularCurrencyWeights {
		total += w.weight
	}
	roll := rand.Intn(total)
	for _, w := range regularCurrencyWeights {
		if roll < w.weight {
			return []ledger.Currency{w.currency}
		}
		roll -= w.weight
	}
	return []ledger.Currency{ledger.CurrencyToken}
}

// balanceDiff считает начисление одной валюты с учётом текущего баланса.
// Выше капа награда урезается до пыли, но никогда не обнуляется:
// запуск всегда что-то платит.
func (rc *rewardCurve) balanceDiff(u *ledger.User, c ledger.Currency, tier Type) decimal.Decimal {
	if c == ledger.CurrencyToken {
		return decimal.NewFromInt(int64(tokenRewardMin + rand.Intn(tokenRewardMax-tokenRewardMin+1)))
	}

	raw := rc.rawDiff(u, c, tier)
	limit := decimal.NewFromFloat(rc.cfg.MaxBalance)
	balance := u.Balance(c)

	// Первый клапан: переполнение капа режет награду до [0.001, 0.01].
	if balance.Add(raw).GreaterThanOrEqual(limit) {
		raw = decimal.NewFromFloat(uniform(0.001, 0.01)).Round(3)
	}
	// Второй клапан: если и пыль переполняет, платим символический минимум.
	if balance.Add(raw).GreaterThanOrEqual(limit) {
		raw = decimal.NewFromFloat(0.00001)
	}
	return raw
}

// rawDiff — кривая до клапанов переполнения.
func (rc *rewardCurve) rawDiff(u *ledger.User, c ledger.Currency, tier Type) decimal.Decimal {
	max := rc.cfg.MaxBalance

	// Разгон новичка: суммарно usdt+ton меньше единицы — крупный аванс.
	if u.USDTBalance.Add(u.TONBalance).LessThan(decimal.NewFromInt(1)) {
		return round2(uniform(8, 10))
	}

	balance, _ := u.Balance(c).Float64()

	if tier == TypeSuper && balance < max-20 {
		return round2(uniform(2.5, 5))
	}

	if rand.Float64() < rc.cfg.JackpotChance {
		switch {
		case balance < max-20:
			return round2(uniform(1.5, 3))
		case balance < max-10:
			return round2(uniform(0.5, 1))
		case balance < max-5:
			return round2(uniform(0.05, 0.1))
		}
	}

	// Базовая кривая: чем ближе к капу, тем уже коридор награды.
	progress := balance / max
	if progress > 1 {
		progress = 1
	}
	lo := 0.01 + (1-progress)*0.20
	hi := 0.05 + (1-progress)*0.5

	reward := uniform(lo, hi)
	if reward > 2 {
		reward = 2
	}
	return round2(reward)
}

func uniform(lo, hi float64) float64 {
	return lo + rand.Float64()*(hi-lo)
}

func round2(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}
