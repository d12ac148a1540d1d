// Package i18n — подписи призов и алертов на языках клиента.
// Ключ без перевода возвращается как есть: лучше сырой ключ
// в интерфейсе, чем паника или пустая строка.
package i18n

var messages = map[string]map[string]string{
	"en": {
		"prize.default_rocket": "Rocket",
		"prize.offline_rocket": "Offline rocket",
		"prize.premium_rocket": "Premium rocket",
		"prize.wheel":          "Free spin",
		"prize.usdt100":        "100 USDT",
		"prize.usdt1":          "1 USDT",
		"prize.ton1":           "1 TON",
		"prize.token500":       "500 tokens",
		"prize.token1500":      "1500 tokens",
		"prize.ton50":          "50 TON",
		"launch.success":       "Launch successful!",
		"launch.no_fuel":       "Not enough fuel",
	},
	"ru": {
		"prize.default_rocket": "Ракета",
		"prize.offline_rocket": "Оффлайн-ракета",
		"prize.premium_rocket": "Премиум-ракета",
		"prize.wheel":          "Бесплатный спин",
		"prize.usdt100":        "100 USDT",
		"prize.usdt1":          "1 USDT",
		"prize.ton1":           "1 TON",
		"prize.token500":       "500 токенов",
		"prize.token1500":      "1500 токенов",
		"prize.ton50":          "50 TON",
		"launch.success":       "Успешный запуск!",
		"launch.no_fuel":       "Недостаточно топлива",
	},
}

// T возвращает перевод ключа. Неизвестный язык падает на "en",
// неизвестный ключ возвращается без изменений.
func T(key, lang string) string {
	if msgs, ok := messages[lang]; ok {
		if msg, ok := msgs[key]; ok {
			return msg
		}
	}
	if msg, ok := messages["en"][key]; ok {
		return msg
	}
	return key
}
