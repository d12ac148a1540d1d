// Package config загружает конфигурацию движка из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки движка экономики.
//
// Числа кривой наград (кап, маржи, шанс джекпота, колени кривой) подобраны
// продуктово и намеренно вынесены в конфиг, а не выведены формулой.
type Config struct {
	// --- Database ---
	// В Docker внутри контейнера "localhost" почти всегда неправильно.
	// Дефолт ставим "postgres" (имя сервиса в docker-compose).
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"rockets"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"cryptorockets"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`
	// Предел на одну транзакцию движка: по истечении — откат и снятие блокировок.
	DBTxTimeout    time.Duration `envconfig:"DB_TX_TIMEOUT" default:"30s"`
	MigrationsPath string        `envconfig:"MIGRATIONS_PATH" default:"migrations"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`

	// --- Alerts (Telegram) ---
	AlertsEnabled  bool   `envconfig:"ALERTS_ENABLED" default:"true"`
	AlertsBotToken string `envconfig:"ALERTS_TELEGRAM_BOT_TOKEN" required:"true"`
	AlertsChatID   int64  `envconfig:"ALERTS_TELEGRAM_CHAT_ID" required:"true"`

	// --- Redis (pub/sub для live-обновлений) ---
	RedisAddr    string `envconfig:"REDIS_ADDR" default:"redis:6379"`
	RedisChannel string `envconfig:"REDIS_CHANNEL" default:"websockets"`

	// --- Экономика ---
	// Кап баланса usdt/ton. Выше него награды урезаются до пыли.
	MaxBalance float64 `envconfig:"ECONOMY_MAX_BALANCE" default:"60"`
	// Маржа анти-абьюза колеса: приз-валюта исключается из розыгрыша,
	// если баланс ближе к капу, чем эта маржа.
	WheelCapMargin float64 `envconfig:"ECONOMY_WHEEL_CAP_MARGIN" default:"10"`
	// Шанс джекпота при запуске ракеты.
	JackpotChance float64 `envconfig:"ECONOMY_JACKPOT_CHANCE" default:"0.015"`
	// Курсы для usd_amount инвойса.
	TONPriceUSD  float64 `envconfig:"ECONOMY_TON_PRICE_USD" default:"3.5"`
	StarPriceUSD float64 `envconfig:"ECONOMY_STAR_PRICE_USD" default:"0.013"`
	// Сколько билетов колеса получает новый пользователь.
	StartingWheelTickets int64 `envconfig:"ECONOMY_STARTING_WHEEL_TICKETS" default:"3"`

	// --- Ракеты ---
	RocketCapacityDefault int `envconfig:"ROCKET_CAPACITY_DEFAULT" default:"3"`
	RocketCapacityOffline int `envconfig:"ROCKET_CAPACITY_OFFLINE" default:"6"`
	RocketCapacityPremium int `envconfig:"ROCKET_CAPACITY_PREMIUM" default:"4"`
	// Кулдауны регенерации: новая ракета тира выдаётся не чаще, чем раз в период.
	RocketCooldownDefault time.Duration `envconfig:"ROCKET_COOLDOWN_DEFAULT" default:"60m"`
	RocketCooldownOffline time.Duration `envconfig:"ROCKET_COOLDOWN_OFFLINE" default:"480m"`
	RocketCooldownPremium time.Duration `envconfig:"ROCKET_COOLDOWN_PREMIUM" default:"1440m"`
	// Кулдаун бесплатного билета колеса.
	WheelCooldown time.Duration `envconfig:"WHEEL_COOLDOWN" default:"180m"`

	// --- Планировщик ---
	// Сколько пользователей с истёкшими таймерами обрабатываем за один тик.
	RegenBatchSize int `envconfig:"REGEN_BATCH_SIZE" default:"500"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Validate проверяет согласованность настроек.
func (c *Config) Validate() error {
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.DBTxTimeout <= 0 {
		return fmt.Errorf("DB_TX_TIMEOUT должен быть > 0")
	}
	if c.MaxBalance <= 0 || c.WheelCapMargin < 0 || c.WheelCapMargin >= c.MaxBalance {
		return fmt.Errorf("некорректные ECONOMY_MAX_BALANCE/ECONOMY_WHEEL_CAP_MARGIN")
	}
	if c.JackpotChance < 0 || c.JackpotChance > 1 {
		return fmt.Errorf("ECONOMY_JACKPOT_CHANCE должен быть в [0, 1]")
	}
	if c.RegenBatchSize <= 0 {
		return fmt.Errorf("REGEN_BATCH_SIZE должен быть > 0")
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
