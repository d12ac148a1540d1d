// Package rockets управляет жизненным циклом ракет: топливо, запуск,
// регенерация по таймерам. models.go описывает тиры и строку таблицы rockets.
package rockets

import (
	"time"

	"cryptorockets.net/backend/internal/config"
)

// Type — тир ракеты. Ёмкость бака фиксирована на тир.
type Type string

// Тиры
const (
	TypeDefault       Type = "default"
	TypeOffline       Type = "offline"
	TypePremium       Type = "premium"
	TypeSuper         Type = "super"
	TypeMega          Type = "mega"
	TypeUltra         Type = "ultra"
	TypeSuperMegaUltra Type = "super_mega_ultra"
)

// TimedTypes — тиры, которые регенерируются по таймеру пользователя.
var TimedTypes = []Type{TypeDefault, TypeOffline, TypePremium}

// Capacity возвращает ёмкость бака тира. Конфигурируются только
// три базовых тира; остальные (призовые) летают с баком на единицу.
func Capacity(cfg *config.Config, t Type) int {
	switch t {
	case TypeDefault:
		return cfg.RocketCapacityDefault
	case TypeOffline:
		return cfg.RocketCapacityOffline
	case TypePremium:
		return cfg.RocketCapacityPremium
	}
	return 1
}

// Cooldown возвращает период регенерации тира.
func Cooldown(cfg *config.Config, t Type) time.Duration {
	switch t {
	case TypeDefault:
		return cfg.RocketCooldownDefault
	case TypeOffline:
		return cfg.RocketCooldownOffline
	case TypePremium:
		return cfg.RocketCooldownPremium
	}
	return 0
}

// Rocket — строка таблицы rockets.
// Инвариант: 0 <= CurrentFuel <= FuelCapacity; FuelCapacity неизменна.
// Выключенная ракета не запускается даже с полным баком.
type Rocket struct {
	ID     int64 `db:"id"`
	UserID int64 `db:"user_id"`
	Type   Type  `db:"type"`

	FuelCapacity int  `db:"fuel_capacity"`
	CurrentFuel  int  `db:"current_fuel"`
	Enabled      bool `db:"enabled"`
	Seen         bool `db:"seen"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Fueled сообщает, полон ли бак.
func (r *Rocket) Fueled() bool {
	return r.CurrentFuel >= r.FuelCapacity
}
