// Package rockets — service.go реализует операции жизненного цикла:
// заправка, запуск, выдача по таймерам. Все мутации — под блокировкой
// строки ракеты (и пользователя, где меняется баланс или таймер).
package rockets

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"cryptorockets.net/backend/internal/common"
	"cryptorockets.net/backend/internal/config"
	"cryptorockets.net/backend/internal/db/postgres"
	"cryptorockets.net/backend/internal/features/ledger"
)

// store — нужные сервису методы репозитория ракет.
type store interface {
	GetForUpdate(ctx context.Context, q postgres.Querier, telegramID, rocketID int64) (*Rocket, error)
	GetByTypeForUpdate(ctx context.Context, q postgres.Querier, telegramID int64, t Type) (*Rocket, error)
	SetFuel(ctx context.Context, q postgres.Querier, rocketID int64, fuel int) error
	MarkLaunched(ctx context.Context, q postgres.Querier, rocketID int64) error
	SetEnabled(ctx context.Context, q postgres.Querier, rocketID int64, enabled bool) error
	Create(ctx context.Context, q postgres.Querier, rocket *Rocket) error
	HasEnabledOfType(ctx context.Context, q postgres.Querier, telegramID int64, t Type) (bool, error)
	AdvanceTimer(ctx context.Context, q postgres.Querier, telegramID int64, t Type, next time.Time) error
	AdvanceWheelTimer(ctx context.Context, q postgres.Querier, telegramID int64, next time.Time) error
	ListDueUsers(ctx context.Context, q postgres.Querier, limit int) ([]int64, error)
}

// balances — мутатор балансов (модуль ledger).
type balances interface {
	ChangeBalance(ctx context.Context, q postgres.Querier, telegramID int64, c ledger.Currency, amount decimal.Decimal, t ledger.TxType) (*ledger.ChangeResult, error)
	GetUser(ctx context.Context, q postgres.Querier, telegramID int64) (*ledger.User, error)
	GetUserForUpdate(ctx context.Context, q postgres.Querier, telegramID int64) (*ledger.User, error)
}

type txRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, q postgres.Querier) error) error
}

type publisher interface {
	PublishAsync(event string, telegramID int64, payload any)
}

// LaunchResult — итог запуска: начисления по валютам и снапшот пользователя.
type LaunchResult struct {
	Rewards map[ledger.Currency]decimal.Decimal
	User    *ledger.User
}

// Service управляет жизненным циклом ракет.
type Service struct {
	repo    store
	ledger  balances
	tx      txRunner
	events  publisher
	cfg     *config.Config
	rewards *rewardCurve
}

// NewService создаёт сервис ракет.
func NewService(repo store, ledgerSvc balances, tx txRunner, events publisher, cfg *config.Config) *Service {
	return &Service{
		repo:    repo,
		ledger:  ledgerSvc,
		tx:      tx,
		events:  events,
		cfg:     cfg,
		rewards: newRewardCurve(cfg),
	}
}

// AddFuel меняет уровень топлива ракеты на delta под блокировкой строки.
// Результат зажимается в [0, fuel_capacity]: переполнение не ошибка,
// бак просто остаётся полным. «Полный бак» — это delta = capacity.
func (s *Service) AddFuel(ctx context.Context, telegramID, rocketID int64, delta int) (*Rocket, error) {
	var rocket *Rocket
	err := s.tx.InTx(ctx, func(ctx context.Context, q postgres.Querier) error {
		var err error
		rocket, err = s.addFuel(ctx, q, telegramID, rocketID, delta)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rocket, nil
}

func (s *Service) addFuel(ctx context.Context, q postgres.Querier, telegramID, rocketID int64, delta int) (*Rocket, error) {
	rocket, err := s.repo.GetForUpdate(ctx, q, telegramID, rocketID)
	if err != nil {
		return nil, err
	}

	fuel := clamp(rocket.CurrentFuel+delta, 0, rocket.FuelCapacity)
	if err := s.repo.SetFuel(ctx, q, rocket.ID, fuel); err != nil {
		return nil, err
	}
	rocket.CurrentFuel = fuel
	return rocket, nil
}

// Launch запускает ракету: проверяет предусловия под блокировкой,
// сбрасывает бак, выключает ракету и начисляет награду через леджер.
// Премиум и супер платят всеми тремя валютами, остальные тиры — одной.
func (s *Service) Launch(ctx context.Context, telegramID, rocketID int64) (*LaunchResult, error) {
	var res *LaunchResult
	err := s.tx.InTx(ctx, func(ctx context.Context, q postgres.Querier) error {
		rocket, err := s.repo.GetForUpdate(ctx, q, telegramID, rocketID)
		if err != nil {
			return err
		}

		if !rocket.Fueled() {
			return common.ErrRocketNotFueled
		}
		if !rocket.Enabled {
			return common.ErrRocketDisabled
		}

		user, err := s.ledger.GetUser(ctx, q, telegramID)
		if err != nil {
			return err
		}

		res, err = s.payout(ctx, q, user, rocket.Type)
		if err != nil {
			return err
		}

		return s.repo.MarkLaunched(ctx, q, rocket.ID)
	})
	if err != nil {
		return nil, err
	}

	s.events.PublishAsync("rocket_launch", telegramID, res.Rewards)
	return res, nil
}

// payout начисляет награду за запуск, по одному вызову мутатора на валюту.
func (s *Service) payout(ctx context.Context, q postgres.Querier, user *ledger.User, tier Type) (*LaunchResult, error) {
	currencies := s.rewards.pickCurrencies(tier)

	res := &LaunchResult{Rewards: make(map[ledger.Currency]decimal.Decimal, len(currencies))}
	for _, c := range currencies {
		amount := s.rewards.balanceDiff(user, c, tier)
		change, err := s.ledger.ChangeBalance(ctx, q, user.TelegramID, c, amount, ledger.TxTypeRocketLaunch)
		if err != nil {
			return nil, err
		}
		res.Rewards[c] = amount
		res.User = change.User
	}
	return res, nil
}

// Enable включает ракету после запуска (явное действие пользователя).
func (s *Service) Enable(ctx context.Context, telegramID, rocketID int64) error {
	return s.tx.InTx(ctx, func(ctx context.Context, q postgres.Querier) error {
		rocket, err := s.repo.GetForUpdate(ctx, q, telegramID, rocketID)
		if err != nil {
			return err
		}
		return s.repo.SetEnabled(ctx, q, rocket.ID, true)
	})
}

// Grant создаёт пользователю ракету тира внутри скоупа q.
// Используется призами колеса, задачами и покупками.
func (s *Service) Grant(ctx context.Context, q postgres.Querier, telegramID int64, tier Type, fullTank bool) (*Rocket, error) {
	capacity := Capacity(s.cfg, tier)

	fuel := 0
	if fullTank {
		fuel = capacity
	}

	rocket := &Rocket{
		UserID:       telegramID,
		Type:         tier,
		FuelCapacity: capacity,
		CurrentFuel:  fuel,
		Enabled:      true,
		Seen:         true,
	}
	if err := s.repo.Create(ctx, q, rocket); err != nil {
		return nil, err
	}
	return rocket, nil
}

// GrantStarterSet выдаёт стартовый набор нового пользователя:
// премиум с полным баком, премиум пустой, оффлайн и две дефолтные.
func (s *Service) GrantStarterSet(ctx context.Context, q postgres.Querier, telegramID int64) error {
	starter := []struct {
		tier Type
		full bool
	}{
		{TypePremium, true},
		{TypePremium, false},
		{TypeOffline, false},
		{TypeDefault, false},
		{TypeDefault, false},
	}

	for _, sp := range starter {
		if _, err := s.Grant(ctx, q, telegramID, sp.tier, sp.full); err != nil {
			return err
		}
	}
	return nil
}

// RefillPremium заправляет премиум-ракету реферера за приглашённого.
// Флаг double (приглашённый с Telegram Premium) удваивает дельту,
// но бак всё равно зажат ёмкостью.
func (s *Service) RefillPremium(ctx context.Context, q postgres.Querier, telegramID int64, double bool) error {
	rocket, err := s.repo.GetByTypeForUpdate(ctx, q, telegramID, TypePremium)
	if err != nil {
		return err
	}

	delta := rocket.FuelCapacity
	if double {
		delta *= 2
	}

	fuel := clamp(rocket.CurrentFuel+delta, 0, rocket.FuelCapacity)
	return s.repo.SetFuel(ctx, q, rocket.ID, fuel)
}

// GrantDue выдаёт пользователю всё, что накопилось по таймерам:
// по одной ракете каждого истёкшего тира и билет колеса.
// Идемпотентна на тир: включённая ракета тира блокирует выдачу новой
// (таймер при этом не двигается — долг остаётся до запуска).
func (s *Service) GrantDue(ctx context.Context, telegramID int64) error {
	return s.tx.InTx(ctx, func(ctx context.Context, q postgres.Querier) error {
		user, err := s.ledger.GetUserForUpdate(ctx, q, telegramID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()

		for _, tier := range TimedTypes {
			if now.Before(s.timerFor(user, tier)) {
				continue
			}

			held, err := s.repo.HasEnabledOfType(ctx, q, telegramID, tier)
			if err != nil {
				return err
			}
			if held {
				continue
			}

			if _, err := s.Grant(ctx, q, telegramID, tier, false); err != nil {
				return err
			}
			if err := s.repo.AdvanceTimer(ctx, q, telegramID, tier, now.Add(Cooldown(s.cfg, tier))); err != nil {
				return err
			}

			log.WithFields(log.Fields{"user": telegramID, "tier": tier}).Debug("Ракета выдана по таймеру")
		}

		if !now.Before(user.NextWheelAt) {
			if _, err := s.ledger.ChangeBalance(ctx, q, telegramID, ledger.CurrencyWheel, decimal.NewFromInt(1), ledger.TxTypeRetentionGrant); err != nil {
				return err
			}
			if err := s.repo.AdvanceWheelTimer(ctx, q, telegramID, now.Add(s.cfg.WheelCooldown)); err != nil {
				return err
			}
		}

		return nil
	})
}

// DueUsers возвращает батч пользователей с истёкшими таймерами.
func (s *Service) DueUsers(ctx context.Context, q postgres.Querier) ([]int64, error) {
	return s.repo.ListDueUsers(ctx, q, s.cfg.RegenBatchSize)
}

func (s *Service) timerFor(u *ledger.User, tier Type) time.Time {
	switch tier {
	case TypeOffline:
		return u.NextOfflineRocketAt
	case TypePremium:
		return u.NextPremiumRocketAt
	default:
		return u.NextDefaultRocketAt
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
