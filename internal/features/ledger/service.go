// Package ledger — service.go содержит мутатор балансов.
// Единственный легальный путь изменения любой балансовой колонки:
// блокировка строки, проверка неотрицательности, запись баланса
// и журнальной записи в одном атомарном скоупе.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"cryptorockets.net/backend/internal/common"
	"cryptorockets.net/backend/internal/db/postgres"
)

// store — нужные сервису методы репозитория.
type store interface {
	GetUser(ctx context.Context, q postgres.Querier, telegramID int64) (*User, error)
	GetUserForUpdate(ctx context.Context, q postgres.Querier, telegramID int64) (*User, error)
	UpdateBalance(ctx context.Context, q postgres.Querier, telegramID int64, c Currency, newBalance any) error
	InsertTransaction(ctx context.Context, q postgres.Querier, t *Transaction) error
	AttachRefund(ctx context.Context, q postgres.Querier, txID, refundID int64) error
	IncrementSpinCount(ctx context.Context, q postgres.Querier, telegramID int64) error
	CreateUser(ctx context.Context, q postgres.Querier, telegramID int64, referralFrom *int64) (*User, error)
}

// txRunner — транзакционный скоуп движка.
type txRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, q postgres.Querier) error) error
}

// publisher — pub/sub для live-обновлений клиентов. Вызывается
// только после коммита и только fire-and-forget.
type publisher interface {
	PublishAsync(event string, telegramID int64, payload any)
}

// StarterGranter выдаёт новому пользователю стартовый набор ракет
// и заправляет премиум-ракету реферера. Реализуется модулем rockets.
type StarterGranter interface {
	GrantStarterSet(ctx context.Context, q postgres.Querier, telegramID int64) error
	RefillPremium(ctx context.Context, q postgres.Querier, telegramID int64, double bool) error
}

// Service — мутатор балансов.
type Service struct {
	repo   store
	tx     txRunner
	events publisher
}

// NewService создаёт сервис леджера.
func NewService(repo store, tx txRunner, events publisher) *Service {
	return &Service{repo: repo, tx: tx, events: events}
}

// ChangeBalance изменяет баланс пользователя внутри скоупа q.
//
// Берёт эксклюзивную блокировку строки пользователя, считает
// balance_after = balance_before + amount и отклоняет операцию с
// ErrInsufficientBalance, если результат отрицательный — без частичной записи.
// Баланс и журнальная запись пишутся в одной транзакции: откат общий.
func (s *Service) ChangeBalance(
	ctx context.Context,
	q postgres.Querier,
	telegramID int64,
	currency Currency,
	amount decimal.Decimal,
	txType TxType,
) (*ChangeResult, error) {
	if !currency.HasBalance() {
		return nil, common.ErrUnknownCurrency
	}

	user, err := s.repo.GetUserForUpdate(ctx, q, telegramID)
	if err != nil {
		return nil, err
	}

	before := user.Balance(currency)
	after := before.Add(amount)

	if after.IsNegative() {
		return nil, fmt.Errorf("%w: %s %s, требуется %s",
			common.ErrInsufficientBalance, before, currency, amount.Neg())
	}

	if err := s.repo.UpdateBalance(ctx, q, telegramID, currency, after); err != nil {
		return nil, err
	}

	tx := &Transaction{
		UserID:        telegramID,
		Currency:      currency,
		BalanceBefore: before,
		BalanceAfter:  after,
		Amount:        amount,
		Type:          txType,
		Status:        TxStatusSuccess,
	}
	if err := s.repo.InsertTransaction(ctx, q, tx); err != nil {
		return nil, err
	}

	user.setBalance(currency, after)

	log.WithFields(log.Fields{
		"user":     telegramID,
		"currency": currency,
		"amount":   amount,
		"after":    after,
	}).Debug("Баланс обновлён")

	return &ChangeResult{User: user, Transaction: tx}, nil
}

// Change — внешняя операция changeBalance: собственный транзакционный
// скоуп плюс live-уведомление после коммита.
func (s *Service) Change(
	ctx context.Context,
	telegramID int64,
	currency Currency,
	amount decimal.Decimal,
	txType TxType,
) (*ChangeResult, error) {
	var res *ChangeResult
	err := s.tx.InTx(ctx, func(ctx context.Context, q postgres.Querier) error {
		var err error
		res, err = s.ChangeBalance(ctx, q, telegramID, currency, amount, txType)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.events.PublishAsync("balance_update", telegramID, map[string]any{
		"currency": currency,
		"balance":  res.Transaction.BalanceAfter,
		"amount":   amount,
	})
	return res, nil
}

// AttachRefund привязывает транзакцию-возврат к исходной записи журнала.
func (s *Service) AttachRefund(ctx context.Context, q postgres.Querier, txID, refundID int64) error {
	return s.repo.AttachRefund(ctx, q, txID, refundID)
}

// IncrementSpinCount увеличивает счётчик спинов колеса на единицу.
func (s *Service) IncrementSpinCount(ctx context.Context, q postgres.Querier, telegramID int64) error {
	return s.repo.IncrementSpinCount(ctx, q, telegramID)
}

// GetUser возвращает снапшот пользователя без блокировки.
func (s *Service) GetUser(ctx context.Context, q postgres.Querier, telegramID int64) (*User, error) {
	return s.repo.GetUser(ctx, q, telegramID)
}

// GetUserForUpdate возвращает пользователя под эксклюзивной блокировкой строки.
func (s *Service) GetUserForUpdate(ctx context.Context, q postgres.Querier, telegramID int64) (*User, error) {
	return s.repo.GetUserForUpdate(ctx, q, telegramID)
}

// Register создаёт пользователя со стартовым набором: билеты колеса,
// пять ракет, сдвинутые таймеры. Рефереру заправляется премиум-ракета
// (вдвое, если приглашённый — Telegram Premium).
func (s *Service) Register(
	ctx context.Context,
	telegramID int64,
	referralFrom *int64,
	isPremium bool,
	rockets StarterGranter,
) (*User, error) {
	var user *User
	err := s.tx.InTx(ctx, func(ctx context.Context, q postgres.Querier) error {
		var err error
		user, err = s.repo.CreateUser(ctx, q, telegramID, referralFrom)
		if err != nil {
			return err
		}

		if err := rockets.GrantStarterSet(ctx, q, telegramID); err != nil {
			return err
		}

		if referralFrom != nil {
			err := rockets.RefillPremium(ctx, q, *referralFrom, isPremium)
			switch {
			case errors.Is(err, common.ErrRocketNotFound):
				// У реферера нет премиум-ракеты — бонус сгорает,
				// регистрацию приглашённого это не ломает.
				log.WithField("referral", *referralFrom).Debug("Реферер без премиум-ракеты")
			case err != nil:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}
