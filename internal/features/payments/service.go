// Package payments — service.go реализует приём платежей.
// Идемпотентность держится на порядке: инвойс с уникальным external_id
// вставляется ПЕРВЫМ действием транзакции, поэтому повторная доставка
// колбэка обрывается ещё до каких-либо эффектов.
package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/mymmrac/telego"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"cryptorockets.net/backend/internal/common"
	"cryptorockets.net/backend/internal/config"
	"cryptorockets.net/backend/internal/db/postgres"
	"cryptorockets.net/backend/internal/features/ledger"
	"cryptorockets.net/backend/internal/features/rockets"
)

// Статусы подарков.
const (
	giftStatusCreated = "created"
	giftStatusPaid    = "paid"
)

// store — нужные сервису методы репозитория платежей.
type store interface {
	InsertInvoice(ctx context.Context, q postgres.Querier, inv *Invoice) error
	FinalizeInvoice(ctx context.Context, q postgres.Querier, invoiceID int64, status InvoiceStatus, transactionID, rocketID *int64) error
	UpsertConsumable(ctx context.Context, q postgres.Querier, telegramID int64, name string, delta int) error
	GiftStatusForUpdate(ctx context.Context, q postgres.Querier, telegramID, giftID int64) (string, error)
	SetGiftStatus(ctx context.Context, q postgres.Querier, giftID int64, status string) error
}

// balances — мутатор балансов (модуль ledger).
type balances interface {
	ChangeBalance(ctx context.Context, q postgres.Querier, telegramID int64, c ledger.Currency, amount decimal.Decimal, t ledger.TxType) (*ledger.ChangeResult, error)
	GetUserForUpdate(ctx context.Context, q postgres.Querier, telegramID int64) (*ledger.User, error)
}

// rocketGranter выдаёт купленные ракеты (модуль rockets).
type rocketGranter interface {
	Grant(ctx context.Context, q postgres.Querier, telegramID int64, tier rockets.Type, fullTank bool) (*rockets.Rocket, error)
}

type txRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, q postgres.Querier) error) error
}

type notifier interface {
	Async(msg string)
}

type publisher interface {
	PublishAsync(event string, telegramID int64, payload any)
}

// Service принимает платежи TON и Telegram Stars.
type Service struct {
	repo    store
	ledger  balances
	rockets rocketGranter
	tx      txRunner
	alerts  notifier
	events  publisher
	catalog Catalog
	cfg     *config.Config
}

// NewService создаёт сервис платежей.
func NewService(repo store, ledgerSvc balances, rocketSvc rocketGranter, tx txRunner, alerts notifier, events publisher, catalog Catalog, cfg *config.Config) *Service {
	return &Service{
		repo:    repo,
		ledger:  ledgerSvc,
		rockets: rocketSvc,
		tx:      tx,
		alerts:  alerts,
		events:  events,
		catalog: catalog,
		cfg:     cfg,
	}
}

// HandleTONDeposit обрабатывает колбэк on-chain депозита.
// Провайдеру достаточно nil: и успех, и повторная доставка — ack.
func (s *Service) HandleTONDeposit(ctx context.Context, cb TONCallback) error {
	p, err := ParseTONCallback(cb)
	if err != nil {
		s.alerts.Async(fmt.Sprintf("⚠️ Некорректный TON-колбэк: %v", err))
		return err
	}
	return s.acknowledge(s.ApplyPayment(ctx, p))
}

// HandleStarsPayment обрабатывает SuccessfulPayment от Telegram Stars.
func (s *Service) HandleStarsPayment(ctx context.Context, sp *telego.SuccessfulPayment) error {
	p, err := ParseStarsPayment(sp)
	if err != nil {
		s.alerts.Async(fmt.Sprintf("⚠️ Некорректный Stars-платёж: %v", err))
		return err
	}
	return s.acknowledge(s.ApplyPayment(ctx, p))
}

// acknowledge гасит ErrDuplicatePayment: эффекты уже применены первой
// доставкой, провайдер должен получить ack, а не ошибку.
func (s *Service) acknowledge(err error) error {
	if errors.Is(err, common.ErrDuplicatePayment) {
		log.WithError(err).Info("Повторная доставка платёжного колбэка")
		return nil
	}
	return err
}

// ApplyPayment применяет нормализованный платёж ровно один раз.
//
// Одна транзакция: вставка инвойса (ключ идемпотентности), проверка
// цены, эффекты товара, финализация. Любая ошибка откатывает всё,
// включая инвойс. Алерт и pubsub уходят после коммита.
func (s *Service) ApplyPayment(ctx context.Context, p *Payment) error {
	item, ok := s.catalog[p.ItemID]
	if !ok {
		s.alerts.Async(fmt.Sprintf("⚠️ Платёж %s: неизвестный товар %q", p.ExternalID, p.ItemID))
		return fmt.Errorf("%w: %q", common.ErrUnknownItem, p.ItemID)
	}

	var invoice *Invoice
	err := s.tx.InTx(ctx, func(ctx context.Context, q postgres.Querier) error {
		var err error
		invoice, err = s.applyPayment(ctx, q, p, item)
		return err
	})
	_ = invoice

	switch {
	case err == nil:
		log.WithFields(log.Fields{
			"user": p.TelegramID, "item": p.ItemID, "external_id": p.ExternalID,
		}).Info("Платёж применён")
		s.alerts.Async(fmt.Sprintf("💰 Платёж: пользователь %d купил %s за %s %s",
			p.TelegramID, p.ItemID, p.Amount, p.Currency))
		s.events.PublishAsync("payment_success", p.TelegramID, map[string]any{"item": p.ItemID})
		return nil

	case errors.Is(err, common.ErrDuplicatePayment):
		return err

	case errors.Is(err, common.ErrPaymentMismatch),
		errors.Is(err, common.ErrGiftUnavailable),
		errors.Is(err, common.ErrUserNotFound):
		log.WithError(err).WithField("external_id", p.ExternalID).Warn("Платёж отклонён")
		s.alerts.Async(fmt.Sprintf("⚠️ Платёж %s отклонён: %v", p.ExternalID, err))
		return err

	default:
		log.WithError(err).WithField("external_id", p.ExternalID).Error("Ошибка применения платежа")
		s.alerts.Async(fmt.Sprintf("🚨 Ошибка применения платежа %s: %v", p.ExternalID, err))
		return err
	}
}

func (s *Service) applyPayment(ctx context.Context, q postgres.Querier, p *Payment, item Item) (*Invoice, error) {
	invoice := &Invoice{
		UserID:         p.TelegramID,
		ExternalID:     p.ExternalID,
		Status:         InvoiceStatusCreated,
		Currency:       p.Currency,
		CurrencyAmount: p.Amount,
		USDAmount:      s.usdAmount(p),
		CallbackData:   p.Raw,
	}
	if err := s.repo.InsertInvoice(ctx, q, invoice); err != nil {
		return nil, err
	}

	qty := 1
	var giftID *int64
	if _, isGift := item.(GiftWithdrawalItem); isGift {
		if p.Extra == nil {
			return nil, fmt.Errorf("%w: нет id подарка", common.ErrMalformedPayload)
		}
		giftID = p.Extra
	} else if p.Extra != nil {
		qty = int(*p.Extra)
	}

	if err := s.checkPrice(p, item, qty); err != nil {
		return nil, err
	}

	transactionID, rocketID, err := s.dispatch(ctx, q, p, item, qty, giftID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.FinalizeInvoice(ctx, q, invoice.ID, InvoiceStatusSuccess, transactionID, rocketID); err != nil {
		return nil, err
	}
	invoice.Status = InvoiceStatusSuccess
	invoice.TransactionID = transactionID
	invoice.RocketID = rocketID
	return invoice, nil
}

// checkPrice требует оплату не ниже каталожной цены за количество.
func (s *Service) checkPrice(p *Payment, item Item, qty int) error {
	price := item.Price()

	var expected decimal.Decimal
	switch p.Currency {
	case ledger.CurrencyTON:
		expected = price.TON.Mul(decimal.NewFromInt(int64(qty)))
	case ledger.CurrencyXTR:
		expected = decimal.NewFromInt(price.Stars * int64(qty))
	default:
		return fmt.Errorf("%w: платёжная валюта %q", common.ErrPaymentMismatch, p.Currency)
	}

	if p.Amount.LessThan(expected) {
		return fmt.Errorf("%w: оплачено %s, цена %s %s",
			common.ErrPaymentMismatch, p.Amount, expected, p.Currency)
	}
	return nil
}

// dispatch применяет эффекты товара по варианту.
func (s *Service) dispatch(ctx context.Context, q postgres.Querier, p *Payment, item Item, qty int, giftID *int64) (transactionID, rocketID *int64, err error) {
	switch it := item.(type) {
	case CurrencyItem:
		amount := it.Amount.Mul(decimal.NewFromInt(int64(qty)))
		change, err := s.ledger.ChangeBalance(ctx, q, p.TelegramID, it.Currency, amount, ledger.TxTypePurchase)
		if err != nil {
			return nil, nil, err
		}
		return &change.Transaction.ID, nil, nil

	case RocketItem:
		var lastID int64
		for i := 0; i < qty; i++ {
			rocket, err := s.rockets.Grant(ctx, q, p.TelegramID, it.Tier, true)
			if err != nil {
				return nil, nil, err
			}
			lastID = rocket.ID
		}
		return nil, &lastID, nil

	case ConsumableItem:
		// Блокировка строки пользователя сериализует конкурирующие покупки.
		if _, err := s.ledger.GetUserForUpdate(ctx, q, p.TelegramID); err != nil {
			return nil, nil, err
		}
		if err := s.repo.UpsertConsumable(ctx, q, p.TelegramID, it.Name, it.Count*qty); err != nil {
			return nil, nil, err
		}
		return nil, nil, nil

	case GiftWithdrawalItem:
		status, err := s.repo.GiftStatusForUpdate(ctx, q, p.TelegramID, *giftID)
		if err != nil {
			return nil, nil, err
		}
		if status != giftStatusCreated {
			return nil, nil, fmt.Errorf("%w: статус %q", common.ErrGiftUnavailable, status)
		}
		return nil, nil, s.repo.SetGiftStatus(ctx, q, *giftID, giftStatusPaid)

	default:
		return nil, nil, fmt.Errorf("%w: %q", common.ErrUnknownItem, item.ItemID())
	}
}

// usdAmount считает долларовый эквивалент платежа по курсам конфига.
func (s *Service) usdAmount(p *Payment) decimal.Decimal {
	switch p.Currency {
	case ledger.CurrencyTON:
		return p.Amount.Mul(decimal.NewFromFloat(s.cfg.TONPriceUSD)).Round(5)
	case ledger.CurrencyXTR:
		return p.Amount.Mul(decimal.NewFromFloat(s.cfg.StarPriceUSD)).Round(5)
	}
	return decimal.Zero
}
