// Package wheel — service.go реализует спин: допуск по билету,
// взвешенный розыгрыш, перерисовка у капа, скриптованные первые спины
// и атомарное применение приза.
package wheel

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"cryptorockets.net/backend/internal/config"
	"cryptorockets.net/backend/internal/db/postgres"
	"cryptorockets.net/backend/internal/features/ledger"
	"cryptorockets.net/backend/internal/features/rockets"
)

// Окно ленты «последние победители».
const recentWindow = 60 * time.Second

// store — история призов.
type store interface {
	InsertPrize(ctx context.Context, q postgres.Querier, e *HistoryEntry) error
	ListRecent(ctx context.Context, q postgres.Querier, window time.Duration) ([]HistoryEntry, error)
}

// balances — мутатор балансов и счётчик спинов (модуль ledger).
type balances interface {
	ChangeBalance(ctx context.Context, q postgres.Querier, telegramID int64, c ledger.Currency, amount decimal.Decimal, t ledger.TxType) (*ledger.ChangeResult, error)
	IncrementSpinCount(ctx context.Context, q postgres.Querier, telegramID int64) error
}

// rocketGranter выдаёт призовые ракеты (модуль rockets).
type rocketGranter interface {
	Grant(ctx context.Context, q postgres.Querier, telegramID int64, tier rockets.Type, fullTank bool) (*rockets.Rocket, error)
}

type txRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, q postgres.Querier) error) error
}

type publisher interface {
	PublishAsync(event string, telegramID int64, payload any)
}

// Service реализует колесо фортуны.
type Service struct {
	repo    store
	ledger  balances
	rockets rocketGranter
	tx      txRunner
	events  publisher
	cfg     *config.Config
	db      postgres.Querier
}

// NewService создаёт сервис колеса. db — пул для чтений вне транзакций.
func NewService(repo store, ledgerSvc balances, rocketSvc rocketGranter, tx txRunner, events publisher, cfg *config.Config, db postgres.Querier) *Service {
	return &Service{
		repo:    repo,
		ledger:  ledgerSvc,
		rockets: rocketSvc,
		tx:      tx,
		events:  events,
		cfg:     cfg,
		db:      db,
	}
}

// Spin крутит колесо за один билет.
//
// Допуск, розыгрыш, применение приза, история и инкремент счётчика
// идут одной транзакцией: либо билет списан и приз начислен, либо
// ничего. Нет билета — ErrInsufficientBalance ещё до розыгрыша.
func (s *Service) Spin(ctx context.Context, telegramID int64) (*SpinResult, error) {
	var res *SpinResult
	err := s.tx.InTx(ctx, func(ctx context.Context, q postgres.Querier) error {
		// Списание билета берёт блокировку строки пользователя,
		// дальше до коммита спин этого пользователя монопольный.
		change, err := s.ledger.ChangeBalance(ctx, q, telegramID, ledger.CurrencyWheel, decimal.NewFromInt(-1), ledger.TxTypeWheelSpin)
		if err != nil {
			return err
		}
		user := change.User

		prize := s.pickPrize(user)

		user, err = s.applyPrize(ctx, q, user, prize)
		if err != nil {
			return err
		}

		entry := &HistoryEntry{UserID: telegramID, Type: prize.Name, Icon: prize.Icon}
		if prize.Kind == KindCurrency {
			amount := prize.Amount
			entry.Amount = &amount
		}
		if err := s.repo.InsertPrize(ctx, q, entry); err != nil {
			return err
		}

		if err := s.ledger.IncrementSpinCount(ctx, q, telegramID); err != nil {
			return err
		}
		user.SpinCount++

		res = &SpinResult{Prize: prize, User: user}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"user": telegramID, "prize": res.Prize.Name}).Info("Спин колеса")
	s.events.PublishAsync("wheel_prize", telegramID, map[string]any{
		"prize": res.Prize.Name,
		"label": res.Prize.Label("en"),
	})
	return res, nil
}

// Балансовые валюты колеса: выпадение у капа перерисовывается
// против них обеих разом.
var cappedCurrencies = map[ledger.Currency]bool{
	ledger.CurrencyUSDT: true,
	ledger.CurrencyTON:  true,
}

// pickPrize выбирает слот. Первый и третий спины пользователя
// скриптованы (ton1 и usdt1), остальные разыгрываются по весам.
// Если выпала usdt/ton, а баланс этой валюты у капа, розыгрыш
// повторяется по таблице без всех usdt/ton слотов.
func (s *Service) pickPrize(user *ledger.User) Prize {
	if name, ok := scriptedSpin(user.SpinCount); ok {
		if p, found := prizeByName(name); found {
			return p
		}
	}

	prize := draw(Prizes, nil)
	if s.nearCap(user, prize) {
		prize = draw(Prizes, cappedCurrencies)
	}
	return prize
}

// scriptedSpin возвращает фиксированный приз онбординга.
// spins — число уже сделанных спинов.
func scriptedSpin(spins int) (string, bool) {
	switch spins {
	case 0:
		return "ton1", true
	case 2:
		return "usdt1", true
	}
	return "", false
}

// nearCap сообщает, что приз поднимает балансовую валюту, по которой
// пользователь ближе к капу, чем маржа анти-абьюза.
func (s *Service) nearCap(user *ledger.User, prize Prize) bool {
	if prize.Kind != KindCurrency || !cappedCurrencies[prize.Currency] {
		return false
	}

	threshold := decimal.NewFromFloat(s.cfg.MaxBalance - s.cfg.WheelCapMargin)
	return user.Balance(prize.Currency).GreaterThan(threshold)
}

// draw — взвешенный розыгрыш по кумулятивным весам. Слоты с нулевым
// весом и слоты исключённых валют недостижимы. Если исключение
// обнулило всю таблицу, падаем на токены (исключаются только usdt/ton).
func draw(prizes []Prize, excluded map[ledger.Currency]bool) Prize {
	total := 0
	for _, p := range prizes {
		if p.Kind == KindCurrency && excluded[p.Currency] {
			continue
		}
		total += p.Weight
	}
	if total == 0 {
		p, _ := prizeByName("token500")
		return p
	}

	roll := rand.Intn(total)
	for _, p := range prizes {
		if p.Kind == KindCurrency && excluded[p.Currency] {
			continue
		}
		if roll < p.Weight {
			return p
		}
		roll -= p.Weight
	}
	p, _ := prizeByName("token500")
	return p
}

// applyPrize начисляет приз внутри транзакции спина и возвращает
// снапшот пользователя уже с учётом начисления: вызывающий отдаёт
// его клиенту, повторного чтения не бывает.
func (s *Service) applyPrize(ctx context.Context, q postgres.Querier, user *ledger.User, prize Prize) (*ledger.User, error) {
	switch prize.Kind {
	case KindCurrency:
		change, err := s.ledger.ChangeBalance(ctx, q, user.TelegramID, prize.Currency, prize.Amount, ledger.TxTypeWheelSpin)
		if err != nil {
			return nil, err
		}
		return change.User, nil
	case KindRocket:
		// Призовая ракета выдаётся с пустым баком: топливо игрок
		// добывает сам. Балансы не трогаются.
		if _, err := s.rockets.Grant(ctx, q, user.TelegramID, prize.RocketTier, false); err != nil {
			return nil, err
		}
		return user, nil
	}
	return nil, fmt.Errorf("неизвестный вид приза %q", prize.Kind)
}

// LatestWinners возвращает ленту выигрышей за последнюю минуту.
func (s *Service) LatestWinners(ctx context.Context) ([]HistoryEntry, error) {
	return s.repo.ListRecent(ctx, s.db, recentWindow)
}
