// Package jobs — фоновые задачи движка по расписанию.
// Единственная задача: регенерация ракет и билетов по таймерам.
package jobs

import (
	"context"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"cryptorockets.net/backend/internal/db/postgres"
)

// regenerator — нужные планировщику операции модуля rockets.
type regenerator interface {
	DueUsers(ctx context.Context, q postgres.Querier) ([]int64, error)
	GrantDue(ctx context.Context, telegramID int64) error
}

// Scheduler запускает регенерацию раз в минуту.
type Scheduler struct {
	cron    *cron.Cron
	rockets regenerator
	db      postgres.Querier
}

// New создаёт планировщик. db — пул для выборки должников вне транзакций.
func New(rockets regenerator, db postgres.Querier) *Scheduler {
	return &Scheduler{cron: cron.New(), rockets: rockets, db: db}
}

// Start регистрирует задачи и запускает планировщик.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("* * * * *", s.regenTick); err != nil {
		return err
	}

	s.cron.Start()
	log.Info("Планировщик регенерации запущен")
	return nil
}

// Stop останавливает планировщик и дожидается завершения текущего тика.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик остановлен")
}

// regenTick обрабатывает батч пользователей с истёкшими таймерами.
// Ошибка по одному пользователю не роняет тик: остальные получают своё.
func (s *Scheduler) regenTick() {
	ctx := context.Background()

	users, err := s.rockets.DueUsers(ctx, s.db)
	if err != nil {
		log.WithError(err).Error("Регенерация: ошибка выборки пользователей")
		return
	}
	if len(users) == 0 {
		return
	}

	var failed int
	for _, telegramID := range users {
		if err := s.rockets.GrantDue(ctx, telegramID); err != nil {
			failed++
			log.WithError(err).WithField("user", telegramID).Warn("Регенерация пользователя не удалась")
		}
	}

	log.WithFields(log.Fields{"users": len(users), "failed": failed}).Info("Тик регенерации завершён")
}
