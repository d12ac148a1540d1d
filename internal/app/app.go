// Package app инициализирует все компоненты движка экономики.
// app.go — точка сборки: создаёт БД-пул, Redis, алерты, репозитории,
// сервисы и планировщик, собирает всё в один объект App.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"cryptorockets.net/backend/internal/alerts"
	"cryptorockets.net/backend/internal/config"
	"cryptorockets.net/backend/internal/db/postgres"
	"cryptorockets.net/backend/internal/features/ledger"
	"cryptorockets.net/backend/internal/features/payments"
	"cryptorockets.net/backend/internal/features/rockets"
	"cryptorockets.net/backend/internal/features/wheel"
	"cryptorockets.net/backend/internal/jobs"
	"cryptorockets.net/backend/internal/pubsub"
)

// App содержит все компоненты движка.
type App struct {
	Ledger   *ledger.Service
	Rockets  *rockets.Service
	Wheel    *wheel.Service
	Payments *payments.Service

	Scheduler *jobs.Scheduler
	DB        *pgxpool.Pool
	Events    *pubsub.Publisher
	Alerts    *alerts.Notifier
}

// New создаёт и инициализирует движок.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	if err := postgres.RunMigrations(cfg); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	txManager := postgres.NewTxManager(pool, cfg.DBTxTimeout)

	// === 2. Внешние каналы ===
	events, err := pubsub.New(ctx, cfg)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка подключения к Redis: %w", err)
	}
	notifier := alerts.New(cfg)

	// === 3. Репозитории ===
	ledgerRepo := ledger.NewRepository(cfg)
	rocketRepo := rockets.NewRepository()
	wheelRepo := wheel.NewRepository()
	paymentRepo := payments.NewRepository()

	// === 4. Сервисы ===
	ledgerService := ledger.NewService(ledgerRepo, txManager, events)
	rocketService := rockets.NewService(rocketRepo, ledgerService, txManager, events, cfg)
	wheelService := wheel.NewService(wheelRepo, ledgerService, rocketService, txManager, events, cfg, pool)
	paymentService := payments.NewService(
		paymentRepo, ledgerService, rocketService,
		txManager, notifier, events, payments.DefaultCatalog(), cfg,
	)

	// === 5. Планировщик регенерации ===
	scheduler := jobs.New(rocketService, pool)

	return &App{
		Ledger:    ledgerService,
		Rockets:   rocketService,
		Wheel:     wheelService,
		Payments:  paymentService,
		Scheduler: scheduler,
		DB:        pool,
		Events:    events,
		Alerts:    notifier,
	}, nil
}

// Close освобождает внешние соединения.
func (a *App) Close() {
	a.Events.Close()
	a.DB.Close()
}
