// Package postgres — tx.go реализует транзакционный скоуп движка.
// Все мутации балансов и ресурсов выполняются внутри InTx: одна транзакция,
// блокировки строк до коммита, ограниченный таймаут.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"cryptorockets.net/backend/internal/common"
)

// Коды ошибок PostgreSQL, которые движок различает.
const (
	codeUniqueViolation      = "23505"
	codeLockNotAvailable     = "55P03"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// TxManager выдаёт транзакционные скоупы поверх пула.
type TxManager struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewTxManager создаёт менеджер транзакций с ограничением времени на транзакцию.
func NewTxManager(pool *pgxpool.Pool, timeout time.Duration) *TxManager {
	return &TxManager{pool: pool, timeout: timeout}
}

// InTx выполняет fn внутри одной транзакции с таймаутом.
//
// Коммит выполняется на контексте без отмены: если вызывающий отменил запрос,
// когда коммит уже начался, транзакция всё равно завершается целиком —
// частичного коммита не бывает, вызывающий перечитывает состояние.
func (m *TxManager) InTx(ctx context.Context, fn func(ctx context.Context, q Querier) error) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", MapError(err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // после коммита откат — no-op

	if err := fn(ctx, tx); err != nil {
		return err
	}

	commitCtx, commitCancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer commitCancel()

	if err := tx.Commit(commitCtx); err != nil {
		return fmt.Errorf("ошибка коммита: %w", MapError(err))
	}
	return nil
}

// MapError переводит низкоуровневые ошибки pgx в таксономию движка.
// Таймауты блокировок, дедлоки и сериализационные сбои — StorageConflict:
// внешний слой может повторить запрос, данные не повреждены.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", common.ErrStorageConflict, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeLockNotAvailable, codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %s", common.ErrStorageConflict, pgErr.Message)
		}
	}
	return err
}

// IsUniqueViolation сообщает, нарушает ли ошибка уникальный индекс.
// Для приёма платежей это сигнал идемпотентности, а не сбой.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

// IsNoRows сообщает, что запрос не нашёл строку.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
