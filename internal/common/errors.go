// Package common — errors.go определяет ошибки движка экономики,
// общие для всех модулей. Внешний слой по ним решает,
// что вернуть клиенту: ошибку клиента, тихий no-op или retryable 500.
package common

import "errors"

// Ошибки баланса
var (
	// ErrInsufficientBalance — баланс ушёл бы в минус, операция отклонена
	ErrInsufficientBalance = errors.New("недостаточно средств на балансе")
	// ErrUserNotFound — пользователь не найден в базе
	ErrUserNotFound = errors.New("пользователь не найден")
	// ErrUnknownCurrency — валюта без балансовой колонки (например xtr)
	ErrUnknownCurrency = errors.New("неизвестная валюта баланса")
)

// Ошибки приёма платежей
var (
	// ErrDuplicatePayment — повторная доставка колбэка с тем же external_id.
	// Не ошибка для провайдера: эффекты уже применены, вторая доставка — no-op.
	ErrDuplicatePayment = errors.New("платёж уже обработан")
	// ErrPaymentMismatch — оплачено меньше каталожной цены, эффекты не применяются
	ErrPaymentMismatch = errors.New("сумма платежа меньше цены товара")
	// ErrUnknownItem — в колбэке указан несуществующий товар каталога
	ErrUnknownItem = errors.New("товар каталога не найден")
	// ErrMalformedPayload — payload колбэка не разбирается
	ErrMalformedPayload = errors.New("некорректный payload платёжного колбэка")
	// ErrGiftUnavailable — подарок не найден или уже выкуплен
	ErrGiftUnavailable = errors.New("подарок недоступен для выкупа")
)

// Ошибки ракет
var (
	// ErrRocketNotFound — ракета не существует или принадлежит другому пользователю
	ErrRocketNotFound = errors.New("ракета не найдена")
	// ErrRocketNotFueled — бак не полон, запуск невозможен
	ErrRocketNotFueled = errors.New("ракета не заправлена до конца")
	// ErrRocketDisabled — ракета выключена (после запуска) и не может стартовать
	ErrRocketDisabled = errors.New("ракета выключена")
)

// Ошибки хранилища
var (
	// ErrStorageConflict — таймаут блокировки или конфликт, не совпавший
	// с ключом идемпотентности. Внешний слой решает, повторять ли запрос.
	ErrStorageConflict = errors.New("конфликт доступа к хранилищу")
)
