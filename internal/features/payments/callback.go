// Package payments — callback.go нормализует колбэки провайдеров
// в Payment. Поддерживаются два источника: on-chain депозиты TON
// и Telegram Stars (SuccessfulPayment).
package payments

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	"github.com/shopspring/decimal"
	"github.com/xssnick/tonutils-go/tlb"

	"cryptorockets.net/backend/internal/common"
	"cryptorockets.net/backend/internal/features/ledger"
)

// TONCallback — тело колбэка обработчика on-chain депозитов.
// Amount — нано-TON строкой, Hash — хэш транзакции в сети.
type TONCallback struct {
	Payload string `json:"payload"`
	Amount  string `json:"amount"`
	Hash    string `json:"hash"`
}

// parsePayload разбирает "tgID;itemID[;extra]". Третье поле — количество
// для обычных товаров или id подарка для вывода; смысл решает диспетчер
// по варианту товара.
func parsePayload(payload string) (telegramID int64, itemID string, extra *int64, err error) {
	parts := strings.Split(payload, ";")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, "", nil, fmt.Errorf("%w: %q", common.ErrMalformedPayload, payload)
	}

	telegramID, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", nil, fmt.Errorf("%w: telegram id %q", common.ErrMalformedPayload, parts[0])
	}

	itemID = parts[1]
	if itemID == "" {
		return 0, "", nil, fmt.Errorf("%w: пустой item id", common.ErrMalformedPayload)
	}

	if len(parts) == 3 {
		v, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil || v <= 0 {
			return 0, "", nil, fmt.Errorf("%w: третье поле %q", common.ErrMalformedPayload, parts[2])
		}
		extra = &v
	}
	return telegramID, itemID, extra, nil
}

// ParseTONCallback нормализует on-chain депозит. Сумма приходит
// в нано-TON и конвертируется через tlb; хэш транзакции становится
// ключом идемпотентности.
func ParseTONCallback(cb TONCallback) (*Payment, error) {
	if cb.Hash == "" {
		return nil, fmt.Errorf("%w: пустой hash", common.ErrMalformedPayload)
	}

	telegramID, itemID, extra, err := parsePayload(cb.Payload)
	if err != nil {
		return nil, err
	}

	coins, err := tlb.FromNanoTONStr(cb.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: сумма %q", common.ErrMalformedPayload, cb.Amount)
	}
	amount, err := decimal.NewFromString(coins.String())
	if err != nil {
		return nil, fmt.Errorf("%w: сумма %q", common.ErrMalformedPayload, cb.Amount)
	}

	raw, _ := json.Marshal(cb)
	return &Payment{
		ExternalID: cb.Hash,
		TelegramID: telegramID,
		Currency:   ledger.CurrencyTON,
		Amount:     amount,
		ItemID:     itemID,
		Extra:      extra,
		Raw:        raw,
	}, nil
}

// ParseStarsPayment нормализует SuccessfulPayment от Telegram.
// Ключ идемпотентности — provider_payment_charge_id.
func ParseStarsPayment(sp *telego.SuccessfulPayment) (*Payment, error) {
	if sp == nil || sp.ProviderPaymentChargeID == "" {
		return nil, fmt.Errorf("%w: пустой charge id", common.ErrMalformedPayload)
	}

	telegramID, itemID, extra, err := parsePayload(sp.InvoicePayload)
	if err != nil {
		return nil, err
	}

	raw, _ := json.Marshal(sp)
	return &Payment{
		ExternalID: sp.ProviderPaymentChargeID,
		TelegramID: telegramID,
		Currency:   ledger.CurrencyXTR,
		Amount:     decimal.NewFromInt(int64(sp.TotalAmount)),
		ItemID:     itemID,
		Extra:      extra,
		Raw:        raw,
	}, nil
}
