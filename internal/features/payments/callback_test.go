package payments

import (
	"testing"

	"github.com/mymmrac/telego"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptorockets.net/backend/internal/common"
	"cryptorockets.net/backend/internal/features/ledger"
)

func TestParsePayload(t *testing.T) {
	telegramID, itemID, extra, err := parsePayload("42;wheel_10")
	require.NoError(t, err)
	assert.EqualValues(t, 42, telegramID)
	assert.Equal(t, "wheel_10", itemID)
	assert.Nil(t, extra)

	telegramID, itemID, extra, err = parsePayload("42;fuel_1;5")
	require.NoError(t, err)
	assert.EqualValues(t, 42, telegramID)
	assert.Equal(t, "fuel_1", itemID)
	require.NotNil(t, extra)
	assert.EqualValues(t, 5, *extra)
}

func TestParsePayloadMalformed(t *testing.T) {
	cases := []string{
		"",
		"42",
		"abc;item",
		"42;",
		"42;item;0",
		"42;item;-1",
		"42;item;xyz",
		"42;item;1;extra",
	}
	for _, payload := range cases {
		_, _, _, err := parsePayload(payload)
		assert.ErrorIs(t, err, common.ErrMalformedPayload, "payload %q", payload)
	}
}

func TestParseTONCallback(t *testing.T) {
	p, err := ParseTONCallback(TONCallback{
		Payload: "42;rocket_premium",
		Amount:  "1500000000",
		Hash:    "abc123",
	})
	require.NoError(t, err)

	assert.Equal(t, "abc123", p.ExternalID)
	assert.EqualValues(t, 42, p.TelegramID)
	assert.Equal(t, ledger.CurrencyTON, p.Currency)
	assert.True(t, p.Amount.Equal(decimal.RequireFromString("1.5")), "нано-TON → TON: %s", p.Amount)
	assert.Equal(t, "rocket_premium", p.ItemID)
	assert.NotEmpty(t, p.Raw)
}

func TestParseTONCallbackRejectsGarbage(t *testing.T) {
	_, err := ParseTONCallback(TONCallback{Payload: "42;item", Amount: "1", Hash: ""})
	assert.ErrorIs(t, err, common.ErrMalformedPayload)

	_, err = ParseTONCallback(TONCallback{Payload: "42;item", Amount: "не-число", Hash: "h"})
	assert.ErrorIs(t, err, common.ErrMalformedPayload)
}

func TestParseStarsPayment(t *testing.T) {
	p, err := ParseStarsPayment(&telego.SuccessfulPayment{
		Currency:                "XTR",
		TotalAmount:             250,
		InvoicePayload:          "42;rocket_premium",
		ProviderPaymentChargeID: "charge-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "charge-1", p.ExternalID)
	assert.Equal(t, ledger.CurrencyXTR, p.Currency)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(250)))
}

func TestParseStarsPaymentWithoutChargeID(t *testing.T) {
	_, err := ParseStarsPayment(&telego.SuccessfulPayment{InvoicePayload: "42;item"})
	assert.ErrorIs(t, err, common.ErrMalformedPayload)

	_, err = ParseStarsPayment(nil)
	assert.ErrorIs(t, err, common.ErrMalformedPayload)
}
