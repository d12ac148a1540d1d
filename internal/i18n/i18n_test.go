package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestT(t *testing.T) {
	assert.Equal(t, "Premium rocket", T("prize.premium_rocket", "en"))
	assert.Equal(t, "Премиум-ракета", T("prize.premium_rocket", "ru"))

	// Неизвестный язык падает на английский.
	assert.Equal(t, "Premium rocket", T("prize.premium_rocket", "de"))

	// Неизвестный ключ возвращается как есть.
	assert.Equal(t, "prize.unknown", T("prize.unknown", "en"))
}
