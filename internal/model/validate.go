package model

import (
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var amountPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]{2})?$`)

// ErrInvalidAmount is returned when a PaymentRequest's amount fails the
// spec's `^[0-9]+(\.[0-9]{2})?$` validation or is not positive.
var ErrInvalidAmount = errors.New("amount must match ^[0-9]+(\\.[0-9]{2})?$ and be positive")

// ErrInvalidCurrency is returned when a currency code is not three letters.
var ErrInvalidCurrency = errors.New("currency must be a 3-letter ISO-4217 code")

// ParseAmount validates and parses a decimal amount string per spec §3/§4.1.
func ParseAmount(raw string) (decimal.Decimal, error) {
	if !amountPattern.MatchString(raw) {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	return amount.Round(2), nil
}

// NormalizeCurrency validates a currency code, defaulting to USD when empty,
// per spec §4.1 ("currency (3 letters, default USD)").
func NormalizeCurrency(raw string) (string, error) {
	if raw == "" {
		return "USD", nil
	}
	upper := strings.ToUpper(raw)
	if len(upper) != 3 {
		return "", ErrInvalidCurrency
	}
	for _, r := range upper {
		if r < 'A' || r > 'Z' {
			return "", ErrInvalidCurrency
		}
	}
	return upper, nil
}
