package money

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
	ErrPriceTooLarge   = errors.New("price exceeds the supported maximum")
	ErrCreditOverflow  = errors.New("credit reservation out of range")
)

// MaxPrice is the exclusive upper bound for a price: the largest value a
// NUMERIC(14,2) column holds is just below it.
var MaxPrice = decimal.New(1, 12)

var maxCredits = decimal.NewFromInt(math.MaxInt64)

// MinimumCharge is reserved for any nonzero negotiation, however cheap.
const MinimumCharge int64 = 1

// ParsePrice accepts a positive decimal with at most two fractional digits.
func ParsePrice(input string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	price, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if err := CheckPrice(price); err != nil {
		return decimal.Zero, err
	}
	return price.Truncate(2), nil
}

// CheckPrice reports whether price is positive, below MaxPrice and has at
// most two fractional digits.
func CheckPrice(price decimal.Decimal) error {
	switch {
	case !price.IsPositive():
		return ErrInvalidAmount
	case price.GreaterThanOrEqual(MaxPrice):
		return ErrPriceTooLarge
	case !price.Equal(price.Truncate(2)):
		return ErrTooManyDecimals
	}
	return nil
}

// RequiredCredits converts a negotiated price into the credit reservation
// backing it: max(1, ceil(price / unitValue)). Non-positive prices need no
// reservation. A quotient beyond int64 fails with ErrCreditOverflow.
func RequiredCredits(price, unitValue decimal.Decimal) (int64, error) {
	if !price.IsPositive() {
		return 0, nil
	}
	if !unitValue.IsPositive() {
		unitValue = decimal.NewFromInt(1)
	}
	quotient := price.Div(unitValue).Ceil()
	if quotient.GreaterThan(maxCredits) {
		return 0, ErrCreditOverflow
	}
	credits := quotient.IntPart()
	if credits < MinimumCharge {
		return MinimumCharge, nil
	}
	return credits, nil
}

// ParseCredits parses a whole, positive number of credits.
func ParseCredits(input string) (int64, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" || !isDigits(trimmed) {
		return 0, ErrInvalidAmount
	}
	value, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || value <= 0 {
		return 0, ErrInvalidAmount
	}
	return value, nil
}

func FormatPrice(price decimal.Decimal) string {
	return price.StringFixed(2)
}

func FormatCredits(value int64) string {
	return strconv.FormatInt(value, 10)
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
