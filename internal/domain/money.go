package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the scale of every stored amount (NUMERIC(12,2)).
const MoneyPlaces = 2

// CheckMoney rejects amounts with more precision than a cent. Trailing zeros
// are fine: 1.500 is accepted, 1.505 is not.
func CheckMoney(field string, amount decimal.Decimal) error {
	if !amount.Equal(amount.Truncate(MoneyPlaces)) {
		return fmt.Errorf("%w: %s must have at most %d decimal places, got %s", ErrValidation, field, MoneyPlaces, amount.String())
	}
	return nil
}
