package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Validated decimal amounts (minor-unit precision)
// =============================================================================

// ParseMoney parses a positive monetary amount with at most two decimal
// places. Everything that enters the ledger from the outside world (API
// bodies, gateway responses) goes through this.
func ParseMoney(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidAmount, d)
	}
	if d.Exponent() < -2 {
		return decimal.Zero, fmt.Errorf("%w: more than two decimal places in %s", ErrInvalidAmount, d)
	}
	return d, nil
}

// MustMoney parses an amount and panics on failure. Test helper.
func MustMoney(s string) decimal.Decimal {
	d, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return d
}
