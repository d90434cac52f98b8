package wallet

import "github.com/shopspring/decimal"

// parseAmount validates a caller-supplied naira amount: parseable, strictly
// positive, and at most two decimal places (kobo precision).
func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, NewValidationError("invalid amount %q", raw)
	}
	if !amount.IsPositive() {
		return decimal.Zero, NewValidationError("amount must be greater than zero")
	}
	if amount.Exponent() < -2 {
		return decimal.Zero, NewValidationError("amount cannot have more than two decimal places")
	}
	return amount, nil
}
