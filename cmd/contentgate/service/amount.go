package service

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ToSubunits converts a whole-unit price to integer subunits, rounding half
// away from zero (0.01 SUI with 9 decimals is 10_000_000 MIST).
func ToSubunits(price decimal.Decimal, decimals int32) *big.Int {
	return price.Shift(decimals).Round(0).BigInt()
}

// FromSubunits converts integer subunits back to whole units
func FromSubunits(amount *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(amount, -decimals)
}

// Stored prices are NUMERIC(38, 18): 18 fractional and 20 integer digits.
const (
	MaxPriceDecimals = 18
	maxPriceDigits   = 38
)

var priceCeiling = decimal.New(1, maxPriceDigits-MaxPriceDecimals)

// validatePrice rejects prices the ledger could not store exactly
func validatePrice(price decimal.Decimal) error {
	switch {
	case price.IsNegative():
		return fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	case !price.Equal(price.Truncate(MaxPriceDecimals)):
		return fmt.Errorf("%w: price has more than %d decimal places", ErrInvalidInput, MaxPriceDecimals)
	case price.Cmp(priceCeiling) >= 0:
		return fmt.Errorf("%w: price must be below %s", ErrInvalidInput, priceCeiling.String())
	}
	return nil
}
