// Package units converts between human token amounts and on-chain base
// (integer) units. All arithmetic goes through fixed-point decimals: 18-decimal
// tokens at amounts beyond 1e12 do not survive a float64 round trip.
package units

import (
	"math/big"

	"github.com/shopspring/decimal"

	clierr "aaveclient/internal/errors"
)

// ToBaseUnits scales amount by 10^decimals and truncates toward zero.
func ToBaseUnits(amount decimal.Decimal, decimals int) (*big.Int, error) {
	if decimals < 0 {
		return nil, clierr.New(clierr.CodeUsage, "token decimals must be >= 0")
	}
	if amount.Sign() < 0 {
		return nil, clierr.New(clierr.CodeUsage, "amount must be non-negative")
	}
	scaled := amount.Shift(int32(decimals)).Truncate(0)
	return scaled.BigInt(), nil
}

// FromBaseUnits is the inverse of ToBaseUnits.
func FromBaseUnits(baseUnits *big.Int, decimals int) (decimal.Decimal, error) {
	if decimals < 0 {
		return decimal.Decimal{}, clierr.New(clierr.CodeUsage, "token decimals must be >= 0")
	}
	if baseUnits == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromBigInt(baseUnits, 0).Shift(int32(-decimals)), nil
}

// ParseAmount parses a human decimal amount string like "1.23".
func ParseAmount(v string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, clierr.Wrap(clierr.CodeUsage, "amount must be in decimal form like 1.23", err)
	}
	if amount.Sign() < 0 {
		return decimal.Decimal{}, clierr.New(clierr.CodeUsage, "amount must be non-negative")
	}
	return amount, nil
}

// FromWei converts a wei-denominated integer into whole native currency units.
func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -18)
}

// ToWei converts a native currency amount into wei, truncating toward zero.
func ToWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(18).Truncate(0).BigInt()
}
