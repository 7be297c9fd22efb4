// Package fixed converts between decimal amounts and the 6-decimal integer
// representation used on the wire (int256/uint256 Fixed6 values).
package fixed

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals is the precision of every price, size and collateral amount.
const Decimals = 6

var (
	Zero = decimal.Zero
	One  = decimal.NewFromInt(1)
)

// FromBig interprets v as a Fixed6 integer (1_000_000 = 1.0).
func FromBig(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -Decimals)
}

// ToBig truncates d to 6 decimals and returns the scaled integer.
func ToBig(d decimal.Decimal) *big.Int {
	return d.Truncate(Decimals).Shift(Decimals).BigInt()
}

// Parse reads a decimal string and rejects values with more than 6 decimals.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	if !d.Equal(d.Truncate(Decimals)) {
		return decimal.Zero, fmt.Errorf("decimal %q exceeds %d places", s, Decimals)
	}
	return d, nil
}

// FromWei converts a wei amount of the native token to whole tokens.
func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -18)
}

func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
