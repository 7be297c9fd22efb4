package keeper

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/equilibria-xyz/perennial-v2-sub004/params"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/fixed"
)

var ErrFeeExceedsCeiling = errors.New("keeper fee exceeds ceiling")

// Config is the per-venue compensation record. It is fixed at startup.
type Config struct {
	ComputeMultiplier decimal.Decimal
	ComputeBufferGas  uint64
	DataMultiplier    decimal.Decimal
	DataBufferGas     uint64
	// Strict fails execution instead of clamping to the order's maxFee.
	Strict bool
}

// Validate rejects negative multipliers, which would break monotonicity.
func (c Config) Validate() error {
	if c.ComputeMultiplier.IsNegative() || c.DataMultiplier.IsNegative() {
		return fmt.Errorf("keeper multipliers must be non-negative: compute=%s data=%s",
			c.ComputeMultiplier, c.DataMultiplier)
	}
	return nil
}

func ConfigFromParams(p params.Keeper) Config {
	return Config{
		ComputeMultiplier: p.ComputeMultiplier,
		ComputeBufferGas:  p.ComputeBufferGas,
		DataMultiplier:    p.DataMultiplier,
		DataBufferGas:     p.DataBufferGas,
		Strict:            p.StrictFeeCeiling,
	}
}

// Prices are the venue prices at the moment of execution.
type Prices struct {
	ComputeGasPrice *big.Int // wei per compute gas
	DataGasPrice    *big.Int // wei per calldata gas
	// NativePrice is the native token quoted in settlement units.
	NativePrice decimal.Decimal
}

// Usage is what one execution consumed.
type Usage struct {
	ComputeGas  uint64
	CalldataGas uint64
}

// Fee converts usage into a settlement-asset amount:
//
//	native = cm*gas*gp + cb*gp + dm*data*dp + db*dp
//	fee    = native / 1e18 * nativePrice
//
// The result is truncated to six decimals and is non-decreasing in both
// usage components.
func Fee(u Usage, p Prices, cfg Config) decimal.Decimal {
	gp := weiOrZero(p.ComputeGasPrice)
	dp := weiOrZero(p.DataGasPrice)

	compute := cfg.ComputeMultiplier.Mul(units(u.ComputeGas)).Mul(gp).
		Add(units(cfg.ComputeBufferGas).Mul(gp))
	data := cfg.DataMultiplier.Mul(units(u.CalldataGas)).Mul(dp).
		Add(units(cfg.DataBufferGas).Mul(dp))

	native := compute.Add(data)
	if native.IsNegative() {
		return fixed.Zero
	}
	return native.Shift(-18).Mul(p.NativePrice).Truncate(fixed.Decimals)
}

// Charge applies the order ceiling to a computed fee. Over the ceiling the
// fee is clamped to maxFee, or rejected when strict is set.
func Charge(fee, maxFee decimal.Decimal, strict bool) (decimal.Decimal, error) {
	if fee.LessThanOrEqual(maxFee) {
		return fee, nil
	}
	if strict {
		return decimal.Zero, fmt.Errorf("%w: fee %s > max %s", ErrFeeExceedsCeiling, fee, maxFee)
	}
	return maxFee, nil
}

func units(n uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(n), 0)
}

func weiOrZero(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, 0)
}
