package collateral

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/fixed"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/state"
)

var ErrInsufficientLiquidity = errors.New("insufficient converter liquidity")

// Converter swaps between USDC and DSU for a holder.
type Converter interface {
	// Wrap takes amount USDC from holder and returns the DSU credited.
	Wrap(txn *state.Txn, holder common.Address, amount decimal.Decimal) (decimal.Decimal, error)
	// Unwrap takes amount DSU from holder and returns the USDC credited.
	Unwrap(txn *state.Txn, holder common.Address, amount decimal.Decimal) (decimal.Decimal, error)
}

// Batcher is a pre-funded pool converting 1:1 out of its own inventory.
type Batcher interface {
	Converter
	Available(txn *state.Txn, token common.Address) (decimal.Decimal, error)
}

// LocalBatcher holds USDC and DSU at its own address.
type LocalBatcher struct {
	Address common.Address
	Ledger  Ledger
}

func (b *LocalBatcher) Available(txn *state.Txn, token common.Address) (decimal.Decimal, error) {
	return b.Ledger.Balance(txn, token, b.Address)
}

func (b *LocalBatcher) Wrap(txn *state.Txn, holder common.Address, amount decimal.Decimal) (decimal.Decimal, error) {
	return b.swap(txn, holder, USDC, DSU, amount)
}

func (b *LocalBatcher) Unwrap(txn *state.Txn, holder common.Address, amount decimal.Decimal) (decimal.Decimal, error) {
	return b.swap(txn, holder, DSU, USDC, amount)
}

func (b *LocalBatcher) swap(txn *state.Txn, holder, in, out common.Address, amount decimal.Decimal) (decimal.Decimal, error) {
	avail, err := b.Available(txn, out)
	if err != nil {
		return decimal.Zero, err
	}
	if avail.LessThan(amount) {
		return decimal.Zero, fmt.Errorf("%w: batcher holds %s, needs %s", ErrInsufficientLiquidity, avail, amount)
	}
	if err := b.Ledger.Transfer(txn, in, holder, b.Address, amount); err != nil {
		return decimal.Zero, err
	}
	if err := b.Ledger.Transfer(txn, out, b.Address, holder, amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// LocalReserve mints DSU 1:1 against USDC and redeems at RedemptionPrice,
// which may sit below one.
type LocalReserve struct {
	Address         common.Address
	RedemptionPrice decimal.Decimal
	Ledger          Ledger
}

func (r *LocalReserve) redemptionPrice() decimal.Decimal {
	if r.RedemptionPrice.IsZero() || r.RedemptionPrice.GreaterThan(fixed.One) {
		return fixed.One
	}
	return r.RedemptionPrice
}

// Wrap mints: USDC moves into the reserve and fresh DSU is issued.
func (r *LocalReserve) Wrap(txn *state.Txn, holder common.Address, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := r.Ledger.Transfer(txn, USDC, holder, r.Address, amount); err != nil {
		return decimal.Zero, err
	}
	if err := r.Ledger.Mint(txn, DSU, holder, amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// Unwrap redeems: DSU is burned and USDC paid out at the redemption price.
func (r *LocalReserve) Unwrap(txn *state.Txn, holder common.Address, amount decimal.Decimal) (decimal.Decimal, error) {
	out := amount.Mul(r.redemptionPrice()).Truncate(fixed.Decimals)

	held, err := r.Ledger.Balance(txn, USDC, r.Address)
	if err != nil {
		return decimal.Zero, err
	}
	if held.LessThan(out) {
		return decimal.Zero, fmt.Errorf("%w: reserve holds %s, needs %s", ErrInsufficientLiquidity, held, out)
	}
	if err := r.Ledger.Burn(txn, DSU, holder, amount); err != nil {
		return decimal.Zero, err
	}
	if err := r.Ledger.Transfer(txn, USDC, r.Address, holder, out); err != nil {
		return decimal.Zero, err
	}
	return out, nil
}
