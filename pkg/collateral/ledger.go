package collateral

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/state"
)

var (
	ErrInvalidAmount         = errors.New("amount must not be negative")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// Settlement assets. USDC is the external stable asset, DSU the internal
// synthetic collateral every market and vault settles in.
var (
	USDC = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	DSU  = common.HexToAddress("0x605D26FBd5be761089281d5cec2Ce86eeA667109")
)

// MaxAllowance is never decremented by TransferFrom.
var MaxAllowance = decimal.New(1, 60)

const (
	prefixBalance   = "bal"
	prefixAllowance = "allow"
)

// Ledger is the token balance sheet kept in the host store. It is stateless;
// every call runs in the caller's unit of work.
type Ledger struct{}

func (Ledger) Balance(txn *state.Txn, token, holder common.Address) (decimal.Decimal, error) {
	return getAmount(txn, balanceKey(token, holder))
}

func (l Ledger) Mint(txn *state.Txn, token, to common.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	bal, err := l.Balance(txn, token, to)
	if err != nil {
		return err
	}
	return setAmount(txn, balanceKey(token, to), bal.Add(amount))
}

func (l Ledger) Burn(txn *state.Txn, token, from common.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	bal, err := l.Balance(txn, token, from)
	if err != nil {
		return err
	}
	if bal.LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s, burning %s", ErrInsufficientBalance, from.Hex(), bal, amount)
	}
	return setAmount(txn, balanceKey(token, from), bal.Sub(amount))
}

// Transfer moves amount of token between holders.
func (l Ledger) Transfer(txn *state.Txn, token, from, to common.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	if amount.IsZero() || from == to {
		return nil
	}
	if err := l.Burn(txn, token, from, amount); err != nil {
		return err
	}
	return l.Mint(txn, token, to, amount)
}

func (Ledger) Allowance(txn *state.Txn, token, owner, spender common.Address) (decimal.Decimal, error) {
	return getAmount(txn, allowanceKey(token, owner, spender))
}

func (Ledger) Approve(txn *state.Txn, token, owner, spender common.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	return setAmount(txn, allowanceKey(token, owner, spender), amount)
}

// TransferFrom moves tokens on behalf of from, spending spender's allowance.
func (l Ledger) TransferFrom(txn *state.Txn, token, spender, from, to common.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	if amount.IsZero() {
		return nil
	}
	allowed, err := l.Allowance(txn, token, from, spender)
	if err != nil {
		return err
	}
	if allowed.LessThan(amount) {
		return fmt.Errorf("%w: %s may spend %s of %s, needs %s",
			ErrInsufficientAllowance, spender.Hex(), allowed, from.Hex(), amount)
	}
	if !allowed.Equal(MaxAllowance) {
		if err := setAmount(txn, allowanceKey(token, from, spender), allowed.Sub(amount)); err != nil {
			return err
		}
	}
	return l.Transfer(txn, token, from, to, amount)
}

func getAmount(txn *state.Txn, key []byte) (decimal.Decimal, error) {
	data, err := txn.Get(key)
	if errors.Is(err, state.ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(string(data))
}

func setAmount(txn *state.Txn, key []byte, v decimal.Decimal) error {
	if v.IsZero() {
		txn.Delete(key)
		return nil
	}
	txn.Set(key, []byte(v.String()))
	return nil
}

// balanceKey returns the key for a token balance
// Format: "bal:{token}:{holder}"
func balanceKey(token, holder common.Address) []byte {
	return state.Key(prefixBalance, state.Addr(token), state.Addr(holder))
}

// allowanceKey returns the key for an allowance
// Format: "allow:{token}:{owner}:{spender}"
func allowanceKey(token, owner, spender common.Address) []byte {
	return state.Key(prefixAllowance, state.Addr(token), state.Addr(owner), state.Addr(spender))
}
