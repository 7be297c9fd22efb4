package invoker

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/collateral"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/state"
)

// Representation is the asset form a fee credit is paid out in.
type Representation uint8

const (
	Internal Representation = iota // DSU
	External                       // USDC
)

func (r Representation) String() string {
	if r == External {
		return "external"
	}
	return "internal"
}

const prefixFee = "fee"

// ClaimResult reports what a claim paid out.
type ClaimResult struct {
	DSU  decimal.Decimal `json:"dsu"`
	USDC decimal.Decimal `json:"usdc"`
	Path collateral.Path `json:"path,omitempty"`
}

// FeeLedger accumulates interface fees. Credited funds sit as DSU at the
// invoker address until claimed.
type FeeLedger struct {
	invoker common.Address
	tokens  Tokens
	router  CollateralRouter
	logger  *zap.Logger
}

func NewFeeLedger(invoker common.Address, tokens Tokens, router CollateralRouter, logger *zap.Logger) *FeeLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeeLedger{invoker: invoker, tokens: tokens, router: router, logger: logger}
}

func (f *FeeLedger) Credit(txn *state.Txn, receiver common.Address, rep Representation, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return collateral.ErrInvalidAmount
	}
	if amount.IsZero() {
		return nil
	}
	cur, err := f.Claimable(txn, receiver, rep)
	if err != nil {
		return err
	}
	txn.Set(feeKey(receiver, rep), []byte(cur.Add(amount).String()))

	f.logger.Debug("interface_fee_credited",
		zap.String("receiver", receiver.Hex()),
		zap.Stringer("representation", rep),
		zap.Stringer("amount", amount),
	)
	return nil
}

func (f *FeeLedger) Claimable(txn *state.Txn, receiver common.Address, rep Representation) (decimal.Decimal, error) {
	data, err := txn.Get(feeKey(receiver, rep))
	if errors.Is(err, state.ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load fee credit: %w", err)
	}
	return decimal.NewFromString(string(data))
}

// Claim pays out every credit of receiver. External credits are always paid
// in USDC; internal credits are paid in DSU unless unwrap is set.
func (f *FeeLedger) Claim(txn *state.Txn, receiver common.Address, unwrap bool) (*ClaimResult, error) {
	internal, err := f.Claimable(txn, receiver, Internal)
	if err != nil {
		return nil, err
	}
	external, err := f.Claimable(txn, receiver, External)
	if err != nil {
		return nil, err
	}
	txn.Delete(feeKey(receiver, Internal))
	txn.Delete(feeKey(receiver, External))

	res := &ClaimResult{DSU: decimal.Zero, USDC: decimal.Zero}
	toUnwrap := external
	if unwrap {
		toUnwrap = toUnwrap.Add(internal)
	} else {
		res.DSU = internal
	}

	if res.DSU.IsPositive() {
		if err := f.tokens.Transfer(txn, collateral.DSU, f.invoker, receiver, res.DSU); err != nil {
			return nil, fmt.Errorf("failed to pay fee: %w", err)
		}
	}
	if toUnwrap.IsPositive() {
		out, path, err := f.router.Unwrap(txn, f.invoker, toUnwrap)
		if err != nil {
			return nil, fmt.Errorf("failed to unwrap fee: %w", err)
		}
		if err := f.tokens.Transfer(txn, collateral.USDC, f.invoker, receiver, out); err != nil {
			return nil, fmt.Errorf("failed to pay fee: %w", err)
		}
		res.USDC, res.Path = out, path
	}

	f.logger.Info("interface_fee_claimed",
		zap.String("receiver", receiver.Hex()),
		zap.Stringer("dsu", res.DSU),
		zap.Stringer("usdc", res.USDC),
	)
	return res, nil
}

// feeKey returns the key for a fee credit
// Format: "fee:{receiver}:{representation}"
func feeKey(receiver common.Address, rep Representation) []byte {
	return state.Key(prefixFee, state.Addr(receiver), rep.String())
}
