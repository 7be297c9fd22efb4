package collateral

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/state"
)

// Path names the converter a Router picked.
type Path string

const (
	PathBatcher Path = "batcher"
	PathReserve Path = "reserve"
)

// Router prefers the batcher whenever it holds enough of the output asset
// and otherwise falls back to the reserve. A nil batcher means reserve only.
type Router struct {
	batcher Batcher
	reserve Converter
	logger  *zap.Logger
}

func NewRouter(batcher Batcher, reserve Converter, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{batcher: batcher, reserve: reserve, logger: logger}
}

// Wrap converts amount USDC held by holder into DSU.
func (r *Router) Wrap(txn *state.Txn, holder common.Address, amount decimal.Decimal) (decimal.Decimal, Path, error) {
	conv, path, err := r.pick(txn, DSU, amount)
	if err != nil {
		return decimal.Zero, "", err
	}
	out, err := conv.Wrap(txn, holder, amount)
	if err != nil {
		return decimal.Zero, path, err
	}
	r.logger.Debug("collateral_wrapped", zap.String("holder", holder.Hex()), zap.String("path", string(path)), zap.Stringer("amount", amount))
	return out, path, nil
}

// Unwrap converts amount DSU held by holder into USDC.
func (r *Router) Unwrap(txn *state.Txn, holder common.Address, amount decimal.Decimal) (decimal.Decimal, Path, error) {
	conv, path, err := r.pick(txn, USDC, amount)
	if err != nil {
		return decimal.Zero, "", err
	}
	out, err := conv.Unwrap(txn, holder, amount)
	if err != nil {
		return decimal.Zero, path, err
	}
	r.logger.Debug("collateral_unwrapped", zap.String("holder", holder.Hex()), zap.String("path", string(path)), zap.Stringer("amount", out))
	return out, path, nil
}

func (r *Router) pick(txn *state.Txn, out common.Address, amount decimal.Decimal) (Converter, Path, error) {
	if r.batcher == nil {
		return r.reserve, PathReserve, nil
	}
	avail, err := r.batcher.Available(txn, out)
	if err != nil {
		return nil, "", err
	}
	if avail.GreaterThanOrEqual(amount) {
		return r.batcher, PathBatcher, nil
	}
	return r.reserve, PathReserve, nil
}
