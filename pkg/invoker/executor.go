package invoker

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/collateral"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/keeper"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/order"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/settlement"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/state"
)

// Execution is the result of one successful trigger order execution.
type Execution struct {
	Order     *order.TriggerOrder
	KeeperFee decimal.Decimal
	Usage     keeper.Usage
	// Path is set when a collateral-close order unwrapped to USDC.
	Path collateral.Path
}

// Executor checks trigger conditions and carries out satisfied orders.
type Executor struct {
	invoker    common.Address
	book       *order.Book
	prices     PriceView
	settlement Settlement
	tokens     Tokens
	router     CollateralRouter
	source     keeper.PriceSource
	cfg        keeper.Config
	logger     *zap.Logger
}

// CanExecute reports whether the order is Open and its condition holds at
// the current valid price. It never writes.
func (e *Executor) CanExecute(txn *state.Txn, owner, market common.Address, id uint64) (bool, error) {
	o, err := e.book.Read(txn, owner, market, id)
	if errors.Is(err, order.ErrOrderNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return e.satisfied(txn, o)
}

func (e *Executor) satisfied(txn *state.Txn, o *order.TriggerOrder) (bool, error) {
	if !o.IsOpen() {
		return false, nil
	}
	p, err := e.prices.LatestPrice(txn, o.Market)
	if err != nil {
		return false, err
	}
	if !p.Valid {
		return false, nil
	}
	return o.Condition().Satisfied(p.Value), nil
}

// Execute runs an Open, satisfied order: it marks the order Executed,
// forwards the delta to settlement, then debits the keeper fee from the
// owner's market collateral and pays it to keeperAddr. On any failure
// every write made here is rolled back.
func (e *Executor) Execute(txn *state.Txn, owner, market common.Address, id uint64, keeperAddr common.Address, calldata []byte) (*Execution, error) {
	sp := txn.Savepoint()
	meter := keeper.StartMeter(txn)

	ex, err := e.execute(txn, owner, market, id, keeperAddr, calldata, meter)
	if err != nil {
		txn.Rollback(sp)
		return nil, err
	}
	txn.Release(sp)
	return ex, nil
}

func (e *Executor) execute(txn *state.Txn, owner, market common.Address, id uint64, keeperAddr common.Address, calldata []byte, meter keeper.Meter) (*Execution, error) {
	o, err := e.book.Read(txn, owner, market, id)
	if errors.Is(err, order.ErrOrderNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrCannotExecute, err)
	}
	if err != nil {
		return nil, err
	}
	ok, err := e.satisfied(txn, o)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: order %d is %s or its condition does not hold", ErrCannotExecute, id, o.Status)
	}

	if err := e.book.MarkExecuted(txn, o); err != nil {
		return nil, err
	}

	ex := &Execution{Order: o}
	if err := e.forward(txn, o, ex); err != nil {
		return nil, err
	}

	prices, err := e.source.Prices(txn)
	if err != nil {
		return nil, err
	}
	ex.Usage = keeper.Usage{ComputeGas: meter.Consumed(), CalldataGas: keeper.CalldataGas(calldata)}
	fee, err := keeper.Charge(keeper.Fee(ex.Usage, prices, e.cfg), o.MaxFee, e.cfg.Strict)
	if err != nil {
		return nil, err
	}
	ex.KeeperFee = fee

	if fee.IsPositive() {
		if err := e.settlement.Update(txn, e.invoker, owner, market, settlement.Delta{Collateral: fee.Neg()}, common.Address{}); err != nil {
			return nil, fmt.Errorf("failed to debit keeper fee: %w", err)
		}
		if err := e.tokens.Transfer(txn, collateral.DSU, e.invoker, keeperAddr, fee); err != nil {
			return nil, fmt.Errorf("failed to pay keeper: %w", err)
		}
	}

	e.logger.Info("order_executed",
		zap.String("owner", owner.Hex()),
		zap.String("market", market.Hex()),
		zap.Uint64("id", id),
		zap.String("keeper", keeperAddr.Hex()),
		zap.Uint64("gas", ex.Usage.ComputeGas),
		zap.Stringer("fee", fee),
	)
	return ex, nil
}

func (e *Executor) forward(txn *state.Txn, o *order.TriggerOrder, ex *Execution) error {
	var delta settlement.Delta
	switch o.Side {
	case order.SideMaker:
		delta.Maker = o.SizeDelta
	case order.SideLong:
		delta.Long = o.SizeDelta
	case order.SideShort:
		delta.Short = o.SizeDelta
	case order.SideCollateralClose:
		return e.withdraw(txn, o, ex)
	}
	return e.settlement.Update(txn, e.invoker, o.Owner, o.Market, delta, common.Address{})
}

// withdraw pulls |sizeDelta| collateral out of the market and hands it to
// the owner as USDC.
func (e *Executor) withdraw(txn *state.Txn, o *order.TriggerOrder, ex *Execution) error {
	amount := o.SizeDelta.Abs()
	if err := e.settlement.Update(txn, e.invoker, o.Owner, o.Market, settlement.Delta{Collateral: amount.Neg()}, common.Address{}); err != nil {
		return err
	}
	out, path, err := e.router.Unwrap(txn, e.invoker, amount)
	if err != nil {
		return err
	}
	ex.Path = path
	return e.tokens.Transfer(txn, collateral.USDC, e.invoker, o.Owner, out)
}
