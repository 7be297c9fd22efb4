package settlement

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/collateral"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/oracle"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/state"
)

var (
	ErrUnknownMarket          = errors.New("unknown market")
	ErrInvalidPosition        = errors.New("invalid position")
	ErrInsufficientCollateral = errors.New("insufficient collateral")
	ErrInsufficientMargin     = errors.New("insufficient margin")
	ErrPriceUnavailable       = errors.New("market price unavailable")
	ErrNotLiquidatable        = errors.New("position is not liquidatable")
)

const (
	prefixMarket   = "mkt"
	prefixPosition = "pos"
)

// Market is the static configuration of one settlement venue.
type Market struct {
	Address common.Address `json:"address"`
	Name    string         `json:"name"`
	// MarginRatio is required equity / notional after a risk-increasing update.
	MarginRatio decimal.Decimal `json:"marginRatio"`
	// MaintenanceRatio is the equity / notional floor below which anyone may liquidate.
	MaintenanceRatio decimal.Decimal `json:"maintenanceRatio"`
}

type priceView interface {
	LatestPrice(txn *state.Txn, market common.Address) (oracle.Price, error)
}

// Engine is the in-process settlement engine. Collateral is held as DSU at
// each market's own address; deposits are pulled from the sender through
// the token allowance the sender granted the market.
type Engine struct {
	ledger collateral.Ledger
	prices priceView
	logger *zap.Logger
}

func NewEngine(prices priceView, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{prices: prices, logger: logger}
}

func (e *Engine) RegisterMarket(txn *state.Txn, m Market) error {
	if ok, err := e.IsMarket(txn, m.Address); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("market %s already registered", m.Address.Hex())
	}
	if !m.MaintenanceRatio.IsPositive() || m.MarginRatio.LessThan(m.MaintenanceRatio) {
		return fmt.Errorf("invalid margin ratios for %s: margin=%s maintenance=%s",
			m.Address.Hex(), m.MarginRatio, m.MaintenanceRatio)
	}
	return txn.SetJSON(marketKey(m.Address), m)
}

func (e *Engine) Market(txn *state.Txn, addr common.Address) (*Market, error) {
	var m Market
	err := txn.GetJSON(marketKey(addr), &m)
	if errors.Is(err, state.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMarket, addr.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load market: %w", err)
	}
	return &m, nil
}

func (e *Engine) IsMarket(txn *state.Txn, addr common.Address) (bool, error) {
	_, err := e.Market(txn, addr)
	if errors.Is(err, ErrUnknownMarket) {
		return false, nil
	}
	return err == nil, err
}

// Markets lists every registered market in address order.
func (e *Engine) Markets(txn *state.Txn) ([]Market, error) {
	var (
		out       []Market
		decodeErr error
	)
	err := txn.Iterate(state.Prefix(prefixMarket), func(key, value []byte) bool {
		var m Market
		if err := json.Unmarshal(value, &m); err != nil {
			decodeErr = err
			return false
		}
		out = append(out, m)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, decodeErr
}

// Position returns the stored position, or an empty one.
func (e *Engine) Position(txn *state.Txn, account, market common.Address) (*Position, error) {
	p := &Position{}
	err := txn.GetJSON(positionKey(account, market), p)
	if errors.Is(err, state.ErrNotFound) {
		return &Position{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load position: %w", err)
	}
	return p, nil
}

// Referrer returns the referral recorded for account on market, if any.
func (e *Engine) Referrer(txn *state.Txn, account, market common.Address) (common.Address, error) {
	p, err := e.Position(txn, account, market)
	if err != nil {
		return common.Address{}, err
	}
	if p.Referrer == "" {
		return common.Address{}, nil
	}
	return common.HexToAddress(p.Referrer), nil
}

// Update applies delta to account's position on market. Positive collateral
// is pulled from sender, negative collateral is paid to sender.
func (e *Engine) Update(txn *state.Txn, sender, account, market common.Address, delta Delta, referrer common.Address) error {
	m, err := e.Market(txn, market)
	if err != nil {
		return err
	}
	pos, err := e.Position(txn, account, market)
	if err != nil {
		return err
	}

	next := *pos
	next.Maker = pos.Maker.Add(delta.Maker)
	next.Long = pos.Long.Add(delta.Long)
	next.Short = pos.Short.Add(delta.Short)
	if err := checkSides(&next); err != nil {
		return err
	}

	exposureChanged := !delta.Maker.IsZero() || !delta.Long.IsZero() || !delta.Short.IsZero()
	riskIncreased := next.Magnitude().GreaterThan(pos.Magnitude()) || delta.Collateral.IsNegative()

	var price decimal.Decimal
	if exposureChanged || (riskIncreased && !next.IsEmpty()) {
		p, err := e.prices.LatestPrice(txn, market)
		if err != nil {
			return err
		}
		if !p.Valid {
			return fmt.Errorf("%w: %s", ErrPriceUnavailable, market.Hex())
		}
		price = p.Value
	}
	if exposureChanged {
		next.applySize(pos.Size(), next.Size(), price)
		if next.IsEmpty() {
			next.EntryPrice = decimal.Zero
		}
	}

	switch {
	case delta.Collateral.IsPositive():
		if err := e.ledger.TransferFrom(txn, collateral.DSU, market, sender, market, delta.Collateral); err != nil {
			return fmt.Errorf("failed to pull collateral: %w", err)
		}
		next.Collateral = next.Collateral.Add(delta.Collateral)
	case delta.Collateral.IsNegative():
		amount := delta.Collateral.Neg()
		if next.Collateral.LessThan(amount) {
			return fmt.Errorf("%w: have %s, withdrawing %s", ErrInsufficientCollateral, next.Collateral, amount)
		}
		next.Collateral = next.Collateral.Sub(amount)
		if err := e.ledger.Transfer(txn, collateral.DSU, market, sender, amount); err != nil {
			return fmt.Errorf("failed to pay out collateral: %w", err)
		}
	}

	if riskIncreased && !next.IsEmpty() {
		required := next.Notional(price).Mul(m.MarginRatio)
		if equity := next.Equity(price); equity.LessThan(required) {
			return fmt.Errorf("%w: equity %s, required %s", ErrInsufficientMargin, equity, required)
		}
	}

	if next.Referrer == "" && referrer != (common.Address{}) {
		next.Referrer = referrer.Hex()
	}

	if err := e.save(txn, account, market, &next); err != nil {
		return err
	}

	e.logger.Debug("position_updated",
		zap.String("account", account.Hex()),
		zap.String("market", market.Hex()),
		zap.Stringer("size", next.Size()),
		zap.Stringer("maker", next.Maker),
		zap.Stringer("collateral", next.Collateral),
	)
	return nil
}

// Liquidate closes account's position on market when its equity is below
// the maintenance requirement. Remaining collateral stays with the account.
func (e *Engine) Liquidate(txn *state.Txn, sender, account, market common.Address) error {
	m, err := e.Market(txn, market)
	if err != nil {
		return err
	}
	pos, err := e.Position(txn, account, market)
	if err != nil {
		return err
	}
	if pos.IsEmpty() {
		return fmt.Errorf("%w: no position", ErrNotLiquidatable)
	}

	p, err := e.prices.LatestPrice(txn, market)
	if err != nil {
		return err
	}
	if !p.Valid {
		return fmt.Errorf("%w: %s", ErrPriceUnavailable, market.Hex())
	}

	equity := pos.Equity(p.Value)
	maintenance := pos.Notional(p.Value).Mul(m.MaintenanceRatio)
	if !equity.LessThan(maintenance) {
		return fmt.Errorf("%w: equity %s, maintenance %s", ErrNotLiquidatable, equity, maintenance)
	}

	pos.applySize(pos.Size(), decimal.Zero, p.Value)
	pos.Maker, pos.Long, pos.Short = decimal.Zero, decimal.Zero, decimal.Zero
	pos.EntryPrice = decimal.Zero
	if pos.Collateral.IsNegative() {
		pos.Collateral = decimal.Zero
	}

	if err := e.save(txn, account, market, pos); err != nil {
		return err
	}

	e.logger.Info("position_liquidated",
		zap.String("account", account.Hex()),
		zap.String("market", market.Hex()),
		zap.String("liquidator", sender.Hex()),
		zap.Stringer("equity", equity),
		zap.Stringer("maintenance", maintenance),
	)
	return nil
}

func (e *Engine) save(txn *state.Txn, account, market common.Address, p *Position) error {
	if p.IsEmpty() && p.Collateral.IsZero() && p.Referrer == "" {
		txn.Delete(positionKey(account, market))
		return nil
	}
	if err := txn.SetJSON(positionKey(account, market), p); err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

func checkSides(p *Position) error {
	nonZero := 0
	for _, side := range []decimal.Decimal{p.Maker, p.Long, p.Short} {
		if side.IsNegative() {
			return fmt.Errorf("%w: negative side", ErrInvalidPosition)
		}
		if side.IsPositive() {
			nonZero++
		}
	}
	if nonZero > 1 {
		return fmt.Errorf("%w: only one of maker, long, short may be open", ErrInvalidPosition)
	}
	return nil
}

// marketKey returns the key for a market record
// Format: "mkt:{market}"
func marketKey(market common.Address) []byte {
	return state.Key(prefixMarket, state.Addr(market))
}

// positionKey returns the key for a position
// Format: "pos:{account}:{market}"
func positionKey(account, market common.Address) []byte {
	return state.Key(prefixPosition, state.Addr(account), state.Addr(market))
}
