package settlement

import (
	"github.com/shopspring/decimal"
)

// Position is an account's exposure and margin on one market.
// At most one of Maker, Long and Short is non-zero.
type Position struct {
	Maker decimal.Decimal `json:"maker"`
	Long  decimal.Decimal `json:"long"`
	Short decimal.Decimal `json:"short"`

	// Volume-weighted average entry price of the current exposure.
	EntryPrice decimal.Decimal `json:"entryPrice"`

	Collateral  decimal.Decimal `json:"collateral"`
	RealizedPnL decimal.Decimal `json:"realizedPnl"`
	Referrer    string          `json:"referrer,omitempty"`
}

// Delta is a requested change to a position.
type Delta struct {
	Maker      decimal.Decimal
	Long       decimal.Decimal
	Short      decimal.Decimal
	Collateral decimal.Decimal
}

// Size returns the signed directional size: long positive, short negative.
// Maker exposure is reported separately and carries no PnL here.
func (p *Position) Size() decimal.Decimal {
	return p.Long.Sub(p.Short)
}

// Magnitude is the absolute exposure across all sides.
func (p *Position) Magnitude() decimal.Decimal {
	return p.Maker.Add(p.Long).Add(p.Short)
}

func (p *Position) IsEmpty() bool {
	return p.Magnitude().IsZero()
}

// UnrealizedPnL computes (markPrice - entryPrice) × size
func (p *Position) UnrealizedPnL(markPrice decimal.Decimal) decimal.Decimal {
	size := p.Size()
	if size.IsZero() {
		return decimal.Zero
	}
	return markPrice.Sub(p.EntryPrice).Mul(size)
}

// Equity is collateral plus unrealized PnL at markPrice.
func (p *Position) Equity(markPrice decimal.Decimal) decimal.Decimal {
	return p.Collateral.Add(p.UnrealizedPnL(markPrice))
}

// Notional is |exposure| × markPrice.
func (p *Position) Notional(markPrice decimal.Decimal) decimal.Decimal {
	return p.Magnitude().Mul(markPrice.Abs())
}

// applySize moves the directional size to newSize at price, updating the
// VWAP entry and realizing PnL on the reduced part into collateral.
func (p *Position) applySize(oldSize, newSize, price decimal.Decimal) {
	delta := newSize.Sub(oldSize)
	if delta.IsZero() {
		return
	}

	switch {
	case newSize.IsZero():
		// Closed: realize everything.
		p.realize(price.Sub(p.EntryPrice).Mul(oldSize))
		p.EntryPrice = decimal.Zero

	case oldSize.IsZero() || oldSize.Sign() == newSize.Sign() && newSize.Abs().GreaterThan(oldSize.Abs()):
		// Opening or increasing in the same direction: weighted average entry.
		if oldSize.IsZero() {
			p.EntryPrice = price
		} else {
			p.EntryPrice = p.EntryPrice.Mul(oldSize.Abs()).Add(price.Mul(delta.Abs())).Div(newSize.Abs())
		}

	case oldSize.Sign() == newSize.Sign():
		// Reduced but not flipped: realize the closed part, entry unchanged.
		closed := delta.Abs()
		pnl := price.Sub(p.EntryPrice).Mul(closed)
		if oldSize.IsNegative() {
			pnl = pnl.Neg()
		}
		p.realize(pnl)

	default:
		// Flipped: close the old side fully, new entry is the fill price.
		p.realize(price.Sub(p.EntryPrice).Mul(oldSize))
		p.EntryPrice = price
	}
}

func (p *Position) realize(pnl decimal.Decimal) {
	p.RealizedPnL = p.RealizedPnL.Add(pnl)
	p.Collateral = p.Collateral.Add(pnl)
}
