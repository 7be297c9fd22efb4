package order

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidOrder     = errors.New("invalid order")
	ErrCapacityExceeded = errors.New("open order capacity exceeded")
	ErrOrderNotFound    = errors.New("order not found")
)

// Side selects what an executed order changes on the settlement venue.
type Side uint8

const (
	SideMaker Side = iota
	SideLong
	SideShort
	// SideCollateralClose is a pure collateral withdrawal (sizeDelta < 0).
	SideCollateralClose
)

func (s Side) String() string {
	switch s {
	case SideMaker:
		return "maker"
	case SideLong:
		return "long"
	case SideShort:
		return "short"
	case SideCollateralClose:
		return "collateral"
	default:
		return "unknown"
	}
}

func (s Side) Valid() bool { return s <= SideCollateralClose }

// Comparison is the direction of the price test.
type Comparison uint8

const (
	// AboveMarket executes when referencePrice >= trigger.
	AboveMarket Comparison = iota
	// BelowMarket executes when referencePrice <= trigger.
	BelowMarket
)

func (c Comparison) String() string {
	switch c {
	case AboveMarket:
		return "above"
	case BelowMarket:
		return "below"
	default:
		return "unknown"
	}
}

func (c Comparison) Valid() bool { return c <= BelowMarket }

// Status represents the lifecycle state of a trigger order.
// Open is the only non-terminal state.
type Status uint8

const (
	StatusOpen Status = iota
	StatusCancelled
	StatusExecuted
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusCancelled:
		return "cancelled"
	case StatusExecuted:
		return "executed"
	default:
		return "unknown"
	}
}

// TriggerOrder is one stored conditional instruction.
type TriggerOrder struct {
	Owner  common.Address `json:"owner"`
	Market common.Address `json:"market"`
	ID     uint64         `json:"id"`

	IsLimit      bool            `json:"isLimit"`
	Side         Side            `json:"side"`
	Comparison   Comparison      `json:"comparison"`
	TriggerPrice decimal.Decimal `json:"triggerPrice"` // signed; sign matters for protective orders
	SizeDelta    decimal.Decimal `json:"sizeDelta"`
	MaxFee       decimal.Decimal `json:"maxFee"` // settlement asset units

	Status Status `json:"status"`
}

// Terms are the caller-supplied, mutable fields of an order.
type Terms struct {
	IsLimit      bool
	Side         Side
	Comparison   Comparison
	TriggerPrice decimal.Decimal
	SizeDelta    decimal.Decimal
	MaxFee       decimal.Decimal
}

// Validate rejects malformed terms before any state is touched.
func (t Terms) Validate() error {
	if !t.Side.Valid() {
		return fmt.Errorf("%w: side %d", ErrInvalidOrder, t.Side)
	}
	if !t.Comparison.Valid() {
		return fmt.Errorf("%w: comparison %d", ErrInvalidOrder, t.Comparison)
	}
	if t.TriggerPrice.IsZero() {
		return fmt.Errorf("%w: trigger price must be non-zero", ErrInvalidOrder)
	}
	if t.Side != SideCollateralClose && t.SizeDelta.IsZero() {
		return fmt.Errorf("%w: %s order requires a non-zero delta", ErrInvalidOrder, t.Side)
	}
	if !t.MaxFee.IsPositive() {
		return fmt.Errorf("%w: maxFee must be positive, got %s", ErrInvalidOrder, t.MaxFee)
	}
	if t.Side == SideCollateralClose && !t.SizeDelta.IsNegative() {
		return fmt.Errorf("%w: collateral order requires negative delta, got %s", ErrInvalidOrder, t.SizeDelta)
	}
	return nil
}

// Terms returns the mutable part of the order.
func (o *TriggerOrder) Terms() Terms {
	return Terms{
		IsLimit:      o.IsLimit,
		Side:         o.Side,
		Comparison:   o.Comparison,
		TriggerPrice: o.TriggerPrice,
		SizeDelta:    o.SizeDelta,
		MaxFee:       o.MaxFee,
	}
}

func (o *TriggerOrder) apply(t Terms) {
	o.IsLimit = t.IsLimit
	o.Side = t.Side
	o.Comparison = t.Comparison
	o.TriggerPrice = t.TriggerPrice
	o.SizeDelta = t.SizeDelta
	o.MaxFee = t.MaxFee
}

// IsOpen returns true while the order can still be cancelled or executed.
func (o *TriggerOrder) IsOpen() bool { return o.Status == StatusOpen }
