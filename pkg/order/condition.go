package order

import "github.com/shopspring/decimal"

// Condition is the price test an order carries. The stored record encodes it
// as (isLimit, comparison, signed triggerPrice); Condition makes the variant
// explicit so each comparison rule only applies to its own kind.
type Condition interface {
	// Satisfied reports whether the reference price meets the condition.
	Satisfied(price decimal.Decimal) bool
	isCondition()
}

// LimitCondition compares the signed reference price against the signed trigger.
type LimitCondition struct {
	Price      decimal.Decimal
	Comparison Comparison
}

// ProtectiveCondition (take-profit / stop-loss) compares against |trigger| so
// the same order triggers symmetrically for long and short exposure.
type ProtectiveCondition struct {
	AbsPrice   decimal.Decimal
	Comparison Comparison
}

func (c LimitCondition) Satisfied(price decimal.Decimal) bool {
	return compare(price, c.Price, c.Comparison)
}

func (c ProtectiveCondition) Satisfied(price decimal.Decimal) bool {
	return compare(price, c.AbsPrice, c.Comparison)
}

func (LimitCondition) isCondition()      {}
func (ProtectiveCondition) isCondition() {}

// Condition translates the flat record into its tagged variant.
func (o *TriggerOrder) Condition() Condition {
	if o.IsLimit {
		return LimitCondition{Price: o.TriggerPrice, Comparison: o.Comparison}
	}
	return ProtectiveCondition{AbsPrice: o.TriggerPrice.Abs(), Comparison: o.Comparison}
}

func compare(price, trigger decimal.Decimal, cmp Comparison) bool {
	switch cmp {
	case AboveMarket:
		return price.GreaterThanOrEqual(trigger)
	case BelowMarket:
		return price.LessThanOrEqual(trigger)
	default:
		return false
	}
}
