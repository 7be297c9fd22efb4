package invoker

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/order"
)

// Action tags one entry of an invocation batch.
type Action uint8

const (
	ActionUpdatePosition Action = iota + 1
	ActionUpdateVault
	ActionPlaceOrder
	ActionUpdateOrder
	ActionCancelOrder
	ActionExecuteOrder
	ActionLiquidate
	ActionApproveTarget
	ActionCommitPrice
	ActionClaimFee
)

var actionNames = map[Action]string{
	ActionUpdatePosition: "UpdatePosition",
	ActionUpdateVault:    "UpdateVault",
	ActionPlaceOrder:     "PlaceOrder",
	ActionUpdateOrder:    "UpdateOrder",
	ActionCancelOrder:    "CancelOrder",
	ActionExecuteOrder:   "ExecuteOrder",
	ActionLiquidate:      "Liquidate",
	ActionApproveTarget:  "ApproveTarget",
	ActionCommitPrice:    "CommitPrice",
	ActionClaimFee:       "ClaimFee",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Action(%d)", uint8(a))
}

func (a Action) Valid() bool {
	_, ok := actionNames[a]
	return ok
}

// ParseAction maps a name such as "PlaceOrder" back to its tag.
func ParseAction(name string) (Action, error) {
	for a, n := range actionNames {
		if n == name {
			return a, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown action %q", ErrMalformedAction, name)
}

// Invocation is one tagged action with its ABI-encoded arguments.
type Invocation struct {
	Action Action
	Args   []byte
}

// InterfaceFee is an optional fee carried by a collateral-moving action.
// Unwrap selects the external (USDC) representation for the receiver.
type InterfaceFee struct {
	Amount   decimal.Decimal
	Receiver common.Address
	Unwrap   bool
}

func (f InterfaceFee) IsZero() bool { return f.Amount.IsZero() }

type UpdatePositionArgs struct {
	Market     common.Address
	Maker      decimal.Decimal
	Long       decimal.Decimal
	Short      decimal.Decimal
	Collateral decimal.Decimal
	// Wrap moves USDC in and out instead of DSU.
	Wrap bool
	Fee1 InterfaceFee
	Fee2 InterfaceFee
}

type UpdateVaultArgs struct {
	Vault   common.Address
	Deposit decimal.Decimal
	Redeem  decimal.Decimal
	Claim   decimal.Decimal
	Wrap    bool
	Fee1    InterfaceFee
	Fee2    InterfaceFee
}

type PlaceOrderArgs struct {
	Market common.Address
	Terms  order.Terms
}

type UpdateOrderArgs struct {
	Market  common.Address
	OrderID uint64
	Terms   order.Terms
}

type CancelOrderArgs struct {
	Market  common.Address
	OrderID uint64
}

type ExecuteOrderArgs struct {
	Account common.Address
	Market  common.Address
	OrderID uint64
}

type LiquidateArgs struct {
	Market  common.Address
	Account common.Address
}

type ApproveTargetArgs struct {
	Target common.Address
}

type CommitPriceArgs struct {
	Market  common.Address
	Version uint64
	Price   decimal.Decimal
	// RevertOnFailure makes a failed commit abort the batch.
	RevertOnFailure bool
}

type ClaimFeeArgs struct {
	Unwrap bool
}
