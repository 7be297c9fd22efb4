package invoker

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/fixed"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/order"
)

// Argument layouts. Amounts are six-decimal fixed point; signed fields are
// int256, unsigned ones uint256.
var (
	addressT = mustType("address")
	int256T  = mustType("int256")
	uint256T = mustType("uint256")
	uint8T   = mustType("uint8")
	boolT    = mustType("bool")

	feeArgs = []abi.Type{uint256T, addressT, boolT}

	updatePositionArgs = arguments(append([]abi.Type{addressT, int256T, int256T, int256T, int256T, boolT}, append(feeArgs, feeArgs...)...)...)
	updateVaultArgs    = arguments(append([]abi.Type{addressT, uint256T, uint256T, uint256T, boolT}, append(feeArgs, feeArgs...)...)...)
	placeOrderArgs     = arguments(addressT, uint8T, uint8T, boolT, int256T, int256T, uint256T)
	updateOrderArgs    = arguments(addressT, uint8T, uint8T, boolT, int256T, int256T, uint256T, uint256T)
	cancelOrderArgs    = arguments(addressT, uint256T)
	executeOrderArgs   = arguments(addressT, addressT, uint256T)
	liquidateArgs      = arguments(addressT, addressT)
	approveTargetArgs  = arguments(addressT)
	commitPriceArgs    = arguments(addressT, uint256T, int256T, boolT)
	claimFeeArgs       = arguments(boolT)

	batchArgs = arguments(mustType("uint8[]"), mustType("bytes[]"))
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("abi type %s: %v", t, err))
	}
	return typ
}

func arguments(types ...abi.Type) abi.Arguments {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		args[i] = abi.Argument{Type: t}
	}
	return args
}

// EncodeBatch packs a batch the way it travels on the wire: (uint8[] actions, bytes[] args).
func EncodeBatch(invs []Invocation) ([]byte, error) {
	actions := make([]uint8, len(invs))
	payloads := make([][]byte, len(invs))
	for i, inv := range invs {
		actions[i] = uint8(inv.Action)
		payloads[i] = inv.Args
	}
	return batchArgs.Pack(actions, payloads)
}

func DecodeBatch(data []byte) ([]Invocation, error) {
	vals, err := batchArgs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAction, err)
	}
	actions := vals[0].([]uint8)
	payloads := vals[1].([][]byte)
	if len(actions) != len(payloads) {
		return nil, fmt.Errorf("%w: %d actions, %d payloads", ErrMalformedAction, len(actions), len(payloads))
	}

	invs := make([]Invocation, len(actions))
	for i := range actions {
		invs[i] = Invocation{Action: Action(actions[i]), Args: payloads[i]}
	}
	return invs, nil
}

func EncodeUpdatePosition(a UpdatePositionArgs) (Invocation, error) {
	fees, err := packFees(a.Fee1, a.Fee2)
	if err != nil {
		return Invocation{}, err
	}
	vals := append([]any{a.Market, fixed.ToBig(a.Maker), fixed.ToBig(a.Long), fixed.ToBig(a.Short), fixed.ToBig(a.Collateral), a.Wrap}, fees...)
	return pack(ActionUpdatePosition, updatePositionArgs, vals...)
}

func DecodeUpdatePosition(data []byte) (UpdatePositionArgs, error) {
	v, err := unpack(updatePositionArgs, data)
	if err != nil {
		return UpdatePositionArgs{}, err
	}
	return UpdatePositionArgs{
		Market:     v[0].(common.Address),
		Maker:      fixed.FromBig(v[1].(*big.Int)),
		Long:       fixed.FromBig(v[2].(*big.Int)),
		Short:      fixed.FromBig(v[3].(*big.Int)),
		Collateral: fixed.FromBig(v[4].(*big.Int)),
		Wrap:       v[5].(bool),
		Fee1:       unpackFee(v[6:9]),
		Fee2:       unpackFee(v[9:12]),
	}, nil
}

func EncodeUpdateVault(a UpdateVaultArgs) (Invocation, error) {
	deposit, err := unsigned(a.Deposit)
	if err != nil {
		return Invocation{}, err
	}
	redeem, err := unsigned(a.Redeem)
	if err != nil {
		return Invocation{}, err
	}
	claim, err := unsigned(a.Claim)
	if err != nil {
		return Invocation{}, err
	}
	fees, err := packFees(a.Fee1, a.Fee2)
	if err != nil {
		return Invocation{}, err
	}
	vals := append([]any{a.Vault, deposit, redeem, claim, a.Wrap}, fees...)
	return pack(ActionUpdateVault, updateVaultArgs, vals...)
}

func DecodeUpdateVault(data []byte) (UpdateVaultArgs, error) {
	v, err := unpack(updateVaultArgs, data)
	if err != nil {
		return UpdateVaultArgs{}, err
	}
	return UpdateVaultArgs{
		Vault:   v[0].(common.Address),
		Deposit: fixed.FromBig(v[1].(*big.Int)),
		Redeem:  fixed.FromBig(v[2].(*big.Int)),
		Claim:   fixed.FromBig(v[3].(*big.Int)),
		Wrap:    v[4].(bool),
		Fee1:    unpackFee(v[5:8]),
		Fee2:    unpackFee(v[8:11]),
	}, nil
}

func EncodePlaceOrder(a PlaceOrderArgs) (Invocation, error) {
	terms, err := packTerms(a.Terms)
	if err != nil {
		return Invocation{}, err
	}
	return pack(ActionPlaceOrder, placeOrderArgs, append([]any{a.Market}, terms...)...)
}

func DecodePlaceOrder(data []byte) (PlaceOrderArgs, error) {
	v, err := unpack(placeOrderArgs, data)
	if err != nil {
		return PlaceOrderArgs{}, err
	}
	return PlaceOrderArgs{Market: v[0].(common.Address), Terms: unpackTerms(v[1:7])}, nil
}

func EncodeUpdateOrder(a UpdateOrderArgs) (Invocation, error) {
	terms, err := packTerms(a.Terms)
	if err != nil {
		return Invocation{}, err
	}
	vals := append([]any{a.Market}, terms...)
	return pack(ActionUpdateOrder, updateOrderArgs, append(vals, new(big.Int).SetUint64(a.OrderID))...)
}

func DecodeUpdateOrder(data []byte) (UpdateOrderArgs, error) {
	v, err := unpack(updateOrderArgs, data)
	if err != nil {
		return UpdateOrderArgs{}, err
	}
	id, err := orderID(v[7])
	if err != nil {
		return UpdateOrderArgs{}, err
	}
	return UpdateOrderArgs{Market: v[0].(common.Address), OrderID: id, Terms: unpackTerms(v[1:7])}, nil
}

func EncodeCancelOrder(a CancelOrderArgs) (Invocation, error) {
	return pack(ActionCancelOrder, cancelOrderArgs, a.Market, new(big.Int).SetUint64(a.OrderID))
}

func DecodeCancelOrder(data []byte) (CancelOrderArgs, error) {
	v, err := unpack(cancelOrderArgs, data)
	if err != nil {
		return CancelOrderArgs{}, err
	}
	id, err := orderID(v[1])
	if err != nil {
		return CancelOrderArgs{}, err
	}
	return CancelOrderArgs{Market: v[0].(common.Address), OrderID: id}, nil
}

func EncodeExecuteOrder(a ExecuteOrderArgs) (Invocation, error) {
	return pack(ActionExecuteOrder, executeOrderArgs, a.Account, a.Market, new(big.Int).SetUint64(a.OrderID))
}

func DecodeExecuteOrder(data []byte) (ExecuteOrderArgs, error) {
	v, err := unpack(executeOrderArgs, data)
	if err != nil {
		return ExecuteOrderArgs{}, err
	}
	id, err := orderID(v[2])
	if err != nil {
		return ExecuteOrderArgs{}, err
	}
	return ExecuteOrderArgs{Account: v[0].(common.Address), Market: v[1].(common.Address), OrderID: id}, nil
}

func EncodeLiquidate(a LiquidateArgs) (Invocation, error) {
	return pack(ActionLiquidate, liquidateArgs, a.Market, a.Account)
}

func DecodeLiquidate(data []byte) (LiquidateArgs, error) {
	v, err := unpack(liquidateArgs, data)
	if err != nil {
		return LiquidateArgs{}, err
	}
	return LiquidateArgs{Market: v[0].(common.Address), Account: v[1].(common.Address)}, nil
}

func EncodeApproveTarget(a ApproveTargetArgs) (Invocation, error) {
	return pack(ActionApproveTarget, approveTargetArgs, a.Target)
}

func DecodeApproveTarget(data []byte) (ApproveTargetArgs, error) {
	v, err := unpack(approveTargetArgs, data)
	if err != nil {
		return ApproveTargetArgs{}, err
	}
	return ApproveTargetArgs{Target: v[0].(common.Address)}, nil
}

func EncodeCommitPrice(a CommitPriceArgs) (Invocation, error) {
	return pack(ActionCommitPrice, commitPriceArgs,
		a.Market, new(big.Int).SetUint64(a.Version), fixed.ToBig(a.Price), a.RevertOnFailure)
}

func DecodeCommitPrice(data []byte) (CommitPriceArgs, error) {
	v, err := unpack(commitPriceArgs, data)
	if err != nil {
		return CommitPriceArgs{}, err
	}
	version := v[1].(*big.Int)
	if !version.IsUint64() {
		return CommitPriceArgs{}, fmt.Errorf("%w: version %s out of range", ErrMalformedAction, version)
	}
	return CommitPriceArgs{
		Market:          v[0].(common.Address),
		Version:         version.Uint64(),
		Price:           fixed.FromBig(v[2].(*big.Int)),
		RevertOnFailure: v[3].(bool),
	}, nil
}

func EncodeClaimFee(a ClaimFeeArgs) (Invocation, error) {
	return pack(ActionClaimFee, claimFeeArgs, a.Unwrap)
}

func DecodeClaimFee(data []byte) (ClaimFeeArgs, error) {
	v, err := unpack(claimFeeArgs, data)
	if err != nil {
		return ClaimFeeArgs{}, err
	}
	return ClaimFeeArgs{Unwrap: v[0].(bool)}, nil
}

func pack(action Action, args abi.Arguments, vals ...any) (Invocation, error) {
	data, err := args.Pack(vals...)
	if err != nil {
		return Invocation{}, fmt.Errorf("failed to encode %s: %w", action, err)
	}
	return Invocation{Action: action, Args: data}, nil
}

func unpack(args abi.Arguments, data []byte) ([]any, error) {
	v, err := args.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAction, err)
	}
	return v, nil
}

func unsigned(d decimal.Decimal) (*big.Int, error) {
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: negative unsigned amount %s", ErrMalformedAction, d)
	}
	return fixed.ToBig(d), nil
}

func packFees(fees ...InterfaceFee) ([]any, error) {
	out := make([]any, 0, 3*len(fees))
	for _, f := range fees {
		amount, err := unsigned(f.Amount)
		if err != nil {
			return nil, err
		}
		out = append(out, amount, f.Receiver, f.Unwrap)
	}
	return out, nil
}

func unpackFee(v []any) InterfaceFee {
	return InterfaceFee{
		Amount:   fixed.FromBig(v[0].(*big.Int)),
		Receiver: v[1].(common.Address),
		Unwrap:   v[2].(bool),
	}
}

func packTerms(t order.Terms) ([]any, error) {
	maxFee, err := unsigned(t.MaxFee)
	if err != nil {
		return nil, err
	}
	return []any{uint8(t.Side), uint8(t.Comparison), t.IsLimit, fixed.ToBig(t.TriggerPrice), fixed.ToBig(t.SizeDelta), maxFee}, nil
}

func unpackTerms(v []any) order.Terms {
	return order.Terms{
		Side:         order.Side(v[0].(uint8)),
		Comparison:   order.Comparison(v[1].(uint8)),
		IsLimit:      v[2].(bool),
		TriggerPrice: fixed.FromBig(v[3].(*big.Int)),
		SizeDelta:    fixed.FromBig(v[4].(*big.Int)),
		MaxFee:       fixed.FromBig(v[5].(*big.Int)),
	}
}

func orderID(v any) (uint64, error) {
	id := v.(*big.Int)
	if !id.IsUint64() {
		return 0, fmt.Errorf("%w: order id %s out of range", ErrMalformedAction, id)
	}
	return id.Uint64(), nil
}
