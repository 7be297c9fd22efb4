package invoker

import (
	"errors"
	"testing"

	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/order"
)

func TestUpdatePositionCodec(t *testing.T) {
	in := UpdatePositionArgs{
		Market:     ethMkt,
		Maker:      d("0"),
		Long:       d("1.5"),
		Short:      d("0"),
		Collateral: d("-250.123456"),
		Wrap:       true,
		Fee1:       InterfaceFee{Amount: d("1.25"), Receiver: ui},
		Fee2:       InterfaceFee{Amount: d("0.5"), Receiver: wallet, Unwrap: true},
	}
	inv, err := EncodeUpdatePosition(in)
	if err != nil {
		t.Fatalf("EncodeUpdatePosition failed: %v", err)
	}
	if inv.Action != ActionUpdatePosition {
		t.Fatalf("action = %s, want UpdatePosition", inv.Action)
	}

	out, err := DecodeUpdatePosition(inv.Args)
	if err != nil {
		t.Fatalf("DecodeUpdatePosition failed: %v", err)
	}
	if out.Market != in.Market || !out.Long.Equal(in.Long) || !out.Collateral.Equal(in.Collateral) || !out.Wrap {
		t.Errorf("decoded = %+v, want %+v", out, in)
	}
	if !out.Fee1.Amount.Equal(in.Fee1.Amount) || out.Fee1.Receiver != ui || out.Fee1.Unwrap {
		t.Errorf("fee1 = %+v, want %+v", out.Fee1, in.Fee1)
	}
	if !out.Fee2.Amount.Equal(in.Fee2.Amount) || out.Fee2.Receiver != wallet || !out.Fee2.Unwrap {
		t.Errorf("fee2 = %+v, want %+v", out.Fee2, in.Fee2)
	}
}

func TestPlaceOrderCodecKeepsSignedTrigger(t *testing.T) {
	terms := order.Terms{
		IsLimit:      false,
		Side:         order.SideShort,
		Comparison:   order.BelowMarket,
		TriggerPrice: d("-1100"),
		SizeDelta:    d("-2"),
		MaxFee:       d("3"),
	}
	inv, err := EncodePlaceOrder(PlaceOrderArgs{Market: ethMkt, Terms: terms})
	if err != nil {
		t.Fatalf("EncodePlaceOrder failed: %v", err)
	}
	out, err := DecodePlaceOrder(inv.Args)
	if err != nil {
		t.Fatalf("DecodePlaceOrder failed: %v", err)
	}
	if out.Terms.Side != terms.Side || out.Terms.Comparison != terms.Comparison || out.Terms.IsLimit {
		t.Errorf("terms = %+v, want %+v", out.Terms, terms)
	}
	if !out.Terms.TriggerPrice.Equal(terms.TriggerPrice) || !out.Terms.SizeDelta.Equal(terms.SizeDelta) {
		t.Errorf("trigger/size = %s/%s, want -1100/-2", out.Terms.TriggerPrice, out.Terms.SizeDelta)
	}
}

func TestBatchCodec(t *testing.T) {
	approve, _ := EncodeApproveTarget(ApproveTargetArgs{Target: ethMkt})
	claim, _ := EncodeClaimFee(ClaimFeeArgs{Unwrap: true})

	data, err := EncodeBatch([]Invocation{approve, claim})
	if err != nil {
		t.Fatalf("EncodeBatch failed: %v", err)
	}
	invs, err := DecodeBatch(data)
	if err != nil {
		t.Fatalf("DecodeBatch failed: %v", err)
	}
	if len(invs) != 2 || invs[0].Action != ActionApproveTarget || invs[1].Action != ActionClaimFee {
		t.Fatalf("decoded batch = %+v", invs)
	}
	if a, err := DecodeClaimFee(invs[1].Args); err != nil || !a.Unwrap {
		t.Errorf("claim args = %+v, %v; want unwrap", a, err)
	}

	if _, err := DecodeBatch([]byte{0xde, 0xad}); !errors.Is(err, ErrMalformedAction) {
		t.Errorf("DecodeBatch garbage error = %v, want ErrMalformedAction", err)
	}
}

func TestNegativeUnsignedRejected(t *testing.T) {
	_, err := EncodeUpdateVault(UpdateVaultArgs{Vault: vaultA, Deposit: d("-1")})
	if !errors.Is(err, ErrMalformedAction) {
		t.Errorf("EncodeUpdateVault error = %v, want ErrMalformedAction", err)
	}
}

func TestParseAction(t *testing.T) {
	for a := ActionUpdatePosition; a <= ActionClaimFee; a++ {
		got, err := ParseAction(a.String())
		if err != nil || got != a {
			t.Errorf("ParseAction(%q) = %v, %v", a.String(), got, err)
		}
	}
	if _, err := ParseAction("Teleport"); !errors.Is(err, ErrMalformedAction) {
		t.Errorf("ParseAction unknown error = %v, want ErrMalformedAction", err)
	}
	if Action(0).Valid() {
		t.Error("zero action reported valid")
	}
}
