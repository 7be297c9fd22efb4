package settlement

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/collateral"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/oracle"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/state"
)

var (
	alice    = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	invoker  = common.HexToAddress("0x1100000000000000000000000000000000000000")
	referrer = common.HexToAddress("0xEE00000000000000000000000000000000000000")
	ethMkt   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	vaultA   = common.HexToAddress("0x2000000000000000000000000000000000000001")
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	store  *state.Store
	oracle *oracle.Oracle
	engine *Engine
	ledger collateral.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := state.Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	o := oracle.New(0, nil, nil)
	f := &fixture{store: s, oracle: o, engine: NewEngine(o, nil)}

	err = s.Update(func(txn *state.Txn) error {
		if err := f.engine.RegisterMarket(txn, Market{
			Address:          ethMkt,
			Name:             "ETH",
			MarginRatio:      d("0.1"),
			MaintenanceRatio: d("0.05"),
		}); err != nil {
			return err
		}
		f.ledger.Mint(txn, collateral.DSU, invoker, d("10000"))
		f.ledger.Mint(txn, collateral.DSU, ethMkt, d("10000"))
		f.ledger.Approve(txn, collateral.DSU, invoker, ethMkt, collateral.MaxAllowance)
		return o.Commit(txn, ethMkt, 1, d("1000"))
	})
	if err != nil {
		t.Fatalf("fixture setup failed: %v", err)
	}
	return f
}

func TestRegisterMarket(t *testing.T) {
	f := newFixture(t)
	f.store.Update(func(txn *state.Txn) error {
		if err := f.engine.RegisterMarket(txn, Market{Address: ethMkt, MarginRatio: d("0.1"), MaintenanceRatio: d("0.05")}); err == nil {
			t.Error("duplicate market accepted")
		}
		other := common.HexToAddress("0x1000000000000000000000000000000000000009")
		if err := f.engine.RegisterMarket(txn, Market{Address: other, MarginRatio: d("0.01"), MaintenanceRatio: d("0.05")}); err == nil {
			t.Error("margin below maintenance accepted")
		}
		ok, _ := f.engine.IsMarket(txn, ethMkt)
		if !ok {
			t.Error("registered market not found")
		}
		ok, _ = f.engine.IsMarket(txn, other)
		if ok {
			t.Error("rejected market registered")
		}
		ms, _ := f.engine.Markets(txn)
		if len(ms) != 1 || ms[0].Name != "ETH" {
			t.Errorf("markets = %+v", ms)
		}
		return nil
	})
}

func TestDepositRequiresApproval(t *testing.T) {
	f := newFixture(t)
	f.store.Update(func(txn *state.Txn) error {
		f.ledger.Mint(txn, collateral.DSU, alice, d("100"))
		err := f.engine.Update(txn, alice, alice, ethMkt, Delta{Collateral: d("100")}, common.Address{})
		if !errors.Is(err, collateral.ErrInsufficientAllowance) {
			t.Errorf("err = %v, want ErrInsufficientAllowance", err)
		}
		return nil
	})
}

func TestOpenIncreaseReduceClose(t *testing.T) {
	f := newFixture(t)
	f.store.Update(func(txn *state.Txn) error {
		if err := f.engine.Update(txn, invoker, alice, ethMkt, Delta{Long: d("1"), Collateral: d("500")}, referrer); err != nil {
			t.Fatalf("open failed: %v", err)
		}
		f.oracle.Commit(txn, ethMkt, 2, d("1200"))
		if err := f.engine.Update(txn, invoker, alice, ethMkt, Delta{Long: d("1")}, common.Address{}); err != nil {
			t.Fatalf("increase failed: %v", err)
		}
		pos, _ := f.engine.Position(txn, alice, ethMkt)
		if !pos.EntryPrice.Equal(d("1100")) {
			t.Errorf("entry = %s, want 1100", pos.EntryPrice)
		}

		f.oracle.Commit(txn, ethMkt, 3, d("1300"))
		if err := f.engine.Update(txn, invoker, alice, ethMkt, Delta{Long: d("-1")}, common.Address{}); err != nil {
			t.Fatalf("reduce failed: %v", err)
		}
		pos, _ = f.engine.Position(txn, alice, ethMkt)
		if !pos.RealizedPnL.Equal(d("200")) || !pos.Collateral.Equal(d("700")) {
			t.Errorf("after reduce: pnl=%s collateral=%s", pos.RealizedPnL, pos.Collateral)
		}

		if err := f.engine.Update(txn, invoker, alice, ethMkt, Delta{Long: d("-1"), Collateral: d("-900")}, common.Address{}); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		pos, _ = f.engine.Position(txn, alice, ethMkt)
		if !pos.IsEmpty() || !pos.Collateral.IsZero() {
			t.Errorf("after close: %+v", pos)
		}

		ref, _ := f.engine.Referrer(txn, alice, ethMkt)
		if ref != referrer {
			t.Errorf("referrer = %s, want %s", ref.Hex(), referrer.Hex())
		}
		return nil
	})
}

func TestUpdateRejections(t *testing.T) {
	tests := []struct {
		name  string
		delta Delta
		want  error
	}{
		{"two sides", Delta{Long: d("1"), Short: d("1"), Collateral: d("1000")}, ErrInvalidPosition},
		{"negative side", Delta{Short: d("-1"), Collateral: d("1000")}, ErrInvalidPosition},
		{"under margin", Delta{Long: d("10"), Collateral: d("500")}, ErrInsufficientMargin},
		{"over withdraw", Delta{Collateral: d("-1")}, ErrInsufficientCollateral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.store.View(func(txn *state.Txn) error {
				err := f.engine.Update(txn, invoker, alice, ethMkt, tt.delta, common.Address{})
				if !errors.Is(err, tt.want) {
					t.Errorf("err = %v, want %v", err, tt.want)
				}
				return nil
			})
		})
	}
}

func TestUpdateUnknownMarketAndStalePrice(t *testing.T) {
	f := newFixture(t)
	f.store.View(func(txn *state.Txn) error {
		unknown := common.HexToAddress("0x1000000000000000000000000000000000000fff")
		if err := f.engine.Update(txn, invoker, alice, unknown, Delta{}, common.Address{}); !errors.Is(err, ErrUnknownMarket) {
			t.Errorf("err = %v, want ErrUnknownMarket", err)
		}
		return nil
	})

	stale := NewEngine(oracle.New(1, nil, nil), nil)
	f.store.View(func(txn *state.Txn) error {
		// Committed at setup; any positive max age has long passed.
		err := stale.Update(txn, invoker, alice, ethMkt, Delta{Long: d("1"), Collateral: d("500")}, common.Address{})
		if !errors.Is(err, ErrPriceUnavailable) {
			t.Errorf("err = %v, want ErrPriceUnavailable", err)
		}
		return nil
	})
}

func TestLiquidate(t *testing.T) {
	f := newFixture(t)
	f.store.Update(func(txn *state.Txn) error {
		if err := f.engine.Update(txn, invoker, alice, ethMkt, Delta{Short: d("1"), Collateral: d("100")}, common.Address{}); err != nil {
			t.Fatalf("open failed: %v", err)
		}
		if err := f.engine.Liquidate(txn, invoker, alice, ethMkt); !errors.Is(err, ErrNotLiquidatable) {
			t.Errorf("healthy: err = %v", err)
		}

		// Short loses 60: equity 40 < 1060 * 0.05 = 53.
		f.oracle.Commit(txn, ethMkt, 2, d("1060"))
		if err := f.engine.Liquidate(txn, invoker, alice, ethMkt); err != nil {
			t.Fatalf("liquidate failed: %v", err)
		}
		pos, _ := f.engine.Position(txn, alice, ethMkt)
		if !pos.IsEmpty() || !pos.Collateral.Equal(d("40")) {
			t.Errorf("after liquidation: %+v", pos)
		}
		return nil
	})
}
