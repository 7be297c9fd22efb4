package collateral

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/state"
)

var (
	alice       = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	bob         = common.HexToAddress("0xBB00000000000000000000000000000000000000")
	batcherAddr = common.HexToAddress("0xBA00000000000000000000000000000000000000")
	reserveAddr = common.HexToAddress("0x5E00000000000000000000000000000000000000")
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestStore(t *testing.T) *state.Store {
	t.Helper()
	s, err := state.Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func balance(t *testing.T, txn *state.Txn, token, holder common.Address) decimal.Decimal {
	t.Helper()
	b, err := Ledger{}.Balance(txn, token, holder)
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	return b
}

func TestLedgerTransfer(t *testing.T) {
	s := newTestStore(t)
	var l Ledger

	s.Update(func(txn *state.Txn) error {
		l.Mint(txn, DSU, alice, d("100"))
		if err := l.Transfer(txn, DSU, alice, bob, d("40")); err != nil {
			t.Fatalf("transfer failed: %v", err)
		}
		if err := l.Transfer(txn, DSU, alice, bob, d("61")); !errors.Is(err, ErrInsufficientBalance) {
			t.Errorf("overdraft: err = %v", err)
		}
		if err := l.Transfer(txn, DSU, alice, bob, d("-1")); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("negative: err = %v", err)
		}
		if got := balance(t, txn, DSU, alice); !got.Equal(d("60")) {
			t.Errorf("alice = %s, want 60", got)
		}
		if got := balance(t, txn, DSU, bob); !got.Equal(d("40")) {
			t.Errorf("bob = %s, want 40", got)
		}
		return nil
	})
}

func TestLedgerTransferFrom(t *testing.T) {
	s := newTestStore(t)
	var l Ledger

	s.Update(func(txn *state.Txn) error {
		l.Mint(txn, DSU, alice, d("100"))

		if err := l.TransferFrom(txn, DSU, bob, alice, bob, d("1")); !errors.Is(err, ErrInsufficientAllowance) {
			t.Errorf("no allowance: err = %v", err)
		}

		l.Approve(txn, DSU, alice, bob, d("30"))
		if err := l.TransferFrom(txn, DSU, bob, alice, bob, d("20")); err != nil {
			t.Fatalf("transferFrom failed: %v", err)
		}
		left, _ := l.Allowance(txn, DSU, alice, bob)
		if !left.Equal(d("10")) {
			t.Errorf("allowance = %s, want 10", left)
		}

		l.Approve(txn, DSU, alice, bob, MaxAllowance)
		l.TransferFrom(txn, DSU, bob, alice, bob, d("50"))
		left, _ = l.Allowance(txn, DSU, alice, bob)
		if !left.Equal(MaxAllowance) {
			t.Errorf("max allowance decremented to %s", left)
		}
		return nil
	})
}

func fund(t *testing.T, s *state.Store, batcherDSU, batcherUSDC, reserveUSDC string) {
	t.Helper()
	var l Ledger
	s.Update(func(txn *state.Txn) error {
		l.Mint(txn, DSU, batcherAddr, d(batcherDSU))
		l.Mint(txn, USDC, batcherAddr, d(batcherUSDC))
		l.Mint(txn, USDC, reserveAddr, d(reserveUSDC))
		l.Mint(txn, DSU, reserveAddr, d("0"))
		l.Mint(txn, USDC, alice, d("1000"))
		l.Mint(txn, DSU, alice, d("1000"))
		return nil
	})
}

func newRouter(withBatcher bool, redemption string) *Router {
	reserve := &LocalReserve{Address: reserveAddr, RedemptionPrice: d(redemption)}
	if !withBatcher {
		return NewRouter(nil, reserve, nil)
	}
	return NewRouter(&LocalBatcher{Address: batcherAddr}, reserve, nil)
}

func TestRouterPrefersBatcher(t *testing.T) {
	s := newTestStore(t)
	fund(t, s, "500", "500", "500")
	r := newRouter(true, "1")

	s.Update(func(txn *state.Txn) error {
		out, path, err := r.Wrap(txn, alice, d("100"))
		if err != nil || path != PathBatcher || !out.Equal(d("100")) {
			t.Fatalf("wrap: out=%s path=%s err=%v", out, path, err)
		}
		if got := balance(t, txn, DSU, batcherAddr); !got.Equal(d("400")) {
			t.Errorf("batcher DSU = %s, want 400", got)
		}

		out, path, err = r.Unwrap(txn, alice, d("100"))
		if err != nil || path != PathBatcher || !out.Equal(d("100")) {
			t.Fatalf("unwrap: out=%s path=%s err=%v", out, path, err)
		}
		if got := balance(t, txn, USDC, alice); !got.Equal(d("1000")) {
			t.Errorf("alice USDC = %s, want 1000", got)
		}
		return nil
	})
}

func TestRouterUnwrapFallsBackToReserve(t *testing.T) {
	s := newTestStore(t)
	fund(t, s, "500", "50", "500")
	r := newRouter(true, "0.99")

	s.Update(func(txn *state.Txn) error {
		out, path, err := r.Unwrap(txn, alice, d("100"))
		if err != nil {
			t.Fatalf("unwrap failed: %v", err)
		}
		if path != PathReserve {
			t.Errorf("path = %s, want reserve", path)
		}
		if !out.Equal(d("99")) {
			t.Errorf("out = %s, want 99 at redemption price 0.99", out)
		}

		// Batcher untouched, reserve paid out, DSU burned.
		if got := balance(t, txn, USDC, batcherAddr); !got.Equal(d("50")) {
			t.Errorf("batcher USDC = %s, want 50", got)
		}
		if got := balance(t, txn, DSU, batcherAddr); !got.Equal(d("500")) {
			t.Errorf("batcher DSU = %s, want 500", got)
		}
		if got := balance(t, txn, USDC, reserveAddr); !got.Equal(d("401")) {
			t.Errorf("reserve USDC = %s, want 401", got)
		}
		if got := balance(t, txn, DSU, alice); !got.Equal(d("900")) {
			t.Errorf("alice DSU = %s, want 900", got)
		}
		if got := balance(t, txn, USDC, alice); !got.Equal(d("1099")) {
			t.Errorf("alice USDC = %s, want 1099", got)
		}
		return nil
	})
}

func TestRouterWithoutBatcher(t *testing.T) {
	s := newTestStore(t)
	fund(t, s, "500", "500", "500")
	r := newRouter(false, "1")

	s.Update(func(txn *state.Txn) error {
		_, path, err := r.Wrap(txn, alice, d("10"))
		if err != nil || path != PathReserve {
			t.Errorf("wrap: path=%s err=%v", path, err)
		}
		_, path, err = r.Unwrap(txn, alice, d("10"))
		if err != nil || path != PathReserve {
			t.Errorf("unwrap: path=%s err=%v", path, err)
		}
		if got := balance(t, txn, DSU, batcherAddr); !got.Equal(d("500")) {
			t.Errorf("batcher used without being configured: DSU = %s", got)
		}
		return nil
	})
}

func TestReserveInsufficientLiquidity(t *testing.T) {
	s := newTestStore(t)
	fund(t, s, "0", "0", "5")
	r := newRouter(true, "1")

	s.Update(func(txn *state.Txn) error {
		if _, _, err := r.Unwrap(txn, alice, d("10")); !errors.Is(err, ErrInsufficientLiquidity) {
			t.Errorf("err = %v, want ErrInsufficientLiquidity", err)
		}
		return nil
	})
}
