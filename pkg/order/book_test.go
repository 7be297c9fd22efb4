package order

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/state"
)

var (
	alice  = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	bob    = common.HexToAddress("0xBB00000000000000000000000000000000000000")
	market = common.HexToAddress("0x1000000000000000000000000000000000000001")
	other  = common.HexToAddress("0x1000000000000000000000000000000000000002")
)

func newTestStore(t *testing.T) *state.Store {
	t.Helper()
	s, err := state.Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func longLimit() Terms {
	return Terms{
		IsLimit:      true,
		Side:         SideLong,
		Comparison:   AboveMarket,
		TriggerPrice: d("1200"),
		SizeDelta:    d("1.5"),
		MaxFee:       d("10"),
	}
}

func TestPlaceReadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	book := NewBook(DefaultMaxOpenPerAccount, nil)
	nonce := NewNonce()
	terms := longLimit()

	s.Update(func(txn *state.Txn) error {
		placed, err := book.Place(txn, nonce, alice, market, terms)
		if err != nil {
			t.Fatalf("place failed: %v", err)
		}

		got, err := book.Read(txn, alice, market, placed.ID)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if got.Status != StatusOpen {
			t.Errorf("status = %s, want open", got.Status)
		}
		if got.Owner != alice || got.Market != market || got.ID != placed.ID {
			t.Errorf("identity mismatch: %+v", got)
		}
		gt := got.Terms()
		if gt.IsLimit != terms.IsLimit || gt.Side != terms.Side || gt.Comparison != terms.Comparison ||
			!gt.TriggerPrice.Equal(terms.TriggerPrice) || !gt.SizeDelta.Equal(terms.SizeDelta) ||
			!gt.MaxFee.Equal(terms.MaxFee) {
			t.Errorf("terms = %+v, want %+v", gt, terms)
		}
		return nil
	})
}

func TestCapacityExceeded(t *testing.T) {
	s := newTestStore(t)
	book := NewBook(DefaultMaxOpenPerAccount, nil)
	nonce := NewNonce()

	var ids []uint64
	for i := 0; i < DefaultMaxOpenPerAccount; i++ {
		s.Update(func(txn *state.Txn) error {
			o, err := book.Place(txn, nonce, alice, market, longLimit())
			if err != nil {
				t.Fatalf("place %d failed: %v", i, err)
			}
			ids = append(ids, o.ID)
			return nil
		})
	}

	err := s.Update(func(txn *state.Txn) error {
		_, err := book.Place(txn, nonce, alice, market, longLimit())
		return err
	})
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("err = %v, want ErrCapacityExceeded", err)
	}

	s.View(func(txn *state.Txn) error {
		n, _ := book.OpenCount(txn, alice, market)
		if n != DefaultMaxOpenPerAccount {
			t.Errorf("open count = %d, want %d", n, DefaultMaxOpenPerAccount)
		}
		for _, id := range ids {
			o, err := book.Read(txn, alice, market, id)
			if err != nil || !o.IsOpen() {
				t.Errorf("order %d disturbed: %v %+v", id, err, o)
			}
		}

		// Capacity is per (owner, market).
		if _, err := book.Place(txn, nonce, alice, other, longLimit()); err != nil {
			t.Errorf("other market should have capacity: %v", err)
		}
		if _, err := book.Place(txn, nonce, bob, market, longLimit()); err != nil {
			t.Errorf("other owner should have capacity: %v", err)
		}
		return nil
	})
}

func TestIDsStrictlyIncreasingAcrossKeys(t *testing.T) {
	s := newTestStore(t)
	book := NewBook(DefaultMaxOpenPerAccount, nil)
	nonce := NewNonce()

	pairs := [][2]common.Address{{alice, market}, {bob, market}, {alice, other}, {bob, other}, {alice, market}}
	var last uint64
	for _, p := range pairs {
		s.Update(func(txn *state.Txn) error {
			o, err := book.Place(txn, nonce, p[0], p[1], longLimit())
			if err != nil {
				t.Fatalf("place failed: %v", err)
			}
			if o.ID <= last {
				t.Errorf("id %d not greater than previous %d", o.ID, last)
			}
			last = o.ID
			return nil
		})
	}

	// A cancelled id is never handed out again.
	s.Update(func(txn *state.Txn) error {
		book.Cancel(txn, alice, market, last)
		o, _ := book.Place(txn, nonce, alice, market, longLimit())
		if o.ID == last {
			t.Errorf("id %d reused", last)
		}
		return nil
	})
}

func TestPlaceInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Terms)
	}{
		{"zero max fee", func(tm *Terms) { tm.MaxFee = decimal.Zero }},
		{"negative max fee", func(tm *Terms) { tm.MaxFee = d("-1") }},
		{"bad side", func(tm *Terms) { tm.Side = Side(9) }},
		{"bad comparison", func(tm *Terms) { tm.Comparison = Comparison(7) }},
		{"collateral close positive delta", func(tm *Terms) {
			tm.Side = SideCollateralClose
			tm.SizeDelta = d("5")
		}},
		{"zero trigger", func(tm *Terms) { tm.TriggerPrice = decimal.Zero }},
		{"zero long delta", func(tm *Terms) { tm.SizeDelta = decimal.Zero }},
		{"zero short delta", func(tm *Terms) {
			tm.Side = SideShort
			tm.SizeDelta = decimal.Zero
		}},
		{"zero maker delta", func(tm *Terms) {
			tm.Side = SideMaker
			tm.SizeDelta = decimal.Zero
		}},
	}

	s := newTestStore(t)
	book := NewBook(DefaultMaxOpenPerAccount, nil)
	nonce := NewNonce()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			terms := longLimit()
			tt.mutate(&terms)
			s.View(func(txn *state.Txn) error {
				if _, err := book.Place(txn, nonce, alice, market, terms); !errors.Is(err, ErrInvalidOrder) {
					t.Errorf("err = %v, want ErrInvalidOrder", err)
				}
				if n, _ := nonce.Current(txn); n != 0 {
					t.Errorf("nonce advanced to %d on invalid order", n)
				}
				return nil
			})
		})
	}
}

func TestUpdatePreservesIdentity(t *testing.T) {
	s := newTestStore(t)
	book := NewBook(DefaultMaxOpenPerAccount, nil)
	nonce := NewNonce()

	s.Update(func(txn *state.Txn) error {
		o, _ := book.Place(txn, nonce, alice, market, longLimit())

		next := longLimit()
		next.TriggerPrice = d("1300")
		next.MaxFee = d("20")
		updated, err := book.Update(txn, alice, market, o.ID, next)
		if err != nil {
			t.Fatalf("update failed: %v", err)
		}
		if updated.ID != o.ID || updated.Owner != alice || updated.Status != StatusOpen {
			t.Errorf("identity changed: %+v", updated)
		}
		if !updated.TriggerPrice.Equal(d("1300")) || !updated.MaxFee.Equal(d("20")) {
			t.Errorf("terms not updated: %+v", updated)
		}

		if _, err := book.Update(txn, alice, market, 999, next); !errors.Is(err, ErrOrderNotFound) {
			t.Errorf("err = %v, want ErrOrderNotFound", err)
		}

		book.Cancel(txn, alice, market, o.ID)
		if _, err := book.Update(txn, alice, market, o.ID, next); !errors.Is(err, ErrOrderNotFound) {
			t.Errorf("update of cancelled order: err = %v, want ErrOrderNotFound", err)
		}
		return nil
	})
}

func TestCancelIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	book := NewBook(DefaultMaxOpenPerAccount, nil)
	nonce := NewNonce()

	s.Update(func(txn *state.Txn) error {
		o, _ := book.Place(txn, nonce, alice, market, longLimit())
		book.Place(txn, nonce, alice, market, longLimit())

		outcome, err := book.TryCancel(txn, alice, market, o.ID)
		if err != nil || outcome != Cancelled {
			t.Fatalf("first cancel: outcome=%v err=%v", outcome, err)
		}
		if n, _ := book.OpenCount(txn, alice, market); n != 1 {
			t.Errorf("open count = %d, want 1", n)
		}

		outcome, err = book.TryCancel(txn, alice, market, o.ID)
		if err != nil || outcome != NotFound {
			t.Errorf("second cancel: outcome=%v err=%v", outcome, err)
		}
		if err := book.Cancel(txn, alice, market, 12345); err != nil {
			t.Errorf("cancel of missing order errored: %v", err)
		}
		if n, _ := book.OpenCount(txn, alice, market); n != 1 {
			t.Errorf("open count changed by no-op cancel: %d", n)
		}

		got, _ := book.Read(txn, alice, market, o.ID)
		if got.Status != StatusCancelled {
			t.Errorf("status = %s, want cancelled", got.Status)
		}
		return nil
	})
}

func TestMarkExecutedOnce(t *testing.T) {
	s := newTestStore(t)
	book := NewBook(DefaultMaxOpenPerAccount, nil)
	nonce := NewNonce()

	s.Update(func(txn *state.Txn) error {
		o, _ := book.Place(txn, nonce, alice, market, longLimit())
		if err := book.MarkExecuted(txn, o); err != nil {
			t.Fatalf("mark executed failed: %v", err)
		}
		if err := book.MarkExecuted(txn, o); !errors.Is(err, ErrOrderNotFound) {
			t.Errorf("second mark: err = %v", err)
		}
		if err := book.Cancel(txn, alice, market, o.ID); err != nil {
			t.Errorf("cancel executed order: %v", err)
		}
		if n, _ := book.OpenCount(txn, alice, market); n != 0 {
			t.Errorf("open count = %d, want 0", n)
		}
		got, _ := book.Read(txn, alice, market, o.ID)
		if got.Status != StatusExecuted {
			t.Errorf("status = %s, want executed", got.Status)
		}
		return nil
	})
}

func TestForEachOpen(t *testing.T) {
	s := newTestStore(t)
	book := NewBook(DefaultMaxOpenPerAccount, nil)
	nonce := NewNonce()

	s.Update(func(txn *state.Txn) error {
		a, _ := book.Place(txn, nonce, alice, market, longLimit())
		book.Place(txn, nonce, bob, other, longLimit())
		book.Cancel(txn, alice, market, a.ID)

		var seen []uint64
		book.ForEachOpen(txn, func(o *TriggerOrder) bool {
			seen = append(seen, o.ID)
			return true
		})
		if len(seen) != 1 || seen[0] != 2 {
			t.Errorf("open orders = %v, want [2]", seen)
		}
		return nil
	})
}
