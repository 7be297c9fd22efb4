package oracle

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/state"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/util"
)

var eth = common.HexToAddress("0x1000000000000000000000000000000000000001")

func newTestStore(t *testing.T) *state.Store {
	t.Helper()
	s, err := state.Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCommitAndRead(t *testing.T) {
	s := newTestStore(t)
	clock := util.NewManualClock(time.Unix(1_700_000_000, 0))
	o := New(time.Minute, clock, nil)

	s.Update(func(txn *state.Txn) error {
		p, err := o.LatestPrice(txn, eth)
		if err != nil || p.Valid {
			t.Fatalf("empty market: price=%+v err=%v", p, err)
		}

		if err := o.Commit(txn, eth, 1, decimal.NewFromInt(1150)); err != nil {
			t.Fatalf("commit failed: %v", err)
		}
		p, _ = o.LatestPrice(txn, eth)
		if !p.Valid || !p.Value.Equal(decimal.NewFromInt(1150)) || p.Version != 1 {
			t.Errorf("price = %+v", p)
		}
		return nil
	})

	clock.Advance(2 * time.Minute)
	s.View(func(txn *state.Txn) error {
		p, _ := o.LatestPrice(txn, eth)
		if p.Valid {
			t.Error("price should be stale")
		}
		if !p.Value.Equal(decimal.NewFromInt(1150)) {
			t.Errorf("stale value lost: %s", p.Value)
		}
		return nil
	})
}

func TestCommitVersionRace(t *testing.T) {
	s := newTestStore(t)
	o := New(0, nil, nil)

	s.Update(func(txn *state.Txn) error {
		if err := o.Commit(txn, eth, 0, decimal.NewFromInt(1)); !errors.Is(err, ErrStaleVersion) {
			t.Errorf("version 0: err = %v", err)
		}
		if err := o.Commit(txn, eth, 10, decimal.NewFromInt(1200)); err != nil {
			t.Fatalf("commit failed: %v", err)
		}
		if err := o.Commit(txn, eth, 10, decimal.NewFromInt(1201)); !errors.Is(err, ErrVersionAlreadyCommitted) {
			t.Errorf("same version: err = %v", err)
		}
		if err := o.Commit(txn, eth, 9, decimal.NewFromInt(1201)); !errors.Is(err, ErrStaleVersion) {
			t.Errorf("older version: err = %v", err)
		}
		v, _ := o.CurrentVersion(txn, eth)
		if v != 10 {
			t.Errorf("version = %d, want 10", v)
		}
		return nil
	})
}
