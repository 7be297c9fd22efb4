package keeperbot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/invoker"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/order"
)

var (
	keeperAddr = common.HexToAddress("0xCC00000000000000000000000000000000000000")
	owner      = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	market     = common.HexToAddress("0x1000000000000000000000000000000000000001")
)

type fakeExecutor struct {
	orders    []*order.TriggerOrder
	ready     map[uint64]bool
	failWith  map[uint64]error
	executed  []uint64
	callers   []common.Address
	scanLimit int
}

func (f *fakeExecutor) OpenOrders(limit int) ([]*order.TriggerOrder, error) {
	f.scanLimit = limit
	return f.orders, nil
}

func (f *fakeExecutor) CanExecuteOrder(_, _ common.Address, id uint64) (bool, error) {
	return f.ready[id], nil
}

func (f *fakeExecutor) ExecuteOrder(_ context.Context, keeper, _, _ common.Address, id uint64) (*invoker.ActionOutcome, error) {
	if err := f.failWith[id]; err != nil {
		return nil, err
	}
	f.executed = append(f.executed, id)
	f.callers = append(f.callers, keeper)
	return &invoker.ActionOutcome{Action: invoker.ActionExecuteOrder, OrderID: id, KeeperFee: decimal.New(1, -1)}, nil
}

func openOrder(id uint64) *order.TriggerOrder {
	return &order.TriggerOrder{Owner: owner, Market: market, ID: id, Status: order.StatusOpen}
}

func TestTickExecutesOnlySatisfiedOrders(t *testing.T) {
	exec := &fakeExecutor{
		orders:   []*order.TriggerOrder{openOrder(1), openOrder(2), openOrder(3)},
		ready:    map[uint64]bool{1: true, 3: true},
		failWith: map[uint64]error{3: invoker.ErrCannotExecute},
	}
	bot := New(Config{Keeper: keeperAddr, MaxPerTick: 50}, exec, nil)

	if n := bot.Tick(context.Background()); n != 1 {
		t.Fatalf("Tick executed %d, want 1", n)
	}
	if len(exec.executed) != 1 || exec.executed[0] != 1 {
		t.Errorf("executed = %v, want [1]", exec.executed)
	}
	if exec.callers[0] != keeperAddr {
		t.Errorf("caller = %s, want keeper", exec.callers[0].Hex())
	}
	if exec.scanLimit != 50 {
		t.Errorf("scan limit = %d, want 50", exec.scanLimit)
	}
}

func TestTickStopsOnCancelledContext(t *testing.T) {
	exec := &fakeExecutor{
		orders: []*order.TriggerOrder{openOrder(1)},
		ready:  map[uint64]bool{1: true},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if n := New(Config{Keeper: keeperAddr}, exec, nil).Tick(ctx); n != 0 {
		t.Errorf("Tick executed %d after cancel, want 0", n)
	}
}

func TestRunStopsWithContext(t *testing.T) {
	exec := &fakeExecutor{
		orders:   []*order.TriggerOrder{openOrder(1)},
		ready:    map[uint64]bool{1: true},
		failWith: map[uint64]error{1: errors.New("boom")},
	}
	bot := New(Config{Keeper: keeperAddr, Interval: time.Millisecond}, exec, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		bot.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
