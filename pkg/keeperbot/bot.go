// Package keeperbot runs an in-process keeper that executes trigger orders
// as soon as their condition holds.
package keeperbot

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/invoker"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/order"
)

// Executor is the slice of the dispatcher the bot drives.
type Executor interface {
	OpenOrders(limit int) ([]*order.TriggerOrder, error)
	CanExecuteOrder(owner, market common.Address, id uint64) (bool, error)
	ExecuteOrder(ctx context.Context, keeper, owner, market common.Address, id uint64) (*invoker.ActionOutcome, error)
}

type Config struct {
	Interval time.Duration
	// Keeper is the caller of every execution and receives its fee.
	Keeper common.Address
	// MaxPerTick bounds how many orders one tick scans; 0 scans all.
	MaxPerTick int
}

type Bot struct {
	cfg    Config
	exec   Executor
	logger *zap.Logger
}

func New(cfg Config, exec Executor, logger *zap.Logger) *Bot {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{cfg: cfg, exec: exec, logger: logger}
}

// Run scans the book on every tick until ctx is done.
func (b *Bot) Run(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	b.logger.Info("keeper_started",
		zap.String("keeper", b.cfg.Keeper.Hex()),
		zap.Duration("interval", b.cfg.Interval),
	)

	var total int
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("keeper_stopped", zap.Int("executed", total))
			return
		case <-ticker.C:
			total += b.Tick(ctx)
		}
	}
}

// Tick executes every currently satisfied order and returns how many ran.
func (b *Bot) Tick(ctx context.Context) int {
	orders, err := b.exec.OpenOrders(b.cfg.MaxPerTick)
	if err != nil {
		b.logger.Error("keeper_scan_failed", zap.Error(err))
		return 0
	}

	var executed int
	for _, o := range orders {
		if ctx.Err() != nil {
			break
		}
		ok, err := b.exec.CanExecuteOrder(o.Owner, o.Market, o.ID)
		if err != nil {
			b.logger.Warn("keeper_check_failed", zap.Uint64("id", o.ID), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		out, err := b.exec.ExecuteOrder(ctx, b.cfg.Keeper, o.Owner, o.Market, o.ID)
		if err != nil {
			// Another keeper or a price move can race the check.
			level := b.logger.Warn
			if errors.Is(err, invoker.ErrCannotExecute) {
				level = b.logger.Debug
			}
			level("keeper_execute_failed",
				zap.String("owner", o.Owner.Hex()),
				zap.Uint64("id", o.ID),
				zap.Error(err),
			)
			continue
		}
		executed++
		b.logger.Info("keeper_executed",
			zap.String("owner", o.Owner.Hex()),
			zap.String("market", o.Market.Hex()),
			zap.Uint64("id", o.ID),
			zap.Stringer("fee", out.KeeperFee),
		)
	}
	return executed
}
