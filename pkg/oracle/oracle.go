package oracle

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/state"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/util"
)

var (
	ErrVersionAlreadyCommitted = errors.New("oracle version already committed")
	ErrStaleVersion            = errors.New("oracle version older than latest")
)

const prefixPrice = "px"

// Price is the latest observation for a market. Valid is false when no
// price was ever committed or the last one is older than the max age.
type Price struct {
	Value     decimal.Decimal `json:"value"`
	Version   uint64          `json:"version"`
	Timestamp time.Time       `json:"timestamp"`
	Valid     bool            `json:"-"`
}

// Oracle keeps one versioned price per market inside the host store.
type Oracle struct {
	maxAge time.Duration
	clock  util.Clock
	logger *zap.Logger
}

// New returns an oracle. A zero maxAge disables the staleness check.
func New(maxAge time.Duration, clock util.Clock, logger *zap.Logger) *Oracle {
	if clock == nil {
		clock = util.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Oracle{maxAge: maxAge, clock: clock, logger: logger}
}

// LatestPrice never fails on a missing or stale price; it reports Valid=false.
func (o *Oracle) LatestPrice(txn *state.Txn, market common.Address) (Price, error) {
	var p Price
	err := txn.GetJSON(priceKey(market), &p)
	if errors.Is(err, state.ErrNotFound) {
		return Price{}, nil
	}
	if err != nil {
		return Price{}, fmt.Errorf("failed to load price: %w", err)
	}

	p.Valid = o.maxAge == 0 || o.clock.Now().Sub(p.Timestamp) <= o.maxAge
	return p, nil
}

func (o *Oracle) CurrentVersion(txn *state.Txn, market common.Address) (uint64, error) {
	p, err := o.LatestPrice(txn, market)
	if err != nil {
		return 0, err
	}
	return p.Version, nil
}

// Commit publishes price at version. Versions must strictly increase per market.
func (o *Oracle) Commit(txn *state.Txn, market common.Address, version uint64, value decimal.Decimal) error {
	cur, err := o.CurrentVersion(txn, market)
	if err != nil {
		return err
	}
	switch {
	case version == cur && cur != 0:
		return fmt.Errorf("%w: %s@%d", ErrVersionAlreadyCommitted, market.Hex(), version)
	case version < cur:
		return fmt.Errorf("%w: %s@%d < %d", ErrStaleVersion, market.Hex(), version, cur)
	case version == 0:
		return fmt.Errorf("%w: version 0", ErrStaleVersion)
	}

	p := Price{Value: value, Version: version, Timestamp: o.clock.Now()}
	if err := txn.SetJSON(priceKey(market), p); err != nil {
		return fmt.Errorf("failed to save price: %w", err)
	}

	o.logger.Debug("price_committed",
		zap.String("market", market.Hex()),
		zap.Uint64("version", version),
		zap.Stringer("price", value),
	)
	return nil
}

// priceKey returns the key for a market price
// Format: "px:{market}"
func priceKey(market common.Address) []byte {
	return state.Key(prefixPrice, state.Addr(market))
}
