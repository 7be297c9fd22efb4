package keeper

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/oracle"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/state"
)

var ErrNativePriceUnavailable = errors.New("native token price unavailable")

// PriceSource yields the prices used to compensate one execution.
type PriceSource interface {
	Prices(txn *state.Txn) (Prices, error)
}

type priceReader interface {
	LatestPrice(txn *state.Txn, market common.Address) (oracle.Price, error)
}

// FeedSource reads the native token price from an oracle feed on every call.
type FeedSource struct {
	ComputeGasPrice *big.Int
	DataGasPrice    *big.Int
	Feed            common.Address
	Oracle          priceReader
}

func (s FeedSource) Prices(txn *state.Txn) (Prices, error) {
	p, err := s.Oracle.LatestPrice(txn, s.Feed)
	if err != nil {
		return Prices{}, err
	}
	if !p.Valid || !p.Value.IsPositive() {
		return Prices{}, fmt.Errorf("%w: feed %s", ErrNativePriceUnavailable, s.Feed.Hex())
	}
	return Prices{
		ComputeGasPrice: s.ComputeGasPrice,
		DataGasPrice:    s.DataGasPrice,
		NativePrice:     p.Value,
	}, nil
}

// StaticSource always returns the same prices.
type StaticSource Prices

func (s StaticSource) Prices(*state.Txn) (Prices, error) { return Prices(s), nil }
