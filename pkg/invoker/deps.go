package invoker

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/collateral"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/oracle"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/settlement"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/state"
)

// Settlement is the position and margin engine.
type Settlement interface {
	IsMarket(txn *state.Txn, market common.Address) (bool, error)
	Update(txn *state.Txn, sender, account, market common.Address, delta settlement.Delta, referrer common.Address) error
	Liquidate(txn *state.Txn, sender, account, market common.Address) error
}

type VaultEngine interface {
	IsVault(txn *state.Txn, vault common.Address) (bool, error)
	Update(txn *state.Txn, sender, account, vault common.Address, deposit, redeem, claim decimal.Decimal) error
}

type PriceView interface {
	LatestPrice(txn *state.Txn, market common.Address) (oracle.Price, error)
}

type PriceCommitter interface {
	Commit(txn *state.Txn, market common.Address, version uint64, price decimal.Decimal) error
}

type CollateralRouter interface {
	Wrap(txn *state.Txn, holder common.Address, amount decimal.Decimal) (decimal.Decimal, collateral.Path, error)
	Unwrap(txn *state.Txn, holder common.Address, amount decimal.Decimal) (decimal.Decimal, collateral.Path, error)
}

type Tokens interface {
	Balance(txn *state.Txn, token, holder common.Address) (decimal.Decimal, error)
	Transfer(txn *state.Txn, token, from, to common.Address, amount decimal.Decimal) error
	Approve(txn *state.Txn, token, owner, spender common.Address, amount decimal.Decimal) error
}
