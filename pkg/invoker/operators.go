package invoker

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/state"
)

const prefixOperator = "op"

// Operators is the persistent (owner, delegate) -> enabled grant table.
// Grants never expire.
type Operators struct{}

func (Operators) Update(txn *state.Txn, owner, delegate common.Address, enabled bool) {
	key := state.Key(prefixOperator, state.Addr(owner), state.Addr(delegate))
	if enabled {
		txn.Set(key, []byte{1})
		return
	}
	txn.Delete(key)
}

func (Operators) IsOperator(txn *state.Txn, owner, delegate common.Address) (bool, error) {
	_, err := txn.Get(state.Key(prefixOperator, state.Addr(owner), state.Addr(delegate)))
	if errors.Is(err, state.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
