package keeper

import (
	"github.com/ethereum/go-ethereum/params"

	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/state"
)

// CalldataGas prices call data with the EIP-2028 schedule.
func CalldataGas(data []byte) uint64 {
	var gas uint64
	for _, b := range data {
		if b == 0 {
			gas += params.TxDataZeroGas
		} else {
			gas += params.TxDataNonZeroGasEIP2028
		}
	}
	return gas
}

// Meter measures the storage gas a piece of work charges to a Txn.
type Meter struct {
	txn   *state.Txn
	start uint64
}

func StartMeter(txn *state.Txn) Meter {
	return Meter{txn: txn, start: txn.GasUsed()}
}

// Consumed returns gas charged since StartMeter.
func (m Meter) Consumed() uint64 {
	return m.txn.GasUsed() - m.start
}
