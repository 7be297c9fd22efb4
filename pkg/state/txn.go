package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/params"
)

// Txn buffers reads and writes of one unit of work. Reads observe earlier
// writes of the same Txn. Writes live in a stack of layers so that a
// best-effort step can be rolled back without touching the rest.
type Txn struct {
	db     *pebble.DB
	layers []map[string]*[]byte // nil value pointer = deleted
	gas    uint64
}

// Savepoint identifies a layer boundary returned by Txn.Savepoint.
type Savepoint int

func newTxn(db *pebble.DB) *Txn {
	return &Txn{
		db:     db,
		layers: []map[string]*[]byte{make(map[string]*[]byte)},
	}
}

// GasUsed returns storage gas charged so far, priced with the EVM schedule.
func (t *Txn) GasUsed() uint64 { return t.gas }

// Get returns a copy of the value stored at key.
func (t *Txn) Get(key []byte) ([]byte, error) {
	t.gas += params.SloadGasEIP2200

	for i := len(t.layers) - 1; i >= 0; i-- {
		if v, ok := t.layers[i][string(key)]; ok {
			if v == nil {
				return nil, ErrNotFound
			}
			return append([]byte(nil), (*v)...), nil
		}
	}

	val, closer, err := t.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %q: %w", key, err)
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

func (t *Txn) Set(key, value []byte) {
	t.gas += params.SstoreSetGasEIP2200
	v := append([]byte(nil), value...)
	t.layers[len(t.layers)-1][string(key)] = &v
}

func (t *Txn) Delete(key []byte) {
	t.gas += params.SstoreResetGasEIP2200
	t.layers[len(t.layers)-1][string(key)] = nil
}

// GetJSON decodes the value at key into v. Returns ErrNotFound if missing.
func (t *Txn) GetJSON(key []byte, v any) error {
	data, err := t.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %q: %w", key, err)
	}
	return nil
}

func (t *Txn) SetJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %q: %w", key, err)
	}
	t.Set(key, data)
	return nil
}

// Iterate calls fn for every live key with the given prefix in key order,
// merging committed state with the Txn's pending writes. Returning false stops.
func (t *Txn) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	merged := make(map[string][]byte)

	iter, err := t.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("failed to open iterator: %w", err)
	}
	for iter.First(); iter.Valid(); iter.Next() {
		merged[string(iter.Key())] = append([]byte(nil), iter.Value()...)
	}
	if err := iter.Close(); err != nil {
		return fmt.Errorf("failed to close iterator: %w", err)
	}

	for _, layer := range t.layers {
		for k, v := range layer {
			if !bytes.HasPrefix([]byte(k), prefix) {
				continue
			}
			if v == nil {
				delete(merged, k)
			} else {
				merged[k] = *v
			}
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if !fn([]byte(k), merged[k]) {
			return nil
		}
	}
	return nil
}

// Savepoint opens a new write layer.
func (t *Txn) Savepoint() Savepoint {
	t.layers = append(t.layers, make(map[string]*[]byte))
	return Savepoint(len(t.layers) - 1)
}

// Rollback drops every write made since sp.
func (t *Txn) Rollback(sp Savepoint) {
	if int(sp) <= 0 || int(sp) > len(t.layers) {
		return
	}
	t.layers = t.layers[:sp]
}

// Release folds the writes made since sp into the enclosing layer.
func (t *Txn) Release(sp Savepoint) {
	if int(sp) <= 0 || int(sp) >= len(t.layers) {
		return
	}
	parent := t.layers[sp-1]
	for _, layer := range t.layers[sp:] {
		for k, v := range layer {
			parent[k] = v
		}
	}
	t.layers = t.layers[:sp]
}

func (t *Txn) commit() error {
	batch := t.db.NewBatch()
	defer batch.Close()

	for _, layer := range t.layers {
		for k, v := range layer {
			var err error
			if v == nil {
				err = batch.Delete([]byte(k), nil)
			} else {
				err = batch.Set([]byte(k), *v, nil)
			}
			if err != nil {
				return fmt.Errorf("failed to stage write: %w", err)
			}
		}
	}
	if batch.Empty() {
		return nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}
