package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/state"
)

// DefaultMaxOpenPerAccount is the per-(owner, market) open order cap.
const DefaultMaxOpenPerAccount = 10

const (
	prefixOrder = "ord"
	prefixCount = "ordcnt"
)

// Nonce is the single global order id counter shared by every owner and
// market. It is an explicit resource handed to Book.Place.
type Nonce struct {
	key []byte
}

func NewNonce() *Nonce {
	return &Nonce{key: state.Key("nonce", "order")}
}

// Current returns the last issued id (0 if none).
func (n *Nonce) Current(txn *state.Txn) (uint64, error) {
	data, err := txn.Get(n.key)
	if errors.Is(err, state.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(string(data), 10, 64)
}

// Next increments the counter and returns the new id.
func (n *Nonce) Next(txn *state.Txn) (uint64, error) {
	cur, err := n.Current(txn)
	if err != nil {
		return 0, fmt.Errorf("failed to read order nonce: %w", err)
	}
	next := cur + 1
	txn.Set(n.key, []byte(strconv.FormatUint(next, 10)))
	return next, nil
}

// CancelOutcome tells internal callers what a cancel actually did.
type CancelOutcome int

const (
	Cancelled CancelOutcome = iota
	NotFound
)

// Book owns the per-(owner, market) trigger orders and their capacity counters.
// Every method runs inside the caller's unit of work.
type Book struct {
	maxOpen int
	logger  *zap.Logger
}

func NewBook(maxOpen int, logger *zap.Logger) *Book {
	if maxOpen <= 0 {
		maxOpen = DefaultMaxOpenPerAccount
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Book{maxOpen: maxOpen, logger: logger}
}

// MaxOpen returns the configured capacity.
func (b *Book) MaxOpen() int { return b.maxOpen }

// Place validates the terms, checks capacity and stores a new Open order
// under the next global id.
func (b *Book) Place(txn *state.Txn, nonce *Nonce, owner, market common.Address, terms Terms) (*TriggerOrder, error) {
	if err := terms.Validate(); err != nil {
		return nil, err
	}

	open, err := b.OpenCount(txn, owner, market)
	if err != nil {
		return nil, err
	}
	if open >= b.maxOpen {
		return nil, fmt.Errorf("%w: %d open on %s", ErrCapacityExceeded, open, market.Hex())
	}

	id, err := nonce.Next(txn)
	if err != nil {
		return nil, err
	}

	o := &TriggerOrder{Owner: owner, Market: market, ID: id, Status: StatusOpen}
	o.apply(terms)

	if err := b.save(txn, o); err != nil {
		return nil, err
	}
	if err := b.setOpenCount(txn, owner, market, open+1); err != nil {
		return nil, err
	}

	b.logger.Debug("order_placed",
		zap.String("owner", owner.Hex()),
		zap.String("market", market.Hex()),
		zap.Uint64("id", id),
		zap.Stringer("side", terms.Side),
	)
	return o, nil
}

// Update replaces the mutable terms of an Open order in place.
func (b *Book) Update(txn *state.Txn, owner, market common.Address, id uint64, terms Terms) (*TriggerOrder, error) {
	if err := terms.Validate(); err != nil {
		return nil, err
	}

	o, err := b.Read(txn, owner, market, id)
	if err != nil {
		return nil, err
	}
	if !o.IsOpen() {
		return nil, fmt.Errorf("%w: id %d is %s", ErrOrderNotFound, id, o.Status)
	}

	o.apply(terms)
	if err := b.save(txn, o); err != nil {
		return nil, err
	}
	return o, nil
}

// TryCancel cancels an Open order and reports NotFound when there is none.
func (b *Book) TryCancel(txn *state.Txn, owner, market common.Address, id uint64) (CancelOutcome, error) {
	o, err := b.Read(txn, owner, market, id)
	if errors.Is(err, ErrOrderNotFound) {
		return NotFound, nil
	}
	if err != nil {
		return NotFound, err
	}
	if !o.IsOpen() {
		return NotFound, nil
	}

	if err := b.close(txn, o, StatusCancelled); err != nil {
		return NotFound, err
	}
	return Cancelled, nil
}

// Cancel is TryCancel with the NotFound case discarded: cancelling a missing
// or terminal order is a silent no-op.
func (b *Book) Cancel(txn *state.Txn, owner, market common.Address, id uint64) error {
	_, err := b.TryCancel(txn, owner, market, id)
	return err
}

// MarkExecuted moves an Open order to Executed.
func (b *Book) MarkExecuted(txn *state.Txn, o *TriggerOrder) error {
	if !o.IsOpen() {
		return fmt.Errorf("%w: id %d is %s", ErrOrderNotFound, o.ID, o.Status)
	}
	return b.close(txn, o, StatusExecuted)
}

// Read returns the stored order regardless of status.
func (b *Book) Read(txn *state.Txn, owner, market common.Address, id uint64) (*TriggerOrder, error) {
	var o TriggerOrder
	err := txn.GetJSON(orderKey(owner, market, id), &o)
	if errors.Is(err, state.ErrNotFound) {
		return nil, fmt.Errorf("%w: owner=%s market=%s id=%d", ErrOrderNotFound, owner.Hex(), market.Hex(), id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &o, nil
}

// OpenCount returns the number of Open orders for (owner, market).
func (b *Book) OpenCount(txn *state.Txn, owner, market common.Address) (int, error) {
	data, err := txn.Get(countKey(owner, market))
	if errors.Is(err, state.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load open count: %w", err)
	}
	return strconv.Atoi(string(data))
}

// Orders returns every stored order of (owner, market), oldest first.
func (b *Book) Orders(txn *state.Txn, owner, market common.Address) ([]*TriggerOrder, error) {
	var out []*TriggerOrder
	err := b.scan(txn, state.Prefix(prefixOrder, state.Addr(owner), state.Addr(market)), func(o *TriggerOrder) bool {
		out = append(out, o)
		return true
	})
	return out, err
}

// ForEachOpen walks all Open orders in the book. Returning false stops.
func (b *Book) ForEachOpen(txn *state.Txn, fn func(*TriggerOrder) bool) error {
	return b.scan(txn, state.Prefix(prefixOrder), func(o *TriggerOrder) bool {
		if !o.IsOpen() {
			return true
		}
		return fn(o)
	})
}

func (b *Book) scan(txn *state.Txn, prefix []byte, fn func(*TriggerOrder) bool) error {
	var decodeErr error
	err := txn.Iterate(prefix, func(key, value []byte) bool {
		var o TriggerOrder
		if err := json.Unmarshal(value, &o); err != nil {
			decodeErr = fmt.Errorf("failed to decode order %s: %w", key, err)
			return false
		}
		return fn(&o)
	})
	if err != nil {
		return err
	}
	return decodeErr
}

func (b *Book) close(txn *state.Txn, o *TriggerOrder, status Status) error {
	open, err := b.OpenCount(txn, o.Owner, o.Market)
	if err != nil {
		return err
	}
	if open <= 0 {
		return fmt.Errorf("open count underflow for %s/%s", o.Owner.Hex(), o.Market.Hex())
	}

	o.Status = status
	if err := b.save(txn, o); err != nil {
		return err
	}
	if err := b.setOpenCount(txn, o.Owner, o.Market, open-1); err != nil {
		return err
	}

	b.logger.Debug("order_closed",
		zap.String("owner", o.Owner.Hex()),
		zap.Uint64("id", o.ID),
		zap.Stringer("status", status),
	)
	return nil
}

func (b *Book) save(txn *state.Txn, o *TriggerOrder) error {
	if err := txn.SetJSON(orderKey(o.Owner, o.Market, o.ID), o); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

func (b *Book) setOpenCount(txn *state.Txn, owner, market common.Address, n int) error {
	txn.Set(countKey(owner, market), []byte(strconv.Itoa(n)))
	return nil
}

// orderKey returns the key for an order
// Format: "ord:{owner}:{market}:{id}"
func orderKey(owner, market common.Address, id uint64) []byte {
	return state.Key(prefixOrder, state.Addr(owner), state.Addr(market), state.Uint(id))
}

// countKey returns the key for the open order counter
// Format: "ordcnt:{owner}:{market}"
func countKey(owner, market common.Address) []byte {
	return state.Key(prefixCount, state.Addr(owner), state.Addr(market))
}
