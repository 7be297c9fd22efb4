package invoker

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/collateral"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/keeper"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/metrics"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/order"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/settlement"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/state"
)

// Config holds the dispatcher's own parameters.
type Config struct {
	// Address is the holding account for every in-flight fund of a batch.
	Address common.Address
	Keeper  keeper.Config
	// PriceCommitters are the only callers allowed to run CommitPrice.
	PriceCommitters []common.Address
}

func (c Config) isPriceCommitter(caller common.Address) bool {
	for _, a := range c.PriceCommitters {
		if a == caller {
			return true
		}
	}
	return false
}

// Deps are the collaborators a Dispatcher drives.
type Deps struct {
	Store        *state.Store
	Book         *order.Book
	Nonce        *order.Nonce
	Settlement   Settlement
	Vaults       VaultEngine
	Prices       PriceView
	Committer    PriceCommitter
	Tokens       Tokens
	Router       CollateralRouter
	KeeperPrices keeper.PriceSource
	Events       EventSink
	Logger       *zap.Logger
}

// Event is a committed state change pushed to subscribers.
type Event struct {
	Type    string          `json:"type"`
	Account common.Address  `json:"account"`
	Market  common.Address  `json:"market"`
	OrderID uint64          `json:"orderId,omitempty"`
	Amount  decimal.Decimal `json:"amount"`
}

// EventSink receives events after their batch has committed.
type EventSink interface {
	Publish(ev Event)
}

// Sinks fans every event out to each sink in order.
type Sinks []EventSink

func (s Sinks) Publish(ev Event) {
	for _, sink := range s {
		sink.Publish(ev)
	}
}

// ActionOutcome is what one action of a committed batch did.
type ActionOutcome struct {
	Action    Action          `json:"action"`
	Market    common.Address  `json:"market"`
	OrderID   uint64          `json:"orderId,omitempty"`
	KeeperFee decimal.Decimal `json:"keeperFee"`
	Claimed   *ClaimResult    `json:"claimed,omitempty"`
	// Skipped is set on a best-effort price commit that failed.
	Skipped bool `json:"skipped,omitempty"`
}

type route struct {
	direction string
	path      collateral.Path
}

// Receipt describes a committed batch.
type Receipt struct {
	Caller     common.Address  `json:"caller"`
	Account    common.Address  `json:"account"`
	Actions    []ActionOutcome `json:"actions"`
	KeeperFees decimal.Decimal `json:"keeperFees"`
	Events     []Event         `json:"events"`

	routes    []route
	openDelta int
}

// Dispatcher runs batches of tagged actions as single atomic units of work.
type Dispatcher struct {
	cfg        Config
	store      *state.Store
	book       *order.Book
	nonce      *order.Nonce
	settlement Settlement
	vaults     VaultEngine
	committer  PriceCommitter
	tokens     Tokens
	router     CollateralRouter
	executor   *Executor
	fees       *FeeLedger
	operators  Operators
	events     EventSink
	logger     *zap.Logger
}

func NewDispatcher(cfg Config, deps Deps) (*Dispatcher, error) {
	if deps.Store == nil {
		return nil, errors.New("dispatcher requires a store")
	}
	if err := cfg.Keeper.Validate(); err != nil {
		return nil, fmt.Errorf("invalid keeper config: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Nonce == nil {
		deps.Nonce = order.NewNonce()
	}

	d := &Dispatcher{
		cfg:        cfg,
		store:      deps.Store,
		book:       deps.Book,
		nonce:      deps.Nonce,
		settlement: deps.Settlement,
		vaults:     deps.Vaults,
		committer:  deps.Committer,
		tokens:     deps.Tokens,
		router:     deps.Router,
		fees:       NewFeeLedger(cfg.Address, deps.Tokens, deps.Router, logger),
		events:     deps.Events,
		logger:     logger,
	}
	d.executor = &Executor{
		invoker:    cfg.Address,
		book:       deps.Book,
		prices:     deps.Prices,
		settlement: deps.Settlement,
		tokens:     deps.Tokens,
		router:     deps.Router,
		source:     deps.KeeperPrices,
		cfg:        cfg.Keeper,
		logger:     logger,
	}
	return d, nil
}

// Address returns the invoker holding address.
func (d *Dispatcher) Address() common.Address { return d.cfg.Address }

type batch struct {
	txn     *state.Txn
	caller  common.Address
	account common.Address
	rcpt    *Receipt
}

// Invoke runs invs in order on behalf of account. Either every action takes
// effect or none does.
func (d *Dispatcher) Invoke(ctx context.Context, caller, account common.Address, invs []Invocation) (*Receipt, error) {
	rcpt := &Receipt{Caller: caller, Account: account, KeeperFees: decimal.Zero}
	err := d.store.Update(func(txn *state.Txn) error {
		if err := d.authorize(txn, caller, account); err != nil {
			return err
		}
		b := &batch{txn: txn, caller: caller, account: account, rcpt: rcpt}
		for i, inv := range invs {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := d.apply(b, inv)
			if err != nil {
				return fmt.Errorf("action %d (%s): %w", i, inv.Action, err)
			}
			rcpt.Actions = append(rcpt.Actions, out)
		}
		return nil
	})
	if err != nil {
		metrics.IncBatch("reverted")
		d.logger.Warn("batch_reverted",
			zap.String("caller", caller.Hex()),
			zap.String("account", account.Hex()),
			zap.Int("actions", len(invs)),
			zap.Error(err),
		)
		return nil, err
	}

	d.record(rcpt)
	return rcpt, nil
}

func (d *Dispatcher) authorize(txn *state.Txn, caller, account common.Address) error {
	if caller == account {
		return nil
	}
	ok, err := d.operators.IsOperator(txn, account, caller)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s is not an operator of %s", ErrUnauthorized, caller.Hex(), account.Hex())
	}
	return nil
}

func (d *Dispatcher) apply(b *batch, inv Invocation) (ActionOutcome, error) {
	out := ActionOutcome{Action: inv.Action, KeeperFee: decimal.Zero}
	var err error
	switch inv.Action {
	case ActionUpdatePosition:
		err = d.updatePosition(b, inv.Args, &out)
	case ActionUpdateVault:
		err = d.updateVault(b, inv.Args, &out)
	case ActionPlaceOrder:
		err = d.placeOrder(b, inv.Args, &out)
	case ActionUpdateOrder:
		err = d.updateOrder(b, inv.Args, &out)
	case ActionCancelOrder:
		err = d.cancelOrder(b, inv.Args, &out)
	case ActionExecuteOrder:
		err = d.executeOrder(b, inv.Args, &out)
	case ActionLiquidate:
		err = d.liquidate(b, inv.Args, &out)
	case ActionApproveTarget:
		err = d.approveTarget(b, inv.Args, &out)
	case ActionCommitPrice:
		err = d.commitPrice(b, inv.Args, &out)
	case ActionClaimFee:
		err = d.claimFee(b, inv.Args, &out)
	default:
		err = fmt.Errorf("%w: unknown action %d", ErrMalformedAction, inv.Action)
	}
	return out, err
}

func (d *Dispatcher) updatePosition(b *batch, data []byte, out *ActionOutcome) error {
	a, err := DecodeUpdatePosition(data)
	if err != nil {
		return err
	}
	out.Market = a.Market
	if err := d.requireMarket(b.txn, a.Market); err != nil {
		return err
	}

	if a.Collateral.IsPositive() {
		if err := d.pull(b, a.Collateral, a.Wrap); err != nil {
			return err
		}
	}

	fees := a.Fee1.Amount.Add(a.Fee2.Amount)
	delta := settlement.Delta{
		Maker:      a.Maker,
		Long:       a.Long,
		Short:      a.Short,
		Collateral: a.Collateral.Sub(fees),
	}
	if err := d.settlement.Update(b.txn, d.cfg.Address, b.account, a.Market, delta, referrer(a.Fee1, a.Fee2)); err != nil {
		return err
	}
	if err := d.creditFees(b.txn, a.Fee1, a.Fee2); err != nil {
		return err
	}

	if a.Collateral.IsNegative() {
		return d.push(b, a.Collateral.Neg(), a.Wrap)
	}
	return nil
}

// updateVault takes interface fees out of the deposit first and out of the
// claim for whatever the deposit cannot cover.
func (d *Dispatcher) updateVault(b *batch, data []byte, out *ActionOutcome) error {
	a, err := DecodeUpdateVault(data)
	if err != nil {
		return err
	}
	out.Market = a.Vault
	if err := d.requireVault(b.txn, a.Vault); err != nil {
		return err
	}

	fees := a.Fee1.Amount.Add(a.Fee2.Amount)
	fromDeposit := decimal.Min(fees, a.Deposit)
	fromClaim := fees.Sub(fromDeposit)
	if fromClaim.GreaterThan(a.Claim) {
		return fmt.Errorf("%w: fees %s, deposit %s, claim %s", ErrFeeShortfall, fees, a.Deposit, a.Claim)
	}

	if a.Deposit.IsPositive() {
		if err := d.pull(b, a.Deposit, a.Wrap); err != nil {
			return err
		}
	}
	if err := d.vaults.Update(b.txn, d.cfg.Address, b.account, a.Vault, a.Deposit.Sub(fromDeposit), a.Redeem, a.Claim); err != nil {
		return err
	}
	if err := d.creditFees(b.txn, a.Fee1, a.Fee2); err != nil {
		return err
	}

	if payout := a.Claim.Sub(fromClaim); payout.IsPositive() {
		return d.push(b, payout, a.Wrap)
	}
	return nil
}

func (d *Dispatcher) placeOrder(b *batch, data []byte, out *ActionOutcome) error {
	a, err := DecodePlaceOrder(data)
	if err != nil {
		return err
	}
	out.Market = a.Market
	if err := d.requireMarket(b.txn, a.Market); err != nil {
		return err
	}
	o, err := d.book.Place(b.txn, d.nonce, b.account, a.Market, a.Terms)
	if err != nil {
		return err
	}
	out.OrderID = o.ID
	b.rcpt.openDelta++
	b.emit("order_placed", a.Market, o.ID, decimal.Zero)
	return nil
}

func (d *Dispatcher) updateOrder(b *batch, data []byte, out *ActionOutcome) error {
	a, err := DecodeUpdateOrder(data)
	if err != nil {
		return err
	}
	out.Market, out.OrderID = a.Market, a.OrderID
	if _, err := d.book.Update(b.txn, b.account, a.Market, a.OrderID, a.Terms); err != nil {
		return err
	}
	b.emit("order_updated", a.Market, a.OrderID, decimal.Zero)
	return nil
}

func (d *Dispatcher) cancelOrder(b *batch, data []byte, out *ActionOutcome) error {
	a, err := DecodeCancelOrder(data)
	if err != nil {
		return err
	}
	out.Market, out.OrderID = a.Market, a.OrderID
	res, err := d.book.TryCancel(b.txn, b.account, a.Market, a.OrderID)
	if err != nil {
		return err
	}
	if res == order.Cancelled {
		b.rcpt.openDelta--
		b.emit("order_cancelled", a.Market, a.OrderID, decimal.Zero)
	}
	return nil
}

// executeOrder pays the keeper fee to the caller. Calldata is priced as the
// canonical encoding of this action alone in a one-element batch, so neither
// the rest of the batch nor trailing bytes in its args reach the owner's fee.
func (d *Dispatcher) executeOrder(b *batch, data []byte, out *ActionOutcome) error {
	a, err := DecodeExecuteOrder(data)
	if err != nil {
		return err
	}
	out.Market, out.OrderID = a.Market, a.OrderID
	own, err := EncodeExecuteOrder(a)
	if err != nil {
		return err
	}
	calldata, err := EncodeBatch([]Invocation{own})
	if err != nil {
		return err
	}
	ex, err := d.executor.Execute(b.txn, a.Account, a.Market, a.OrderID, b.caller, calldata)
	if err != nil {
		return err
	}
	out.KeeperFee = ex.KeeperFee
	b.rcpt.KeeperFees = b.rcpt.KeeperFees.Add(ex.KeeperFee)
	b.rcpt.openDelta--
	if ex.Path != "" {
		b.rcpt.routes = append(b.rcpt.routes, route{direction: "unwrap", path: ex.Path})
	}
	b.rcpt.Events = append(b.rcpt.Events, Event{
		Type:    "order_executed",
		Account: a.Account,
		Market:  a.Market,
		OrderID: a.OrderID,
		Amount:  ex.KeeperFee,
	})
	return nil
}

func (d *Dispatcher) liquidate(b *batch, data []byte, out *ActionOutcome) error {
	a, err := DecodeLiquidate(data)
	if err != nil {
		return err
	}
	out.Market = a.Market
	if err := d.requireMarket(b.txn, a.Market); err != nil {
		return err
	}
	return d.settlement.Liquidate(b.txn, b.caller, a.Account, a.Market)
}

func (d *Dispatcher) approveTarget(b *batch, data []byte, out *ActionOutcome) error {
	a, err := DecodeApproveTarget(data)
	if err != nil {
		return err
	}
	isMarket, err := d.settlement.IsMarket(b.txn, a.Target)
	if err != nil {
		return err
	}
	isVault, err := d.vaults.IsVault(b.txn, a.Target)
	if err != nil {
		return err
	}
	if !isMarket && !isVault {
		return fmt.Errorf("%w: %w: %s", ErrUnauthorized, ErrInvalidInstance, a.Target.Hex())
	}
	out.Market = a.Target
	return d.tokens.Approve(b.txn, collateral.DSU, d.cfg.Address, a.Target, collateral.MaxAllowance)
}

// commitPrice is best-effort unless RevertOnFailure is set: a failed commit
// is rolled back on its own and the batch continues. A caller outside the
// committer set always reverts the batch.
func (d *Dispatcher) commitPrice(b *batch, data []byte, out *ActionOutcome) error {
	a, err := DecodeCommitPrice(data)
	if err != nil {
		return err
	}
	out.Market = a.Market
	if !d.cfg.isPriceCommitter(b.caller) {
		return fmt.Errorf("%w: %s may not commit prices", ErrUnauthorized, b.caller.Hex())
	}

	sp := b.txn.Savepoint()
	if err := d.committer.Commit(b.txn, a.Market, a.Version, a.Price); err != nil {
		b.txn.Rollback(sp)
		if a.RevertOnFailure {
			return err
		}
		out.Skipped = true
		d.logger.Info("price_commit_skipped",
			zap.String("market", a.Market.Hex()),
			zap.Uint64("version", a.Version),
			zap.Error(err),
		)
		return nil
	}
	b.txn.Release(sp)
	return nil
}

func (d *Dispatcher) claimFee(b *batch, data []byte, out *ActionOutcome) error {
	a, err := DecodeClaimFee(data)
	if err != nil {
		return err
	}
	res, err := d.fees.Claim(b.txn, b.account, a.Unwrap)
	if err != nil {
		return err
	}
	out.Claimed = res
	if res.Path != "" {
		b.rcpt.routes = append(b.rcpt.routes, route{direction: "unwrap", path: res.Path})
	}
	b.emit("fee_claimed", common.Address{}, 0, res.DSU.Add(res.USDC))
	return nil
}

// pull moves amount from the account to the invoker as DSU, wrapping USDC
// when wrap is set.
func (d *Dispatcher) pull(b *batch, amount decimal.Decimal, wrap bool) error {
	if !wrap {
		return d.tokens.Transfer(b.txn, collateral.DSU, b.account, d.cfg.Address, amount)
	}
	if err := d.tokens.Transfer(b.txn, collateral.USDC, b.account, d.cfg.Address, amount); err != nil {
		return err
	}
	_, path, err := d.router.Wrap(b.txn, d.cfg.Address, amount)
	if err != nil {
		return err
	}
	b.rcpt.routes = append(b.rcpt.routes, route{direction: "wrap", path: path})
	return nil
}

// push pays amount DSU held by the invoker to the account, as USDC when
// wrap is set.
func (d *Dispatcher) push(b *batch, amount decimal.Decimal, wrap bool) error {
	if !wrap {
		return d.tokens.Transfer(b.txn, collateral.DSU, d.cfg.Address, b.account, amount)
	}
	usdc, path, err := d.router.Unwrap(b.txn, d.cfg.Address, amount)
	if err != nil {
		return err
	}
	b.rcpt.routes = append(b.rcpt.routes, route{direction: "unwrap", path: path})
	return d.tokens.Transfer(b.txn, collateral.USDC, d.cfg.Address, b.account, usdc)
}

func (d *Dispatcher) creditFees(txn *state.Txn, fees ...InterfaceFee) error {
	for _, f := range fees {
		if f.IsZero() {
			continue
		}
		if f.Receiver == (common.Address{}) {
			return fmt.Errorf("%w: fee of %s has no receiver", ErrMalformedAction, f.Amount)
		}
		rep := Internal
		if f.Unwrap {
			rep = External
		}
		if err := d.fees.Credit(txn, f.Receiver, rep, f.Amount); err != nil {
			return err
		}
	}
	return nil
}

// referrer is the first fee receiver set on the action.
func referrer(fees ...InterfaceFee) common.Address {
	for _, f := range fees {
		if f.Receiver != (common.Address{}) {
			return f.Receiver
		}
	}
	return common.Address{}
}

func (d *Dispatcher) requireMarket(txn *state.Txn, market common.Address) error {
	ok, err := d.settlement.IsMarket(txn, market)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %w: market %s", ErrUnauthorized, ErrInvalidInstance, market.Hex())
	}
	return nil
}

func (d *Dispatcher) requireVault(txn *state.Txn, vault common.Address) error {
	ok, err := d.vaults.IsVault(txn, vault)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %w: vault %s", ErrUnauthorized, ErrInvalidInstance, vault.Hex())
	}
	return nil
}

func (b *batch) emit(typ string, market common.Address, id uint64, amount decimal.Decimal) {
	b.rcpt.Events = append(b.rcpt.Events, Event{
		Type:    typ,
		Account: b.account,
		Market:  market,
		OrderID: id,
		Amount:  amount,
	})
}

// record runs only after commit.
func (d *Dispatcher) record(rcpt *Receipt) {
	metrics.IncBatch("ok")
	for _, a := range rcpt.Actions {
		metrics.IncAction(a.Action.String())
		if a.Action == ActionExecuteOrder {
			metrics.IncOrderExecuted(a.Market.Hex())
			metrics.ObserveKeeperFee(a.KeeperFee.InexactFloat64())
		}
	}
	if rcpt.openDelta != 0 {
		metrics.AddOpenOrders(rcpt.openDelta)
	}
	for _, r := range rcpt.routes {
		metrics.IncCollateralRoute(r.direction, string(r.path))
	}
	if d.events != nil {
		for _, ev := range rcpt.Events {
			d.events.Publish(ev)
		}
	}

	d.logger.Info("batch_committed",
		zap.String("caller", rcpt.Caller.Hex()),
		zap.String("account", rcpt.Account.Hex()),
		zap.Int("actions", len(rcpt.Actions)),
		zap.Stringer("keeper_fees", rcpt.KeeperFees),
	)
}

// UpdateOperator grants or revokes delegate's right to act for owner.
func (d *Dispatcher) UpdateOperator(ctx context.Context, owner, delegate common.Address, enabled bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := d.store.Update(func(txn *state.Txn) error {
		d.operators.Update(txn, owner, delegate, enabled)
		return nil
	})
	if err != nil {
		return err
	}
	d.logger.Info("operator_updated",
		zap.String("owner", owner.Hex()),
		zap.String("delegate", delegate.Hex()),
		zap.Bool("enabled", enabled),
	)
	return nil
}

func (d *Dispatcher) IsOperator(owner, delegate common.Address) (bool, error) {
	var ok bool
	err := d.store.View(func(txn *state.Txn) error {
		var err error
		ok, err = d.operators.IsOperator(txn, owner, delegate)
		return err
	})
	return ok, err
}

// UseNonce consumes a signed request nonce of signer. Nonces must strictly
// increase; the write commits on its own, before the request runs.
func (d *Dispatcher) UseNonce(signer common.Address, nonce uint64) error {
	return d.store.Update(func(txn *state.Txn) error {
		cur, err := requestNonce(txn, signer)
		if err != nil {
			return err
		}
		if nonce <= cur {
			return fmt.Errorf("%w: got %d, last %d", ErrStaleNonce, nonce, cur)
		}
		txn.Set(requestNonceKey(signer), []byte(strconv.FormatUint(nonce, 10)))
		return nil
	})
}

// RequestNonce returns the last nonce signer used (0 if none).
func (d *Dispatcher) RequestNonce(signer common.Address) (uint64, error) {
	var n uint64
	err := d.store.View(func(txn *state.Txn) error {
		var err error
		n, err = requestNonce(txn, signer)
		return err
	})
	return n, err
}

func requestNonce(txn *state.Txn, signer common.Address) (uint64, error) {
	data, err := txn.Get(requestNonceKey(signer))
	if errors.Is(err, state.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load request nonce: %w", err)
	}
	return strconv.ParseUint(string(data), 10, 64)
}

// requestNonceKey returns the key for a signer's last request nonce
// Format: "nonce:req:{signer}"
func requestNonceKey(signer common.Address) []byte {
	return state.Key("nonce", "req", state.Addr(signer))
}

func (d *Dispatcher) PlaceOrder(ctx context.Context, caller, owner, market common.Address, terms order.Terms) (uint64, error) {
	inv, err := EncodePlaceOrder(PlaceOrderArgs{Market: market, Terms: terms})
	if err != nil {
		return 0, err
	}
	rcpt, err := d.Invoke(ctx, caller, owner, []Invocation{inv})
	if err != nil {
		return 0, err
	}
	return rcpt.Actions[0].OrderID, nil
}

func (d *Dispatcher) UpdateOrder(ctx context.Context, caller, owner, market common.Address, id uint64, terms order.Terms) error {
	inv, err := EncodeUpdateOrder(UpdateOrderArgs{Market: market, OrderID: id, Terms: terms})
	if err != nil {
		return err
	}
	_, err = d.Invoke(ctx, caller, owner, []Invocation{inv})
	return err
}

func (d *Dispatcher) CancelOrder(ctx context.Context, caller, owner, market common.Address, id uint64) error {
	inv, err := EncodeCancelOrder(CancelOrderArgs{Market: market, OrderID: id})
	if err != nil {
		return err
	}
	_, err = d.Invoke(ctx, caller, owner, []Invocation{inv})
	return err
}

// ExecuteOrder executes owner's order with keeperAddr as caller and fee
// recipient.
func (d *Dispatcher) ExecuteOrder(ctx context.Context, keeperAddr, owner, market common.Address, id uint64) (*ActionOutcome, error) {
	inv, err := EncodeExecuteOrder(ExecuteOrderArgs{Account: owner, Market: market, OrderID: id})
	if err != nil {
		return nil, err
	}
	rcpt, err := d.Invoke(ctx, keeperAddr, keeperAddr, []Invocation{inv})
	if err != nil {
		return nil, err
	}
	return &rcpt.Actions[0], nil
}

func (d *Dispatcher) CanExecuteOrder(owner, market common.Address, id uint64) (bool, error) {
	var ok bool
	err := d.store.View(func(txn *state.Txn) error {
		var err error
		ok, err = d.executor.CanExecute(txn, owner, market, id)
		return err
	})
	return ok, err
}

func (d *Dispatcher) ReadOrder(owner, market common.Address, id uint64) (*order.TriggerOrder, error) {
	var o *order.TriggerOrder
	err := d.store.View(func(txn *state.Txn) error {
		var err error
		o, err = d.book.Read(txn, owner, market, id)
		return err
	})
	return o, err
}

// OpenOrders returns up to limit Open orders across the book; limit <= 0
// returns all of them.
func (d *Dispatcher) OpenOrders(limit int) ([]*order.TriggerOrder, error) {
	var out []*order.TriggerOrder
	err := d.store.View(func(txn *state.Txn) error {
		return d.book.ForEachOpen(txn, func(o *order.TriggerOrder) bool {
			out = append(out, o)
			return limit <= 0 || len(out) < limit
		})
	})
	return out, err
}

func (d *Dispatcher) Claim(ctx context.Context, caller, receiver common.Address, unwrap bool) (*ClaimResult, error) {
	inv, err := EncodeClaimFee(ClaimFeeArgs{Unwrap: unwrap})
	if err != nil {
		return nil, err
	}
	rcpt, err := d.Invoke(ctx, caller, receiver, []Invocation{inv})
	if err != nil {
		return nil, err
	}
	return rcpt.Actions[0].Claimed, nil
}

// Claimable returns receiver's internal and external fee credits.
func (d *Dispatcher) Claimable(receiver common.Address) (internal, external decimal.Decimal, err error) {
	err = d.store.View(func(txn *state.Txn) error {
		var err error
		if internal, err = d.fees.Claimable(txn, receiver, Internal); err != nil {
			return err
		}
		external, err = d.fees.Claimable(txn, receiver, External)
		return err
	})
	return internal, external, err
}
