package settlement

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/collateral"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/state"
)

var (
	ErrUnknownVault          = errors.New("unknown vault")
	ErrInsufficientShares    = errors.New("insufficient vault shares")
	ErrInsufficientClaimable = errors.New("insufficient claimable assets")
)

const (
	prefixVault        = "vault"
	prefixVaultAccount = "vacct"
)

// VaultAccount tracks one depositor. Shares convert 1:1 to assets.
type VaultAccount struct {
	Shares    decimal.Decimal `json:"shares"`
	Claimable decimal.Decimal `json:"claimable"`
}

// Vaults is the in-process vault engine. Assets are DSU held at the
// vault's own address.
type Vaults struct {
	ledger collateral.Ledger
	logger *zap.Logger
}

func NewVaults(logger *zap.Logger) *Vaults {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Vaults{logger: logger}
}

func (v *Vaults) Register(txn *state.Txn, vault common.Address, name string) error {
	if ok, err := v.IsVault(txn, vault); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("vault %s already registered", vault.Hex())
	}
	txn.Set(state.Key(prefixVault, state.Addr(vault)), []byte(name))
	return nil
}

func (v *Vaults) IsVault(txn *state.Txn, vault common.Address) (bool, error) {
	_, err := txn.Get(state.Key(prefixVault, state.Addr(vault)))
	if errors.Is(err, state.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (v *Vaults) Account(txn *state.Txn, vault, account common.Address) (*VaultAccount, error) {
	var a VaultAccount
	err := txn.GetJSON(vaultAccountKey(vault, account), &a)
	if errors.Is(err, state.ErrNotFound) {
		return &VaultAccount{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load vault account: %w", err)
	}
	return &a, nil
}

// Update deposits assets pulled from sender, redeems shares into a claimable
// balance, and pays claimed assets to sender, in that order.
func (v *Vaults) Update(txn *state.Txn, sender, account, vault common.Address, deposit, redeem, claim decimal.Decimal) error {
	if ok, err := v.IsVault(txn, vault); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVault, vault.Hex())
	}
	if deposit.IsNegative() || redeem.IsNegative() || claim.IsNegative() {
		return collateral.ErrInvalidAmount
	}

	a, err := v.Account(txn, vault, account)
	if err != nil {
		return err
	}

	if deposit.IsPositive() {
		if err := v.ledger.TransferFrom(txn, collateral.DSU, vault, sender, vault, deposit); err != nil {
			return fmt.Errorf("failed to pull deposit: %w", err)
		}
		a.Shares = a.Shares.Add(deposit)
	}
	if redeem.IsPositive() {
		if a.Shares.LessThan(redeem) {
			return fmt.Errorf("%w: have %s, redeeming %s", ErrInsufficientShares, a.Shares, redeem)
		}
		a.Shares = a.Shares.Sub(redeem)
		a.Claimable = a.Claimable.Add(redeem)
	}
	if claim.IsPositive() {
		if a.Claimable.LessThan(claim) {
			return fmt.Errorf("%w: have %s, claiming %s", ErrInsufficientClaimable, a.Claimable, claim)
		}
		a.Claimable = a.Claimable.Sub(claim)
		if err := v.ledger.Transfer(txn, collateral.DSU, vault, sender, claim); err != nil {
			return fmt.Errorf("failed to pay claim: %w", err)
		}
	}

	if err := txn.SetJSON(vaultAccountKey(vault, account), a); err != nil {
		return fmt.Errorf("failed to save vault account: %w", err)
	}

	v.logger.Debug("vault_updated",
		zap.String("vault", vault.Hex()),
		zap.String("account", account.Hex()),
		zap.Stringer("shares", a.Shares),
		zap.Stringer("claimable", a.Claimable),
	)
	return nil
}

// vaultAccountKey returns the key for a vault depositor
// Format: "vacct:{vault}:{account}"
func vaultAccountKey(vault, account common.Address) []byte {
	return state.Key(prefixVaultAccount, state.Addr(vault), state.Addr(account))
}
