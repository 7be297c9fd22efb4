package crypto

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"golang.org/x/crypto/sha3"
)

// Domain is the EIP-712 domain every signed request is bound to.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address // the invoker holding address
}

func DefaultDomain(invoker common.Address) Domain {
	return Domain{
		Name:              "Perennial Invoker",
		Version:           "1",
		ChainID:           big.NewInt(1337),
		VerifyingContract: invoker,
	}
}

// InvokeRequest authorizes one batch. Calldata is the encoded batch.
type InvokeRequest struct {
	Account  common.Address
	Nonce    uint64
	Calldata []byte
}

// OperatorRequest grants or revokes a delegate of the signer.
type OperatorRequest struct {
	Delegate common.Address
	Enabled  bool
	Nonce    uint64
}

// ClaimRequest claims the signer's interface fee credits.
type ClaimRequest struct {
	Unwrap bool
	Nonce  uint64
}

var domainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// TypedSigner hashes, signs and recovers the typed requests of a domain.
type TypedSigner struct {
	domain Domain
}

func NewTypedSigner(domain Domain) *TypedSigner {
	return &TypedSigner{domain: domain}
}

// CalldataHash is keccak256 of the encoded batch.
func CalldataHash(calldata []byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write(calldata)
	return common.BytesToHash(h.Sum(nil))
}

func (t *TypedSigner) HashInvoke(r InvokeRequest) ([]byte, error) {
	return t.digest("Invoke", []apitypes.Type{
		{Name: "account", Type: "address"},
		{Name: "nonce", Type: "uint256"},
		{Name: "calldataHash", Type: "bytes32"},
	}, apitypes.TypedDataMessage{
		"account":      r.Account.Hex(),
		"nonce":        new(big.Int).SetUint64(r.Nonce).String(),
		"calldataHash": CalldataHash(r.Calldata).Hex(),
	})
}

func (t *TypedSigner) HashOperator(r OperatorRequest) ([]byte, error) {
	return t.digest("OperatorUpdate", []apitypes.Type{
		{Name: "delegate", Type: "address"},
		{Name: "enabled", Type: "bool"},
		{Name: "nonce", Type: "uint256"},
	}, apitypes.TypedDataMessage{
		"delegate": r.Delegate.Hex(),
		"enabled":  r.Enabled,
		"nonce":    new(big.Int).SetUint64(r.Nonce).String(),
	})
}

func (t *TypedSigner) HashClaim(r ClaimRequest) ([]byte, error) {
	return t.digest("Claim", []apitypes.Type{
		{Name: "unwrap", Type: "bool"},
		{Name: "nonce", Type: "uint256"},
	}, apitypes.TypedDataMessage{
		"unwrap": r.Unwrap,
		"nonce":  new(big.Int).SetUint64(r.Nonce).String(),
	})
}

// SignInvoke returns the signature over r's digest.
func (t *TypedSigner) SignInvoke(s *Signer, r InvokeRequest) ([]byte, error) {
	hash, err := t.HashInvoke(r)
	if err != nil {
		return nil, err
	}
	return s.Sign(hash)
}

func (t *TypedSigner) SignOperator(s *Signer, r OperatorRequest) ([]byte, error) {
	hash, err := t.HashOperator(r)
	if err != nil {
		return nil, err
	}
	return s.Sign(hash)
}

func (t *TypedSigner) SignClaim(s *Signer, r ClaimRequest) ([]byte, error) {
	hash, err := t.HashClaim(r)
	if err != nil {
		return nil, err
	}
	return s.Sign(hash)
}

func (t *TypedSigner) digest(primary string, fields []apitypes.Type, msg apitypes.TypedDataMessage) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainType,
			primary:        fields,
		},
		PrimaryType: primary,
		Domain: apitypes.TypedDataDomain{
			Name:              t.domain.Name,
			Version:           t.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(t.domain.ChainID),
			VerifyingContract: t.domain.VerifyingContract.Hex(),
		},
		Message: msg,
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}
	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	// keccak256("\x19\x01" || domainSeparator || typedDataHash)
	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	return crypto.Keccak256Hash(rawData).Bytes(), nil
}
