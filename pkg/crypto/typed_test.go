package crypto

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	eth_crypto "github.com/ethereum/go-ethereum/crypto"
)

var invoker = common.HexToAddress("0x1100000000000000000000000000000000000000")

func TestCalldataHashIsKeccak(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	if got, want := CalldataHash(data), eth_crypto.Keccak256Hash(data); got != want {
		t.Errorf("CalldataHash = %s, want %s", got.Hex(), want.Hex())
	}
}

func TestInvokeSignatureRoundTrip(t *testing.T) {
	ts := NewTypedSigner(DefaultDomain(invoker))
	signer, _ := GenerateKey()
	req := InvokeRequest{Account: signer.Address(), Nonce: 7, Calldata: []byte("batch")}

	sig, err := ts.SignInvoke(signer, req)
	if err != nil {
		t.Fatalf("SignInvoke failed: %v", err)
	}
	hash, err := ts.HashInvoke(req)
	if err != nil {
		t.Fatalf("HashInvoke failed: %v", err)
	}
	got, err := RecoverAddress(hash, sig)
	if err != nil {
		t.Fatalf("RecoverAddress failed: %v", err)
	}
	if got != signer.Address() {
		t.Errorf("recovered = %s, want %s", got.Hex(), signer.Address().Hex())
	}
}

func TestTypedDigestsBindEveryField(t *testing.T) {
	ts := NewTypedSigner(DefaultDomain(invoker))
	base := InvokeRequest{Account: invoker, Nonce: 1, Calldata: []byte("a")}
	h0, _ := ts.HashInvoke(base)

	variants := map[string]InvokeRequest{
		"nonce":    {Account: invoker, Nonce: 2, Calldata: []byte("a")},
		"calldata": {Account: invoker, Nonce: 1, Calldata: []byte("b")},
		"account":  {Account: common.HexToAddress("0x01"), Nonce: 1, Calldata: []byte("a")},
	}
	for name, req := range variants {
		h, err := ts.HashInvoke(req)
		if err != nil {
			t.Fatalf("%s: HashInvoke failed: %v", name, err)
		}
		if bytes.Equal(h, h0) {
			t.Errorf("%s change did not alter the digest", name)
		}
	}

	other := DefaultDomain(common.HexToAddress("0x02"))
	h1, _ := NewTypedSigner(other).HashInvoke(base)
	if bytes.Equal(h1, h0) {
		t.Error("domain change did not alter the digest")
	}
}

func TestOperatorAndClaimDigests(t *testing.T) {
	ts := NewTypedSigner(DefaultDomain(invoker))
	signer, _ := GenerateKey()

	opReq := OperatorRequest{Delegate: invoker, Enabled: true, Nonce: 3}
	sig, err := ts.SignOperator(signer, opReq)
	if err != nil {
		t.Fatalf("SignOperator failed: %v", err)
	}
	hash, _ := ts.HashOperator(opReq)
	if !VerifySignature(signer.Address(), hash, sig) {
		t.Error("operator signature did not verify")
	}
	revoke, _ := ts.HashOperator(OperatorRequest{Delegate: invoker, Enabled: false, Nonce: 3})
	if bytes.Equal(revoke, hash) {
		t.Error("enabled flag not bound by the digest")
	}

	claimReq := ClaimRequest{Unwrap: true, Nonce: 4}
	sig, err = ts.SignClaim(signer, claimReq)
	if err != nil {
		t.Fatalf("SignClaim failed: %v", err)
	}
	hash, _ = ts.HashClaim(claimReq)
	if !VerifySignature(signer.Address(), hash, sig) {
		t.Error("claim signature did not verify")
	}
}
