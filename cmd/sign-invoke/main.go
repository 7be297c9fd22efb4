package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"github.com/equilibria-xyz/perennial-v2-sub004/params"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/api"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/crypto"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/invoker"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/order"
)

// sign-invoke builds a one-action PlaceOrder batch, signs it and prints the
// request body for POST /api/v1/invoke.
func main() {
	key := flag.String("key", "", "hex private key; a fresh key is generated when empty")
	market := flag.String("market", "", "market address (defaults to the first configured market)")
	trigger := flag.String("trigger", "1200", "trigger price")
	size := flag.String("size", "1", "size delta")
	maxFee := flag.String("max-fee", "5", "keeper fee ceiling")
	below := flag.Bool("below", false, "trigger when price <= trigger (default: >=)")
	nonce := flag.Uint64("nonce", 1, "request nonce")
	flag.Parse()

	cfg := params.LoadFromEnv("")

	signer, err := loadSigner(*key)
	if err != nil {
		fail("key", err)
	}
	fmt.Fprintf(os.Stderr, "Signer: %s\n", signer.Address().Hex())
	if *key == "" {
		fmt.Fprintf(os.Stderr, "Private Key: %s (KEEP SECRET!)\n", signer.PrivateKeyHex())
	}

	mkt := cfg.Markets[0].Address
	if *market != "" {
		if !common.IsHexAddress(*market) {
			fail("market", fmt.Errorf("not an address: %s", *market))
		}
		mkt = common.HexToAddress(*market)
	}

	terms := order.Terms{
		IsLimit:      true,
		Side:         order.SideLong,
		Comparison:   order.AboveMarket,
		TriggerPrice: decimal.RequireFromString(*trigger),
		SizeDelta:    decimal.RequireFromString(*size),
		MaxFee:       decimal.RequireFromString(*maxFee),
	}
	if *below {
		terms.Comparison = order.BelowMarket
	}
	if err := terms.Validate(); err != nil {
		fail("order", err)
	}

	inv, err := invoker.EncodePlaceOrder(invoker.PlaceOrderArgs{Market: mkt, Terms: terms})
	if err != nil {
		fail("encode", err)
	}
	calldata, err := invoker.EncodeBatch([]invoker.Invocation{inv})
	if err != nil {
		fail("encode batch", err)
	}

	domain := crypto.DefaultDomain(cfg.Invoker.Address)
	domain.ChainID = big.NewInt(cfg.Invoker.ChainID)
	typed := crypto.NewTypedSigner(domain)
	req := crypto.InvokeRequest{Account: signer.Address(), Nonce: *nonce, Calldata: calldata}
	sig, err := typed.SignInvoke(signer, req)
	if err != nil {
		fail("sign", err)
	}

	// Round-trip through recovery so a bad domain shows up here, not at the API.
	hash, err := typed.HashInvoke(req)
	if err != nil {
		fail("hash", err)
	}
	if !crypto.VerifySignature(signer.Address(), hash, sig) {
		fail("verify", fmt.Errorf("signature does not recover to %s", signer.Address().Hex()))
	}

	body, err := json.MarshalIndent(api.InvokeRequest{
		Account:   signer.Address().Hex(),
		Calldata:  hexutil.Encode(calldata),
		Nonce:     *nonce,
		Signature: hexutil.Encode(sig),
	}, "", "  ")
	if err != nil {
		fail("marshal", err)
	}
	fmt.Println(string(body))
}

func loadSigner(hexKey string) (*crypto.Signer, error) {
	if hexKey == "" {
		return crypto.GenerateKey()
	}
	return crypto.FromPrivateKeyHex(strings.TrimPrefix(hexKey, "0x"))
}

func fail(step string, err error) {
	fmt.Fprintf(os.Stderr, "Error (%s): %v\n", step, err)
	os.Exit(1)
}
