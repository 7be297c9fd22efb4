package api

import (
	"github.com/shopspring/decimal"

	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/order"
)

// ==============================
// REST Request Types
// ==============================

// InvokeRequest is the signed envelope for POST /api/v1/invoke.
// The signer is the caller; Account is the onBehalfOf account.
type InvokeRequest struct {
	Account   string `json:"account"`
	Calldata  string `json:"calldata"` // 0x-hex encoded batch
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

// OperatorRequest is the payload for POST /api/v1/operators
type OperatorRequest struct {
	Delegate  string `json:"delegate"`
	Enabled   bool   `json:"enabled"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

// ClaimRequest is the payload for POST /api/v1/fees/claim
type ClaimRequest struct {
	Unwrap    bool   `json:"unwrap"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

// ==============================
// REST Response Types
// ==============================

// OrderInfo represents a stored trigger order
type OrderInfo struct {
	ID           uint64          `json:"id"`
	Owner        string          `json:"owner"`
	Market       string          `json:"market"`
	IsLimit      bool            `json:"isLimit"`
	Side         string          `json:"side"`       // "maker", "long", "short", "collateral"
	Comparison   string          `json:"comparison"` // "above" or "below"
	TriggerPrice decimal.Decimal `json:"triggerPrice"`
	SizeDelta    decimal.Decimal `json:"sizeDelta"`
	MaxFee       decimal.Decimal `json:"maxFee"`
	Status       string          `json:"status"` // "open", "cancelled", "executed"
}

func orderInfo(o *order.TriggerOrder) OrderInfo {
	return OrderInfo{
		ID:           o.ID,
		Owner:        o.Owner.Hex(),
		Market:       o.Market.Hex(),
		IsLimit:      o.IsLimit,
		Side:         o.Side.String(),
		Comparison:   o.Comparison.String(),
		TriggerPrice: o.TriggerPrice,
		SizeDelta:    o.SizeDelta,
		MaxFee:       o.MaxFee,
		Status:       o.Status.String(),
	}
}

type ExecutableResponse struct {
	Executable bool `json:"executable"`
}

// FeesResponse lists claimable interface fee credits of a receiver
type FeesResponse struct {
	Receiver string          `json:"receiver"`
	Internal decimal.Decimal `json:"internal"` // paid out as DSU
	External decimal.Decimal `json:"external"` // paid out as USDC
}

type NonceResponse struct {
	Address string `json:"address"`
	Nonce   uint64 `json:"nonce"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSMessage is the base structure for all WebSocket messages
type WSMessage struct {
	Type string      `json:"type"` // "order_placed", "order_executed", ...
	Data interface{} `json:"data"`
}

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["events", "account:0x..."]
}
