package api

import (
	"math/big"

	"github.com/uhyunpark/portex/pkg/app/core/exchange"
	"github.com/uhyunpark/portex/pkg/app/core/ledger"
	"github.com/uhyunpark/portex/pkg/app/core/token"
)

// API response types for REST endpoints and WebSocket messages.
// Amounts are decimal strings in the asset's smallest unit.

// ==============================
// REST Response Types
// ==============================

// ExchangeInfo describes the engine's static configuration and custody totals
type ExchangeInfo struct {
	Address     string `json:"address"`
	FeeAccount  string `json:"feeAccount"`
	FeePercent  uint64 `json:"feePercent"`
	OrderCount  uint64 `json:"orderCount"`
	EtherHeld   string `json:"etherHeld"`
	Height      uint64 `json:"height"`
	MempoolSize int    `json:"mempoolSize"`
	ChainID     int64  `json:"chainId"`
}

// BalanceInfo is one ledger row
type BalanceInfo struct {
	Asset   string `json:"asset"`
	User    string `json:"user"`
	Balance string `json:"balance"`
}

// OrderInfo is an order with its derived status
type OrderInfo struct {
	ID         uint64 `json:"id"`
	User       string `json:"user"`
	TokenGet   string `json:"tokenGet"`
	AmountGet  string `json:"amountGet"`
	TokenGive  string `json:"tokenGive"`
	AmountGive string `json:"amountGive"`
	Timestamp  int64  `json:"timestamp"` // Unix seconds
	Status     string `json:"status"`    // "open", "filled", "cancelled"
}

// TokenInfo describes a deployed token
type TokenInfo struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	TotalSupply string `json:"totalSupply"`
}

// TokenBalance is a wallet balance on a token, outside the exchange
type TokenBalance struct {
	Token   string `json:"token"`
	Owner   string `json:"owner"`
	Balance string `json:"balance"`
}

// NonceInfo tells a client which nonce to sign next
type NonceInfo struct {
	Address   string `json:"address"`
	Nonce     uint64 `json:"nonce"`
	NextNonce uint64 `json:"nextNonce"`
}

// SubmitTxResponse is returned after a transaction is queued
type SubmitTxResponse struct {
	Status string `json:"status"` // "submitted"
	Hash   string `json:"hash"`
}

// EventsPage is a slice of the committed event log
type EventsPage struct {
	Events []exchange.Record `json:"events"`
	Next   uint64            `json:"next"` // Seq to pass as ?from= for the following page
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is a client subscription request
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["trades", "account:0xabc..."]
}

// WSMessage wraps everything pushed to WebSocket clients
type WSMessage struct {
	Channel string `json:"channel"`
	Type    string `json:"type"` // event kind, or "block"
	Data    any    `json:"data"`
}

// BlockUpdate is pushed on the "blocks" channel after each committed block
type BlockUpdate struct {
	Height    uint64 `json:"height"`
	Hash      string `json:"hash"`
	StateRoot string `json:"stateRoot"`
	Time      int64  `json:"time"` // Unix milliseconds
	Txs       int    `json:"txs"`
	Failed    int    `json:"failed"`
}

// ==============================
// Conversions
// ==============================

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func toOrderInfo(o *exchange.Order) OrderInfo {
	return OrderInfo{
		ID:         o.ID,
		User:       o.User.Hex(),
		TokenGet:   o.TokenGet.Hex(),
		AmountGet:  amount(o.AmountGet),
		TokenGive:  o.TokenGive.Hex(),
		AmountGive: amount(o.AmountGive),
		Timestamp:  o.Timestamp,
		Status:     string(o.Status()),
	}
}

func toOrderInfos(orders []*exchange.Order) []OrderInfo {
	out := make([]OrderInfo, len(orders))
	for i, o := range orders {
		out[i] = toOrderInfo(o)
	}
	return out
}

func toBalanceInfos(rows []ledger.Balance) []BalanceInfo {
	out := make([]BalanceInfo, len(rows))
	for i, b := range rows {
		out[i] = BalanceInfo{Asset: b.Asset.Hex(), User: b.User.Hex(), Balance: amount(b.Amount)}
	}
	return out
}

func toTokenInfo(t *token.ERC20) TokenInfo {
	return TokenInfo{
		Address:     t.Address().Hex(),
		Name:        t.Name(),
		Symbol:      t.Symbol(),
		Decimals:    t.Decimals(),
		TotalSupply: amount(t.TotalSupply()),
	}
}
