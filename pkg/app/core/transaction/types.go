package transaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// TxType represents the type of transaction
type TxType string

const (
	TxDepositEther  TxType = "deposit_ether"
	TxWithdrawEther TxType = "withdraw_ether"
	TxDepositToken  TxType = "deposit_token"
	TxWithdrawToken TxType = "withdraw_token"
	TxMakeOrder     TxType = "make_order"
	TxCancelOrder   TxType = "cancel_order"
	TxFillOrder     TxType = "fill_order"
	TxTokenTransfer TxType = "token_transfer"
	TxTokenApprove  TxType = "token_approve"
)

// primaryTypes maps a tx type to its EIP-712 struct name.
var primaryTypes = map[TxType]string{
	TxDepositEther:  "DepositEther",
	TxWithdrawEther: "WithdrawEther",
	TxDepositToken:  "DepositToken",
	TxWithdrawToken: "WithdrawToken",
	TxMakeOrder:     "MakeOrder",
	TxCancelOrder:   "CancelOrder",
	TxFillOrder:     "FillOrder",
	TxTokenTransfer: "TokenTransfer",
	TxTokenApprove:  "TokenApprove",
}

var ErrMalformed = errors.New("malformed transaction")

// SignedTransaction is the JSON envelope clients submit. Numbers are decimal strings.
type SignedTransaction struct {
	Type      TxType           `json:"type"`
	From      string           `json:"from"`
	Nonce     string           `json:"nonce"`
	Funds     *FundsPayload    `json:"funds,omitempty"`     // deposits and withdrawals
	Order     *OrderPayload    `json:"order,omitempty"`     // make_order
	OrderRef  *OrderRefPayload `json:"order_ref,omitempty"` // cancel_order, fill_order
	Token     *TokenPayload    `json:"token,omitempty"`     // token_transfer, token_approve
	Signature string           `json:"signature"`
}

// FundsPayload: Token is empty for ether.
type FundsPayload struct {
	Token  string `json:"token,omitempty"`
	Amount string `json:"amount"`
}

type OrderPayload struct {
	TokenGet   string `json:"token_get"`
	AmountGet  string `json:"amount_get"`
	TokenGive  string `json:"token_give"`
	AmountGive string `json:"amount_give"`
}

type OrderRefPayload struct {
	OrderID string `json:"order_id"`
}

// TokenPayload: To is the recipient of a transfer or the spender of an approval.
type TokenPayload struct {
	Token  string `json:"token"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// Action is a decoded, typed transaction.
type Action struct {
	Type  TxType
	From  common.Address
	Nonce uint64

	Token  common.Address
	To     common.Address
	Amount *big.Int

	TokenGet   common.Address
	AmountGet  *big.Int
	TokenGive  common.Address
	AmountGive *big.Int

	OrderID uint64
}

func (tx *SignedTransaction) Serialize() ([]byte, error) {
	return json.Marshal(tx)
}

func Deserialize(data []byte) (*SignedTransaction, error) {
	var tx SignedTransaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &tx, nil
}

// Decode validates the envelope and converts it into an Action.
func (tx *SignedTransaction) Decode() (*Action, error) {
	if _, ok := primaryTypes[tx.Type]; !ok {
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, tx.Type)
	}
	if tx.Signature == "" {
		return nil, fmt.Errorf("%w: missing signature", ErrMalformed)
	}
	from, err := parseAddress("from", tx.From)
	if err != nil {
		return nil, err
	}
	nonce, err := strconv.ParseUint(tx.Nonce, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce %q", ErrMalformed, tx.Nonce)
	}
	a := &Action{Type: tx.Type, From: from, Nonce: nonce}

	switch tx.Type {
	case TxDepositEther, TxWithdrawEther, TxDepositToken, TxWithdrawToken:
		if tx.Funds == nil {
			return nil, fmt.Errorf("%w: %s requires funds payload", ErrMalformed, tx.Type)
		}
		if tx.Type == TxDepositToken || tx.Type == TxWithdrawToken {
			if a.Token, err = parseAddress("token", tx.Funds.Token); err != nil {
				return nil, err
			}
		}
		if a.Amount, err = parseAmount("amount", tx.Funds.Amount); err != nil {
			return nil, err
		}

	case TxMakeOrder:
		if tx.Order == nil {
			return nil, fmt.Errorf("%w: make_order requires order payload", ErrMalformed)
		}
		if a.TokenGet, err = parseAddress("token_get", tx.Order.TokenGet); err != nil {
			return nil, err
		}
		if a.AmountGet, err = parseAmount("amount_get", tx.Order.AmountGet); err != nil {
			return nil, err
		}
		if a.TokenGive, err = parseAddress("token_give", tx.Order.TokenGive); err != nil {
			return nil, err
		}
		if a.AmountGive, err = parseAmount("amount_give", tx.Order.AmountGive); err != nil {
			return nil, err
		}

	case TxCancelOrder, TxFillOrder:
		if tx.OrderRef == nil {
			return nil, fmt.Errorf("%w: %s requires order_ref payload", ErrMalformed, tx.Type)
		}
		if a.OrderID, err = strconv.ParseUint(tx.OrderRef.OrderID, 10, 64); err != nil {
			return nil, fmt.Errorf("%w: order_id %q", ErrMalformed, tx.OrderRef.OrderID)
		}

	case TxTokenTransfer, TxTokenApprove:
		if tx.Token == nil {
			return nil, fmt.Errorf("%w: %s requires token payload", ErrMalformed, tx.Type)
		}
		if a.Token, err = parseAddress("token", tx.Token.Token); err != nil {
			return nil, err
		}
		if a.To, err = parseAddress("to", tx.Token.To); err != nil {
			return nil, err
		}
		if a.Amount, err = parseAmount("amount", tx.Token.Amount); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Envelope builds the unsigned JSON envelope for a.
func (a *Action) Envelope() *SignedTransaction {
	tx := &SignedTransaction{Type: a.Type, From: a.From.Hex(), Nonce: strconv.FormatUint(a.Nonce, 10)}
	switch a.Type {
	case TxDepositEther, TxWithdrawEther:
		tx.Funds = &FundsPayload{Amount: a.Amount.String()}
	case TxDepositToken, TxWithdrawToken:
		tx.Funds = &FundsPayload{Token: a.Token.Hex(), Amount: a.Amount.String()}
	case TxMakeOrder:
		tx.Order = &OrderPayload{
			TokenGet:   a.TokenGet.Hex(),
			AmountGet:  a.AmountGet.String(),
			TokenGive:  a.TokenGive.Hex(),
			AmountGive: a.AmountGive.String(),
		}
	case TxCancelOrder, TxFillOrder:
		tx.OrderRef = &OrderRefPayload{OrderID: strconv.FormatUint(a.OrderID, 10)}
	case TxTokenTransfer, TxTokenApprove:
		tx.Token = &TokenPayload{Token: a.Token.Hex(), To: a.To.Hex(), Amount: a.Amount.String()}
	}
	return tx
}

// TypedMessage returns the EIP-712 primary type and message for a.
func (a *Action) TypedMessage() (string, apitypes.TypedDataMessage) {
	msg := apitypes.TypedDataMessage{
		"from":  a.From.Hex(),
		"nonce": strconv.FormatUint(a.Nonce, 10),
	}
	switch a.Type {
	case TxDepositEther:
		msg["value"] = a.Amount.String()
	case TxWithdrawEther:
		msg["amount"] = a.Amount.String()
	case TxDepositToken, TxWithdrawToken:
		msg["token"] = a.Token.Hex()
		msg["amount"] = a.Amount.String()
	case TxMakeOrder:
		msg["tokenGet"] = a.TokenGet.Hex()
		msg["amountGet"] = a.AmountGet.String()
		msg["tokenGive"] = a.TokenGive.Hex()
		msg["amountGive"] = a.AmountGive.String()
	case TxCancelOrder, TxFillOrder:
		msg["orderId"] = strconv.FormatUint(a.OrderID, 10)
	case TxTokenTransfer:
		msg["token"] = a.Token.Hex()
		msg["to"] = a.To.Hex()
		msg["amount"] = a.Amount.String()
	case TxTokenApprove:
		msg["token"] = a.Token.Hex()
		msg["spender"] = a.To.Hex()
		msg["amount"] = a.Amount.String()
	}
	return primaryTypes[a.Type], msg
}

// IsOrderFlow reports whether the tx creates or consumes an order.
func (t TxType) IsOrderFlow() bool { return t == TxMakeOrder || t == TxFillOrder }

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %s %q is not an address", ErrMalformed, field, s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(field, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s %q", ErrMalformed, field, s)
	}
	return v, nil
}
