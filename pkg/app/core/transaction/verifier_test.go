package transaction

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/portex/pkg/crypto"
)

var port = common.HexToAddress("0x0000000000000000000000000000000000007047")

func signRaw(t *testing.T, key *crypto.Signer, a *Action) []byte {
	t.Helper()
	tx, err := Sign(crypto.DefaultDomain(), key, a)
	require.NoError(t, err)
	raw, err := tx.Serialize()
	require.NoError(t, err)
	return raw
}

func TestVerifyEveryType(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	other := common.HexToAddress("0x2000000000000000000000000000000000000002")
	v := NewVerifier(crypto.DefaultDomain())

	actions := []*Action{
		{Type: TxDepositEther, Nonce: 1, Amount: big.NewInt(5)},
		{Type: TxWithdrawEther, Nonce: 2, Amount: big.NewInt(5)},
		{Type: TxDepositToken, Nonce: 3, Token: port, Amount: big.NewInt(7)},
		{Type: TxWithdrawToken, Nonce: 4, Token: port, Amount: big.NewInt(7)},
		{Type: TxMakeOrder, Nonce: 5, TokenGet: port, AmountGet: big.NewInt(10), TokenGive: common.Address{}, AmountGive: big.NewInt(1)},
		{Type: TxCancelOrder, Nonce: 6, OrderID: 1},
		{Type: TxFillOrder, Nonce: 7, OrderID: 2},
		{Type: TxTokenTransfer, Nonce: 8, Token: port, To: other, Amount: big.NewInt(3)},
		{Type: TxTokenApprove, Nonce: 9, Token: port, To: other, Amount: big.NewInt(3)},
	}
	seen := make(map[common.Hash]bool)
	for _, a := range actions {
		t.Run(string(a.Type), func(t *testing.T) {
			got, err := v.Verify(signRaw(t, key, a))
			require.NoError(t, err)
			assert.Equal(t, key.Address(), got.From)
			assert.Equal(t, a.Type, got.Type)
			assert.Equal(t, a.Nonce, got.Nonce)
			assert.False(t, seen[got.Hash], "hashes are unique")
			seen[got.Hash] = true
		})
	}
}

func TestVerifyRejectsImpersonation(t *testing.T) {
	key, _ := crypto.GenerateKey()
	v := NewVerifier(crypto.DefaultDomain())

	tx, err := Sign(crypto.DefaultDomain(), key, &Action{Type: TxFillOrder, Nonce: 1, OrderID: 1})
	require.NoError(t, err)
	tx.From = "0x2000000000000000000000000000000000000002"
	raw, _ := tx.Serialize()

	_, err = v.Verify(raw)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyRejectsTampering(t *testing.T) {
	key, _ := crypto.GenerateKey()
	v := NewVerifier(crypto.DefaultDomain())

	tx, err := Sign(crypto.DefaultDomain(), key, &Action{Type: TxWithdrawEther, Nonce: 1, Amount: big.NewInt(1)})
	require.NoError(t, err)
	tx.Funds.Amount = "1000"
	raw, _ := tx.Serialize()

	_, err = v.Verify(raw)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyRejectsOtherDomain(t *testing.T) {
	key, _ := crypto.GenerateKey()
	tx, err := Sign(crypto.NewDomain(1, common.Address{}), key, &Action{Type: TxFillOrder, Nonce: 1, OrderID: 1})
	require.NoError(t, err)
	raw, _ := tx.Serialize()

	_, err = NewVerifier(crypto.DefaultDomain()).Verify(raw)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestDecodeMalformed(t *testing.T) {
	v := NewVerifier(crypto.DefaultDomain())

	cases := map[string]SignedTransaction{
		"unknown type":    {Type: "liquidate", From: port.Hex(), Nonce: "1", Signature: "0x00"},
		"missing sig":     {Type: TxFillOrder, From: port.Hex(), Nonce: "1", OrderRef: &OrderRefPayload{OrderID: "1"}},
		"bad from":        {Type: TxFillOrder, From: "alice", Nonce: "1", OrderRef: &OrderRefPayload{OrderID: "1"}, Signature: "0x00"},
		"bad nonce":       {Type: TxFillOrder, From: port.Hex(), Nonce: "-1", OrderRef: &OrderRefPayload{OrderID: "1"}, Signature: "0x00"},
		"missing payload": {Type: TxMakeOrder, From: port.Hex(), Nonce: "1", Signature: "0x00"},
		"negative amount": {Type: TxDepositEther, From: port.Hex(), Nonce: "1", Funds: &FundsPayload{Amount: "-5"}, Signature: "0x00"},
	}
	for name, tx := range cases {
		t.Run(name, func(t *testing.T) {
			raw, err := json.Marshal(tx)
			require.NoError(t, err)
			_, err = v.Verify(raw)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}

	_, err := v.Verify([]byte("O:GTC:BTC-USDT"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	a := &Action{Type: TxMakeOrder, From: port, Nonce: 4, TokenGet: port, AmountGet: big.NewInt(10), AmountGive: big.NewInt(1)}
	tx := a.Envelope()
	tx.Signature = "0x01"
	back, err := tx.Decode()
	require.NoError(t, err)
	assert.Equal(t, a.TokenGet, back.TokenGet)
	assert.Equal(t, "10", back.AmountGet.String())
	assert.Equal(t, common.Address{}, back.TokenGive)
}
