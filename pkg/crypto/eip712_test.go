package crypto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

func makeOrderMessage(from common.Address) apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"from":       from.Hex(),
		"tokenGet":   "0x0000000000000000000000000000000000007047",
		"amountGet":  "10000000000000000000",
		"tokenGive":  common.Address{}.Hex(),
		"amountGive": "1000000000000000000",
		"nonce":      "1",
	}
}

func TestActionSignRecover(t *testing.T) {
	signer, _ := GenerateKey()
	e := NewEIP712Signer(DefaultDomain())
	msg := makeOrderMessage(signer.Address())

	sig, err := e.Sign(signer, "MakeOrder", msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	got, err := e.Recover("MakeOrder", msg, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if got != signer.Address() {
		t.Errorf("recovered %s, want %s", got.Hex(), signer.Address().Hex())
	}

	// Tampering with any field changes the signer.
	msg["amountGive"] = "2000000000000000000"
	got, err = e.Recover("MakeOrder", msg, sig)
	if err == nil && got == signer.Address() {
		t.Error("tampered message still recovers the signer")
	}
}

func TestHashIsDomainSeparated(t *testing.T) {
	signer, _ := GenerateKey()
	msg := makeOrderMessage(signer.Address())

	h1, err := NewEIP712Signer(NewDomain(1337, common.Address{})).Hash("MakeOrder", msg)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := NewEIP712Signer(NewDomain(1, common.Address{})).Hash("MakeOrder", msg)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if bytes.Equal(h1, h2) {
		t.Error("different chain ids produced the same digest")
	}
	if len(h1) != 32 {
		t.Errorf("digest length = %d, want 32", len(h1))
	}
}

func TestUnknownActionType(t *testing.T) {
	e := NewEIP712Signer(DefaultDomain())
	if _, err := e.Hash("Liquidate", apitypes.TypedDataMessage{}); err == nil {
		t.Error("expected error for unknown action type")
	}
}

func TestTypedDataJSON(t *testing.T) {
	e := NewEIP712Signer(DefaultDomain())
	out, err := e.TypedDataJSON("FillOrder", apitypes.TypedDataMessage{
		"from":    common.Address{}.Hex(),
		"orderId": "1",
		"nonce":   "3",
	})
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	for _, want := range []string{`"primaryType": "FillOrder"`, `"orderId"`, `"Portex"`} {
		if !strings.Contains(out, want) {
			t.Errorf("typed data JSON missing %s", want)
		}
	}
}
