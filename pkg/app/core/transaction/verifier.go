package transaction

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethCrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/uhyunpark/portex/pkg/crypto"
)

var ErrBadSignature = errors.New("bad signature")

// Verifier checks that a transaction was signed by its `from` address.
type Verifier struct {
	eip712Signer *crypto.EIP712Signer
}

func NewVerifier(domain crypto.EIP712Domain) *Verifier {
	return &Verifier{eip712Signer: crypto.NewEIP712Signer(domain)}
}

// Verified is a decoded transaction whose signature matched its sender.
type Verified struct {
	*Action
	Hash common.Hash
	Raw  []byte
}

// Verify parses raw bytes, decodes the action and checks the signature.
func (v *Verifier) Verify(raw []byte) (*Verified, error) {
	tx, err := Deserialize(raw)
	if err != nil {
		return nil, err
	}
	a, err := tx.Decode()
	if err != nil {
		return nil, err
	}
	sig, err := decodeSignature(tx.Signature)
	if err != nil {
		return nil, err
	}

	primaryType, msg := a.TypedMessage()
	digest, err := v.eip712Signer.Hash(primaryType, msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	signer, err := crypto.RecoverAddress(digest, sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if signer != a.From {
		return nil, fmt.Errorf("%w: signed by %s, claims %s", ErrBadSignature, signer.Hex(), a.From.Hex())
	}

	return &Verified{Action: a, Hash: txHash(digest), Raw: raw}, nil
}

// Sign produces a signed envelope for a, setting From to the key's address.
func Sign(domain crypto.EIP712Domain, key *crypto.Signer, a *Action) (*SignedTransaction, error) {
	a.From = key.Address()
	primaryType, msg := a.TypedMessage()
	sig, err := crypto.NewEIP712Signer(domain).Sign(key, primaryType, msg)
	if err != nil {
		return nil, err
	}
	tx := a.Envelope()
	tx.Signature = "0x" + hex.EncodeToString(sig)
	return tx, nil
}

// txHash identifies a transaction: keccak256 of its EIP-712 digest.
func txHash(digest []byte) common.Hash {
	return ethCrypto.Keccak256Hash(digest)
}

// decodeSignature decodes a 65-byte hex signature with or without 0x.
func decodeSignature(sig string) ([]byte, error) {
	sigBytes, err := hex.DecodeString(strings.TrimPrefix(sig, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hex signature: %v", ErrBadSignature, err)
	}
	if len(sigBytes) != 65 {
		return nil, fmt.Errorf("%w: signature must be 65 bytes, got %d", ErrBadSignature, len(sigBytes))
	}
	return sigBytes, nil
}
