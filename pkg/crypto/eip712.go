package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain represents the domain separator for EIP-712 typed data
// This prevents replay attacks across different chains/contracts
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address // the exchange address
}

// DefaultDomain returns the local development domain.
func DefaultDomain() EIP712Domain {
	return NewDomain(1337, common.Address{})
}

func NewDomain(chainID int64, verifyingContract common.Address) EIP712Domain {
	return EIP712Domain{
		Name:              "Portex",
		Version:           "1",
		ChainID:           big.NewInt(chainID),
		VerifyingContract: verifyingContract,
	}
}

var domainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// ActionTypes is the EIP-712 struct definition of every signed exchange action.
// Every struct carries the signer (`from`) and a replay-protection nonce.
var ActionTypes = map[string][]apitypes.Type{
	"DepositEther": {
		{Name: "from", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
	},
	"WithdrawEther": {
		{Name: "from", Type: "address"},
		{Name: "amount", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
	},
	"DepositToken": {
		{Name: "from", Type: "address"},
		{Name: "token", Type: "address"},
		{Name: "amount", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
	},
	"WithdrawToken": {
		{Name: "from", Type: "address"},
		{Name: "token", Type: "address"},
		{Name: "amount", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
	},
	"MakeOrder": {
		{Name: "from", Type: "address"},
		{Name: "tokenGet", Type: "address"},
		{Name: "amountGet", Type: "uint256"},
		{Name: "tokenGive", Type: "address"},
		{Name: "amountGive", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
	},
	"CancelOrder": {
		{Name: "from", Type: "address"},
		{Name: "orderId", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
	},
	"FillOrder": {
		{Name: "from", Type: "address"},
		{Name: "orderId", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
	},
	"TokenTransfer": {
		{Name: "from", Type: "address"},
		{Name: "token", Type: "address"},
		{Name: "to", Type: "address"},
		{Name: "amount", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
	},
	"TokenApprove": {
		{Name: "from", Type: "address"},
		{Name: "token", Type: "address"},
		{Name: "spender", Type: "address"},
		{Name: "amount", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
	},
}

// EIP712Signer hashes, signs and verifies exchange actions under one domain.
type EIP712Signer struct {
	domain EIP712Domain
}

func NewEIP712Signer(domain EIP712Domain) *EIP712Signer {
	return &EIP712Signer{domain: domain}
}

func (e *EIP712Signer) Domain() EIP712Domain { return e.domain }

func (e *EIP712Signer) typedData(primaryType string, message apitypes.TypedDataMessage) (apitypes.TypedData, error) {
	fields, ok := ActionTypes[primaryType]
	if !ok {
		return apitypes.TypedData{}, fmt.Errorf("unknown action type %q", primaryType)
	}
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainType,
			primaryType:    fields,
		},
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              e.domain.Name,
			Version:           e.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(e.domain.ChainID),
			VerifyingContract: e.domain.VerifyingContract.Hex(),
		},
		Message: message,
	}, nil
}

// Hash returns the EIP-712 digest of an action: keccak256("\x19\x01" || domainSeparator || structHash).
func (e *EIP712Signer) Hash(primaryType string, message apitypes.TypedDataMessage) ([]byte, error) {
	typedData, err := e.typedData(primaryType, message)
	if err != nil {
		return nil, err
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}
	structHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", primaryType, err)
	}

	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(structHash)))
	return crypto.Keccak256Hash(rawData).Bytes(), nil
}

// Sign signs an action with the given key.
func (e *EIP712Signer) Sign(signer *Signer, primaryType string, message apitypes.TypedDataMessage) ([]byte, error) {
	hash, err := e.Hash(primaryType, message)
	if err != nil {
		return nil, err
	}
	signature, err := signer.Sign(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign %s: %w", primaryType, err)
	}
	return signature, nil
}

// Recover returns the address that signed the action.
func (e *EIP712Signer) Recover(primaryType string, message apitypes.TypedDataMessage, signature []byte) (common.Address, error) {
	hash, err := e.Hash(primaryType, message)
	if err != nil {
		return common.Address{}, err
	}
	return RecoverAddress(hash, signature)
}

// TypedDataJSON renders the action in the eth_signTypedData_v4 format wallets expect.
func (e *EIP712Signer) TypedDataJSON(primaryType string, message apitypes.TypedDataMessage) (string, error) {
	typedData, err := e.typedData(primaryType, message)
	if err != nil {
		return "", err
	}
	jsonBytes, err := json.MarshalIndent(typedData, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(jsonBytes), nil
}
