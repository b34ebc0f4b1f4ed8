package dex

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/portex/pkg/app/core/exchange"
	"github.com/uhyunpark/portex/pkg/app/core/token"
	"github.com/uhyunpark/portex/pkg/app/core/transaction"
)

type TxStatus string

const (
	StatusPending TxStatus = "pending"
	StatusSuccess TxStatus = "success"
	StatusFailed  TxStatus = "failed"
)

// Receipt is the outcome of one included transaction.
type Receipt struct {
	Hash   common.Hash        `json:"hash"`
	Type   transaction.TxType `json:"type"`
	From   common.Address     `json:"from"`
	Nonce  uint64             `json:"nonce"`
	Status TxStatus           `json:"status"`
	Error  string             `json:"error,omitempty"`
	Events []exchange.Record  `json:"events,omitempty"`
	Height uint64             `json:"height"`
}

type Block struct {
	Height    uint64        `json:"height"`
	Time      int64         `json:"time"` // unix ms
	Parent    common.Hash   `json:"parent"`
	Hash      common.Hash   `json:"hash"`
	StateRoot common.Hash   `json:"state_root"`
	Txs       []common.Hash `json:"txs"`
}

// ChainState is everything outside the exchange engine that a restart must recover.
type ChainState struct {
	Height uint64                      `json:"height"`
	Nonces map[common.Address]uint64   `json:"nonces"`
	Ether  map[common.Address]*big.Int `json:"ether"`
	Tokens []token.State               `json:"tokens"`
}

// ChainStore persists blocks, receipts and chain state.
type ChainStore interface {
	// LoadChain returns nil state and block for an empty store.
	LoadChain() (*ChainState, *Block, error)
	// SaveBlock writes the block together with the engine changes made while applying it.
	SaveBlock(b *Block, receipts []*Receipt, state *ChainState, changes []*exchange.Changeset) error
	// Receipt returns nil, nil when hash is unknown.
	Receipt(hash common.Hash) (*Receipt, error)
	BlockByHeight(height uint64) (*Block, error)
}
