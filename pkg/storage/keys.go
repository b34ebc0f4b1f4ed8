package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Key schema:
//
//	bal:<asset>:<user>  → ledger.Balance
//	ord:<id>            → exchange.Order
//	evt:<seq>           → exchange.Record
//	blk:<height>        → dex.Block
//	rcpt:<hash>         → dex.Receipt
//	meta:order_count    → uint64
//	meta:last_ts        → uint64 (unix seconds)
//	meta:chain          → dex.ChainState
//	meta:head           → uint64 (latest block height)
//
// Numeric ids are zero-padded to 20 digits so keys sort numerically.
const (
	prefixBalance = "bal:"
	prefixOrder   = "ord:"
	prefixEvent   = "evt:"
	prefixBlock   = "blk:"
	prefixReceipt = "rcpt:"
)

var (
	keyOrderCount = []byte("meta:order_count")
	keyLastTS     = []byte("meta:last_ts")
	keyChain      = []byte("meta:chain")
	keyHead       = []byte("meta:head")
)

func balanceKey(asset, user common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, asset.Hex(), user.Hex()))
}

func orderKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixOrder, id))
}

func eventKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixEvent, seq))
}

func blockKey(height uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixBlock, height))
}

func receiptKey(hash common.Hash) []byte {
	return []byte(prefixReceipt + hash.Hex())
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	for i := len(bound) - 1; i >= 0; i-- {
		if bound[i] < 0xff {
			bound[i]++
			return bound[:i+1]
		}
	}
	return nil
}
