package dex

import (
	"bytes"
	"encoding/binary"
	"hash"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/uhyunpark/portex/pkg/app/core/exchange"
)

// stateRoot hashes every piece of state a block can change, in a fixed order:
//  1. exchange ledger rows (asset, user, amount), zero rows skipped
//  2. orders by id (id, user, legs, timestamp, status flags) and the order counter
//  3. sender nonces, by address
//  4. native ether balances, by address, zero skipped
//  5. token holdings per token, by address, zero skipped
//
// Caller must hold produceMu.
func (a *App) stateRoot() common.Hash {
	h := sha3.NewLegacyKeccak256()
	var buf [8]byte
	putU64 := func(v uint64) {
		binary.BigEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}

	for _, b := range a.engine.Ledger() {
		if b.Amount.Sign() == 0 {
			continue
		}
		h.Write(b.Asset[:])
		h.Write(b.User[:])
		writeInt(h, b.Amount)
	}

	for _, o := range a.engine.Orders(exchange.OrderFilter{}) {
		putU64(o.ID)
		h.Write(o.User[:])
		h.Write(o.TokenGet[:])
		writeInt(h, o.AmountGet)
		h.Write(o.TokenGive[:])
		writeInt(h, o.AmountGive)
		putU64(uint64(o.Timestamp))
		h.Write([]byte{boolByte(o.Filled), boolByte(o.Cancelled)})
	}
	putU64(a.engine.OrderCount())

	a.mu.RLock()
	addrs := make([]common.Address, 0, len(a.nonces))
	for addr := range a.nonces {
		addrs = append(addrs, addr)
	}
	sortAddrs(addrs)
	for _, addr := range addrs {
		h.Write(addr[:])
		putU64(a.nonces[addr])
	}
	a.mu.RUnlock()

	for _, addr := range a.bank.Accounts() {
		if bal := a.bank.BalanceOf(addr); bal.Sign() != 0 {
			h.Write(addr[:])
			writeInt(h, bal)
		}
	}

	for _, tok := range a.tokens.List() {
		taddr := tok.Address()
		h.Write(taddr[:])
		holders := tok.Holders()
		addrs := make([]common.Address, 0, len(holders))
		for addr, bal := range holders {
			if bal.Sign() != 0 {
				addrs = append(addrs, addr)
			}
		}
		sortAddrs(addrs)
		for _, addr := range addrs {
			h.Write(addr[:])
			writeInt(h, holders[addr])
		}
	}

	return common.BytesToHash(h.Sum(nil))
}

// blockHash commits to the header fields other than Hash itself.
func blockHash(b *Block) common.Hash {
	h := sha3.NewLegacyKeccak256()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], b.Height)
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(b.Time))
	h.Write(buf[:])
	h.Write(b.Parent[:])
	h.Write(b.StateRoot[:])
	for _, tx := range b.Txs {
		h.Write(tx[:])
	}
	return common.BytesToHash(h.Sum(nil))
}

// writeInt writes a length-prefixed big-endian magnitude so adjacent values cannot run together.
func writeInt(h hash.Hash, v *big.Int) {
	b := v.Bytes()
	h.Write([]byte{byte(len(b))})
	h.Write(b)
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func sortAddrs(addrs []common.Address) {
	sort.Slice(addrs, func(i, j int) bool { return bytes.Compare(addrs[i][:], addrs[j][:]) < 0 })
}
