package mempool

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/portex/pkg/app/core/transaction"
)

func vtx(typ transaction.TxType, id byte, size int) *transaction.Verified {
	return &transaction.Verified{
		Action: &transaction.Action{Type: typ},
		Hash:   common.Hash{id},
		Raw:    make([]byte, size),
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		typ      transaction.TxType
		expected Bucket
	}{
		{transaction.TxDepositEther, BucketNonOrder},
		{transaction.TxWithdrawToken, BucketNonOrder},
		{transaction.TxTokenApprove, BucketNonOrder},
		{transaction.TxCancelOrder, BucketCancel},
		{transaction.TxMakeOrder, BucketOrder},
		{transaction.TxFillOrder, BucketOrder},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			if got := Classify(tt.typ); got != tt.expected {
				t.Errorf("Classify() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMempool_Ordering(t *testing.T) {
	m := NewMempool()

	fill1 := vtx(transaction.TxFillOrder, 1, 10)
	cancel1 := vtx(transaction.TxCancelOrder, 2, 10)
	make1 := vtx(transaction.TxMakeOrder, 3, 10)
	deposit := vtx(transaction.TxDepositEther, 4, 10)
	cancel2 := vtx(transaction.TxCancelOrder, 5, 10)

	for _, tx := range []*transaction.Verified{fill1, cancel1, make1, deposit, cancel2} {
		if err := m.Push(tx); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	txs := m.SelectForProposal(0)
	expectOrder := []*transaction.Verified{deposit, cancel1, cancel2, fill1, make1}
	if len(txs) != len(expectOrder) {
		t.Fatalf("expected %d txs, got %d", len(expectOrder), len(txs))
	}
	for i, expected := range expectOrder {
		if txs[i] != expected {
			t.Errorf("tx[%d] = %s, want %s", i, txs[i].Type, expected.Type)
		}
	}
	if m.Len() != 0 {
		t.Errorf("expected empty mempool, got %d", m.Len())
	}
}

func TestMempool_MaxBytes(t *testing.T) {
	m := NewMempool()
	for i := byte(1); i <= 3; i++ {
		_ = m.Push(vtx(transaction.TxDepositEther, i, 3))
	}

	txs := m.SelectForProposal(6)
	if len(txs) != 2 {
		t.Errorf("expected 2 txs with maxBytes=6, got %d", len(txs))
	}
	if m.Len() != 1 {
		t.Errorf("expected 1 tx remaining, got %d", m.Len())
	}
	if !m.Has(common.Hash{3}) || m.Has(common.Hash{1}) {
		t.Error("pending set does not match queue contents")
	}
}

func TestMempool_Duplicate(t *testing.T) {
	m := NewMempool()
	tx := vtx(transaction.TxFillOrder, 9, 5)
	if err := m.Push(tx); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := m.Push(tx); err != ErrDuplicate {
		t.Errorf("second push err = %v, want ErrDuplicate", err)
	}

	m.SelectForProposal(0)
	if err := m.Push(tx); err != nil {
		t.Errorf("push after selection: %v", err)
	}
}
