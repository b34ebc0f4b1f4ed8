package storage

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNumericKeysSortNumerically(t *testing.T) {
	assert.Negative(t, bytes.Compare(orderKey(9), orderKey(10)))
	assert.Negative(t, bytes.Compare(eventKey(99), eventKey(100)))
	assert.Negative(t, bytes.Compare(blockKey(1), blockKey(1_000_000)))
}

func TestKeyUpperBound(t *testing.T) {
	assert.Equal(t, []byte("bal;"), keyUpperBound([]byte("bal:")))
	assert.Equal(t, []byte{0x02}, keyUpperBound([]byte{0x01, 0xff}))
	assert.Nil(t, keyUpperBound([]byte{0xff, 0xff}))

	b := balanceKey([20]byte{1}, [20]byte{2})
	assert.Negative(t, bytes.Compare(b, keyUpperBound([]byte(prefixBalance))))
}

func TestU64Codec(t *testing.T) {
	v, err := decodeU64(encodeU64(42))
	assert.NoError(t, err)
	assert.Equal(t, uint64(42), v)

	_, err = decodeU64([]byte{1})
	assert.Error(t, err)
}
