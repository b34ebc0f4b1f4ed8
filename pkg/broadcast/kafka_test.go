package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uhyunpark/portex/pkg/app/core/exchange"
	"github.com/uhyunpark/portex/pkg/app/core/token"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs     []kafka.Message
	fail     bool
	attempts int
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts++
	if w.fail {
		return errors.New("broker unavailable")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.msgs)
}

func deposit(seq uint64) exchange.Record {
	return exchange.Record{Seq: seq, Time: time.Unix(1_700_000_000, 0).UTC(), Event: &exchange.DepositEvent{
		Token: exchange.Ether, User: common.HexToAddress("0x1"), Amount: big.NewInt(1), Balance: big.NewInt(int64(seq)),
	}}
}

func TestSinkExportsEngineEvents(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaSink(w, zap.NewNop().Sugar(), 16)

	ex, err := exchange.NewEngine(exchange.Config{
		Address:    common.HexToAddress("0xe0"),
		FeeAccount: common.HexToAddress("0xfee"),
		FeePercent: 10,
	}, token.NewRegistry())
	require.NoError(t, err)
	ex.Subscribe(sink.Observe)

	ctx, cancel := context.WithCancel(context.Background())
	go sink.Run(ctx)

	user := common.HexToAddress("0xA11CE")
	_, err = ex.DepositEther(ctx, user, big.NewInt(5))
	require.NoError(t, err)
	_, err = ex.MakeOrder(ctx, user, common.HexToAddress("0x7047"), big.NewInt(1), exchange.Ether, big.NewInt(5))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return w.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-sink.Done()

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.True(t, w.closed)
	assert.Equal(t, "Deposit", string(w.msgs[0].Key))
	assert.Equal(t, "Order", string(w.msgs[1].Key))
	assert.Equal(t, "2", string(w.msgs[1].Headers[0].Value))

	var rec exchange.Record
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &rec))
	order, ok := rec.Event.(*exchange.OrderEvent)
	require.True(t, ok)
	assert.Equal(t, uint64(1), order.ID)
	assert.Equal(t, user, order.User)
}

func TestSinkDropsWhenFull(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaSink(w, zap.NewNop().Sugar(), 2)

	for i := uint64(1); i <= 5; i++ {
		sink.Observe(deposit(i))
	}
	assert.Equal(t, uint64(3), sink.Dropped())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink.Run(ctx)

	assert.Equal(t, 2, w.count())
	assert.True(t, w.closed)
}

func TestSinkSurvivesWriteErrors(t *testing.T) {
	w := &fakeWriter{fail: true}
	sink := NewKafkaSink(w, zap.NewNop().Sugar(), 4)
	ctx, cancel := context.WithCancel(context.Background())
	go sink.Run(ctx)

	sink.Observe(deposit(1))
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.attempts == 1
	}, time.Second, 5*time.Millisecond)

	w.mu.Lock()
	w.fail = false
	w.mu.Unlock()
	sink.Observe(deposit(2))
	require.Eventually(t, func() bool { return w.count() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-sink.Done()
	assert.Equal(t, "2", string(w.msgs[0].Headers[0].Value))
}
