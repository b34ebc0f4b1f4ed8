package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uhyunpark/portex/params"
	"github.com/uhyunpark/portex/pkg/app/core/exchange"
	"github.com/uhyunpark/portex/pkg/app/core/transaction"
	"github.com/uhyunpark/portex/pkg/app/dex"
	"github.com/uhyunpark/portex/pkg/crypto"
	"github.com/uhyunpark/portex/pkg/util"
)

type fixture struct {
	t      *testing.T
	app    *dex.App
	srv    *Server
	clock  *util.ManualClock
	trader *crypto.Signer
	nonce  uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	trader, err := crypto.GenerateKey()
	require.NoError(t, err)

	cfg := params.Default()
	cfg.Genesis.Alloc = map[common.Address]*big.Int{trader.Address(): params.Ether(10)}
	clock := util.NewManualClock(time.Unix(1_700_000_000, 0))
	app, err := dex.NewApp(cfg, dex.WithClock(clock))
	require.NoError(t, err)

	return &fixture{t: t, app: app, srv: NewServer(app, zap.NewNop().Sugar(), nil), clock: clock, trader: trader}
}

func (f *fixture) do(method, path string, body []byte) *httptest.ResponseRecorder {
	f.t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) get(path string, out any) int {
	f.t.Helper()
	rec := f.do(http.MethodGet, path, nil)
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func (f *fixture) signed(a *transaction.Action) []byte {
	f.t.Helper()
	f.nonce++
	a.Nonce = f.nonce
	tx, err := transaction.Sign(f.app.Domain(), f.trader, a)
	require.NoError(f.t, err)
	raw, err := tx.Serialize()
	require.NoError(f.t, err)
	return raw
}

func (f *fixture) submit(a *transaction.Action) SubmitTxResponse {
	f.t.Helper()
	rec := f.do(http.MethodPost, "/api/v1/tx", f.signed(a))
	require.Equal(f.t, http.StatusOK, rec.Code, rec.Body.String())
	var resp SubmitTxResponse
	require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (f *fixture) block() {
	f.t.Helper()
	f.clock.Advance(time.Second)
	b, err := f.app.ProduceBlock(context.Background(), f.clock.Now())
	require.NoError(f.t, err)
	require.NotNil(f.t, b)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	var body map[string]string
	require.Equal(t, http.StatusOK, f.get("/health", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestExchangeInfo(t *testing.T) {
	f := newFixture(t)
	var info ExchangeInfo
	require.Equal(t, http.StatusOK, f.get("/api/v1/exchange", &info))
	cfg := f.app.Config()
	assert.Equal(t, cfg.Exchange.FeeAccount.Hex(), info.FeeAccount)
	assert.Equal(t, uint64(10), info.FeePercent)
	assert.Equal(t, "0", info.EtherHeld)
	assert.Equal(t, int64(1337), info.ChainID)
}

func TestSubmitAndQuery(t *testing.T) {
	f := newFixture(t)
	port := f.app.Config().Genesis.Token.Address
	user := f.trader.Address().Hex()

	assert.Equal(t, http.StatusNotFound, f.get("/api/v1/blocks/latest", nil))

	dep := f.submit(&transaction.Action{Type: transaction.TxDepositEther, Amount: params.Ether(2)})
	var pending dex.Receipt
	require.Equal(t, http.StatusOK, f.get("/api/v1/tx/"+dep.Hash, &pending))
	assert.Equal(t, dex.StatusPending, pending.Status)

	f.submit(&transaction.Action{Type: transaction.TxMakeOrder,
		TokenGet: port, AmountGet: params.Tokens(1), TokenGive: exchange.Ether, AmountGive: params.Ether(1)})
	f.block()

	var receipt dex.Receipt
	require.Equal(t, http.StatusOK, f.get("/api/v1/tx/"+dep.Hash, &receipt))
	assert.Equal(t, dex.StatusSuccess, receipt.Status)
	assert.Equal(t, uint64(1), receipt.Height)

	var bal BalanceInfo
	require.Equal(t, http.StatusOK, f.get("/api/v1/balances/ether/"+user, &bal))
	assert.Equal(t, params.Ether(2).String(), bal.Balance)

	var rows []BalanceInfo
	require.Equal(t, http.StatusOK, f.get("/api/v1/balances/"+user, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, exchange.Ether.Hex(), rows[0].Asset)

	var orders []OrderInfo
	require.Equal(t, http.StatusOK, f.get("/api/v1/orders?status=open", &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, uint64(1), orders[0].ID)
	assert.Equal(t, "open", orders[0].Status)

	require.Equal(t, http.StatusOK, f.get("/api/v1/orders?status=filled", &orders))
	assert.Empty(t, orders)

	require.Equal(t, http.StatusOK, f.get("/api/v1/accounts/"+user+"/orders", &orders))
	assert.Len(t, orders, 1)

	var order OrderInfo
	require.Equal(t, http.StatusOK, f.get("/api/v1/orders/1", &order))
	assert.Equal(t, params.Ether(1).String(), order.AmountGive)
	assert.Equal(t, http.StatusNotFound, f.get("/api/v1/orders/9", nil))

	var nonce NonceInfo
	require.Equal(t, http.StatusOK, f.get("/api/v1/accounts/"+user+"/nonce", &nonce))
	assert.Equal(t, uint64(2), nonce.Nonce)
	assert.Equal(t, uint64(3), nonce.NextNonce)

	var page EventsPage
	require.Equal(t, http.StatusOK, f.get("/api/v1/events?from=2&limit=10", &page))
	require.Len(t, page.Events, 1)
	assert.Equal(t, exchange.KindOrder, page.Events[0].Event.Kind())
	assert.Equal(t, uint64(3), page.Next)

	var head dex.Block
	require.Equal(t, http.StatusOK, f.get("/api/v1/blocks/latest", &head))
	assert.Equal(t, uint64(1), head.Height)
	assert.Len(t, head.Txs, 2)
}

func TestTokens(t *testing.T) {
	f := newFixture(t)
	cfg := f.app.Config()

	var tokens []TokenInfo
	require.Equal(t, http.StatusOK, f.get("/api/v1/tokens", &tokens))
	require.Len(t, tokens, 1)
	assert.Equal(t, "PRT", tokens[0].Symbol)
	assert.Equal(t, uint8(18), tokens[0].Decimals)

	var bal TokenBalance
	path := "/api/v1/tokens/" + cfg.Genesis.Token.Address.Hex() + "/balances/" + cfg.Genesis.Token.Deployer.Hex()
	require.Equal(t, http.StatusOK, f.get(path, &bal))
	assert.Equal(t, params.Tokens(cfg.Genesis.Token.Supply).String(), bal.Balance)

	unknown := "/api/v1/tokens/0x0000000000000000000000000000000000000bad/balances/" + cfg.Genesis.Token.Deployer.Hex()
	assert.Equal(t, http.StatusNotFound, f.get(unknown, nil))
}

func TestRejections(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusBadRequest, f.get("/api/v1/balances/nope", nil))
	assert.Equal(t, http.StatusBadRequest, f.get("/api/v1/orders?status=pending", nil))
	assert.Equal(t, http.StatusBadRequest, f.get("/api/v1/events?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, f.get("/api/v1/tx/0x1234", nil))
	assert.Equal(t, http.StatusNotFound, f.get("/api/v1/tx/"+common.Hash{9}.Hex(), nil))

	rec := f.do(http.MethodPost, "/api/v1/tx", []byte(`{"type":"deposit_ether"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	raw := f.signed(&transaction.Action{Type: transaction.TxDepositEther, Amount: big.NewInt(1)})
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/v1/tx", raw).Code)
	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/api/v1/tx", raw).Code)

	f.block()
	rec = f.do(http.MethodPost, "/api/v1/tx", raw)
	assert.Equal(t, http.StatusConflict, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Message, dex.ErrStaleNonce.Error())
}

func TestAccountChannelNormalized(t *testing.T) {
	assert.Equal(t, "account:0xabcdef", normalizeChannel("account:0xABCDEF"))
	assert.Equal(t, "trades", normalizeChannel("trades"))
}

func TestWebSocketAccountFeed(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.srv.hub.Run(ctx)

	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?channel=account:" + f.trader.Address().Hex()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return f.srv.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	f.submit(&transaction.Action{Type: transaction.TxDepositEther, Amount: big.NewInt(42)})
	f.block()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Channel string          `json:"channel"`
		Type    string          `json:"type"`
		Data    exchange.Record `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, AccountChannel(f.trader.Address().Hex()), msg.Channel)
	assert.Equal(t, string(exchange.KindDeposit), msg.Type)
	dep, ok := msg.Data.Event.(*exchange.DepositEvent)
	require.True(t, ok)
	assert.Equal(t, "42", dep.Amount.String())
}
