package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/portex/pkg/app/core/exchange"
	"github.com/uhyunpark/portex/pkg/app/core/mempool"
	"github.com/uhyunpark/portex/pkg/app/core/transaction"
	"github.com/uhyunpark/portex/pkg/app/dex"
)

const (
	maxTxBytes        = 64 << 10
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// Server handles REST API and WebSocket connections
type Server struct {
	app     *dex.App
	router  *mux.Router
	hub     *Hub
	log     *zap.SugaredLogger
	origins []string

	unsubscribe func()
}

// NewServer creates the API server and subscribes it to committed exchange events.
func NewServer(app *dex.App, log *zap.SugaredLogger, corsOrigins []string) *Server {
	s := &Server{
		app:     app,
		router:  mux.NewRouter(),
		hub:     NewHub(log.Named("ws")),
		log:     log,
		origins: corsOrigins,
	}
	s.setupRoutes()
	s.unsubscribe = app.Engine().Subscribe(s.publishRecord)
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Exchange state
	api.HandleFunc("/exchange", s.handleGetExchange).Methods("GET")
	api.HandleFunc("/balances/{address}", s.handleGetBalances).Methods("GET")
	api.HandleFunc("/balances/{asset}/{address}", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/events", s.handleGetEvents).Methods("GET")

	// Account endpoints
	api.HandleFunc("/accounts/{address}/orders", s.handleGetAccountOrders).Methods("GET")
	api.HandleFunc("/accounts/{address}/nonce", s.handleGetNonce).Methods("GET")

	// Tokens
	api.HandleFunc("/tokens", s.handleGetTokens).Methods("GET")
	api.HandleFunc("/tokens/{token}/balances/{address}", s.handleGetTokenBalance).Methods("GET")

	// Transactions and blocks
	api.HandleFunc("/tx", s.handleSubmitTx).Methods("POST")
	api.HandleFunc("/tx/{hash}", s.handleGetTx).Methods("GET")
	api.HandleFunc("/blocks/latest", s.handleGetLatestBlock).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler is the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("api_server_starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.unsubscribe()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Infow("api_server_stopped")
	return nil
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetExchange(w http.ResponseWriter, r *http.Request) {
	ex := s.app.Engine()
	cfg := s.app.Config()
	respondJSON(w, ExchangeInfo{
		Address:     ex.Address().Hex(),
		FeeAccount:  ex.FeeAccount().Hex(),
		FeePercent:  ex.FeePercent(),
		OrderCount:  ex.OrderCount(),
		EtherHeld:   amount(ex.EtherHeld()),
		Height:      s.app.Height(),
		MempoolSize: s.app.Mempool().Len(),
		ChainID:     cfg.Chain.ChainID,
	})
}

func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	respondJSON(w, toBalanceInfos(s.app.Engine().Balances(addr)))
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	asset, err := parseAsset(mux.Vars(r)["asset"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid asset", err.Error())
		return
	}
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	respondJSON(w, BalanceInfo{
		Asset:   asset.Hex(),
		User:    addr.Hex(),
		Balance: amount(s.app.Engine().BalanceOf(asset, addr)),
	})
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	filter, ok := orderFilter(w, r)
	if !ok {
		return
	}
	if u := r.URL.Query().Get("user"); u != "" {
		if !common.IsHexAddress(u) {
			respondError(w, http.StatusBadRequest, "invalid user address", "")
			return
		}
		addr := common.HexToAddress(u)
		filter.User = &addr
	}
	respondJSON(w, toOrderInfos(s.app.Engine().Orders(filter)))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return
	}
	o, ok := s.app.Engine().Order(id)
	if !ok {
		respondError(w, http.StatusNotFound, "order not found", "")
		return
	}
	respondJSON(w, toOrderInfo(o))
}

func (s *Server) handleGetAccountOrders(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	filter, ok := orderFilter(w, r)
	if !ok {
		return
	}
	filter.User = &addr
	respondJSON(w, toOrderInfos(s.app.Engine().Orders(filter)))
}

func (s *Server) handleGetNonce(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	n := s.app.Nonce(addr)
	respondJSON(w, NonceInfo{Address: addr.Hex(), Nonce: n, NextNonce: n + 1})
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var from uint64
	if v := q.Get("from"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid from", err.Error())
			return
		}
		from = n
	}
	limit := defaultEventLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", "")
			return
		}
		limit = min(n, maxEventLimit)
	}

	events := s.app.Engine().Events().Since(from, limit)
	page := EventsPage{Events: events, Next: from}
	if n := len(events); n > 0 {
		page.Next = events[n-1].Seq + 1
	} else {
		page.Events = []exchange.Record{}
	}
	respondJSON(w, page)
}

func (s *Server) handleGetTokens(w http.ResponseWriter, r *http.Request) {
	tokens := s.app.Tokens().List()
	out := make([]TokenInfo, len(tokens))
	for i, t := range tokens {
		out[i] = toTokenInfo(t)
	}
	respondJSON(w, out)
}

func (s *Server) handleGetTokenBalance(w http.ResponseWriter, r *http.Request) {
	tokenAddr, ok := pathAddress(w, r, "token")
	if !ok {
		return
	}
	owner, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	t, found := s.app.Tokens().Get(tokenAddr)
	if !found {
		respondError(w, http.StatusNotFound, "token not found", "")
		return
	}
	respondJSON(w, TokenBalance{Token: tokenAddr.Hex(), Owner: owner.Hex(), Balance: amount(t.BalanceOf(owner))})
}

func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTxBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body", err.Error())
		return
	}

	hash, err := s.app.Submit(raw)
	if err != nil {
		s.log.Debugw("tx_rejected", "err", err, "bytes", len(raw))
		respondError(w, statusFor(err), "transaction rejected", err.Error())
		return
	}
	s.log.Debugw("tx_accepted", "hash", hash.Hex(), "bytes", len(raw))
	respondJSON(w, SubmitTxResponse{Status: "submitted", Hash: hash.Hex()})
}

func (s *Server) handleGetTx(w http.ResponseWriter, r *http.Request) {
	b, err := hexutil.Decode(mux.Vars(r)["hash"])
	if err != nil || len(b) != common.HashLength {
		respondError(w, http.StatusBadRequest, "invalid transaction hash", "")
		return
	}
	receipt, err := s.app.Receipt(common.BytesToHash(b))
	if err != nil {
		respondError(w, statusFor(err), "transaction lookup failed", err.Error())
		return
	}
	respondJSON(w, receipt)
}

func (s *Server) handleGetLatestBlock(w http.ResponseWriter, r *http.Request) {
	b := s.app.LatestBlock()
	if b == nil {
		respondError(w, http.StatusNotFound, "no blocks yet", "")
		return
	}
	respondJSON(w, b)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods
// ==============================

// publishRecord fans a committed event out to the WebSocket channels it belongs to.
func (s *Server) publishRecord(rec exchange.Record) {
	kind := rec.Event.Kind()
	msg := WSMessage{Type: string(kind), Data: rec}

	send := func(channel string) {
		msg.Channel = channel
		s.hub.BroadcastToChannel(channel, msg)
	}

	send(ChannelEvents)
	switch kind {
	case exchange.KindTrade:
		send(ChannelTrades)
		send(ChannelOrders)
	case exchange.KindOrder, exchange.KindCancel:
		send(ChannelOrders)
	}

	seen := make(map[common.Address]bool, 2)
	for _, u := range rec.Event.Users() {
		if seen[u] {
			continue
		}
		seen[u] = true
		send(AccountChannel(u.Hex()))
	}
}

// BroadcastBlock pushes a block summary to the "blocks" channel.
func (s *Server) BroadcastBlock(b *dex.Block, receipts []*dex.Receipt) {
	failed := 0
	for _, r := range receipts {
		if r.Status == dex.StatusFailed {
			failed++
		}
	}
	s.hub.BroadcastToChannel(ChannelBlocks, WSMessage{
		Channel: ChannelBlocks,
		Type:    "block",
		Data: BlockUpdate{
			Height:    b.Height,
			Hash:      b.Hash.Hex(),
			StateRoot: b.StateRoot.Hex(),
			Time:      b.Time,
			Txs:       len(b.Txs),
			Failed:    failed,
		},
	})
}

// ==============================
// Helper Functions
// ==============================

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, transaction.ErrMalformed), errors.Is(err, transaction.ErrBadSignature):
		return http.StatusBadRequest
	case errors.Is(err, dex.ErrStaleNonce), errors.Is(err, mempool.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, dex.ErrUnknownTx), errors.Is(err, exchange.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, exchange.ErrUnauthorized):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func pathAddress(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	v := mux.Vars(r)[name]
	if !common.IsHexAddress(v) {
		respondError(w, http.StatusBadRequest, "invalid "+name, "")
		return common.Address{}, false
	}
	return common.HexToAddress(v), true
}

// parseAsset accepts a token address, or "eth"/"ether" for the zero address.
func parseAsset(v string) (common.Address, error) {
	switch strings.ToLower(v) {
	case "eth", "ether":
		return exchange.Ether, nil
	}
	if !common.IsHexAddress(v) {
		return common.Address{}, errors.New("expected an address or \"ether\"")
	}
	return common.HexToAddress(v), nil
}

func orderFilter(w http.ResponseWriter, r *http.Request) (exchange.OrderFilter, bool) {
	var f exchange.OrderFilter
	switch st := exchange.OrderStatus(r.URL.Query().Get("status")); st {
	case "", exchange.StatusOpen, exchange.StatusFilled, exchange.StatusCancelled:
		f.Status = st
	default:
		respondError(w, http.StatusBadRequest, "invalid status", "expected open, filled or cancelled")
		return f, false
	}
	return f, true
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
