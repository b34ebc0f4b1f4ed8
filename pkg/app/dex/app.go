// Package dex runs the exchange as a single-writer chain: signed transactions are
// admitted to a mempool, drained into blocks and applied serially to the engine.
package dex

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/portex/params"
	"github.com/uhyunpark/portex/pkg/app/core/chain"
	"github.com/uhyunpark/portex/pkg/app/core/exchange"
	"github.com/uhyunpark/portex/pkg/app/core/mempool"
	"github.com/uhyunpark/portex/pkg/app/core/token"
	"github.com/uhyunpark/portex/pkg/app/core/transaction"
	"github.com/uhyunpark/portex/pkg/crypto"
	"github.com/uhyunpark/portex/pkg/util"
)

var (
	ErrStaleNonce = errors.New("nonce already used")
	ErrUnknownTx  = errors.New("unknown transaction")
)

type Option func(*App)

func WithChainStore(s ChainStore) Option        { return func(a *App) { a.chainStore = s } }
func WithExchangeStore(s exchange.Store) Option { return func(a *App) { a.exStore = s } }
func WithLogger(l *zap.SugaredLogger) Option    { return func(a *App) { a.log = l } }
func WithClock(c util.Clock) Option             { return func(a *App) { a.clock = c } }

type App struct {
	cfg        params.Config
	log        *zap.SugaredLogger
	clock      util.Clock
	chainStore ChainStore
	exStore    exchange.Store
	pending    *blockChanges

	tokens   *token.Registry
	bank     *chain.Bank
	engine   *exchange.Engine
	verifier *transaction.Verifier
	mempool  *mempool.Mempool

	produceMu sync.Mutex // serializes block production

	mu       sync.RWMutex
	latest   *Block
	nonces   map[common.Address]uint64
	receipts map[common.Hash]*Receipt

	collectMu  sync.Mutex
	collecting *[]exchange.Record

	// OnBlock runs after a block is committed.
	OnBlock func(*Block, []*Receipt)
}

func NewApp(cfg params.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		log:      zap.NewNop().Sugar(),
		clock:    util.RealClock{},
		tokens:   token.NewRegistry(),
		verifier: transaction.NewVerifier(crypto.NewDomain(cfg.Chain.ChainID, cfg.Exchange.Address)),
		mempool:  mempool.NewMempool(),
		nonces:   make(map[common.Address]uint64),
		receipts: make(map[common.Hash]*Receipt),
	}
	for _, o := range opts {
		o(a)
	}

	var state *ChainState
	if a.chainStore != nil {
		var err error
		if state, a.latest, err = a.chainStore.LoadChain(); err != nil {
			return nil, fmt.Errorf("load chain: %w", err)
		}
	}
	if state != nil {
		if err := a.restore(state); err != nil {
			return nil, err
		}
	} else if err := a.genesis(); err != nil {
		return nil, err
	}

	engineOpts := []exchange.Option{
		exchange.WithEtherVault(a.bank),
		exchange.WithClock(a.clock),
		exchange.WithLogger(a.log.Named("exchange")),
	}
	switch {
	case a.exStore != nil && a.chainStore != nil:
		a.pending = &blockChanges{Store: a.exStore}
		engineOpts = append(engineOpts, exchange.WithStore(a.pending))
	case a.exStore != nil:
		engineOpts = append(engineOpts, exchange.WithStore(a.exStore))
	}
	engine, err := exchange.NewEngine(exchange.Config{
		Address:    cfg.Exchange.Address,
		FeeAccount: cfg.Exchange.FeeAccount,
		FeePercent: cfg.Exchange.FeePercent,
	}, a.tokens, engineOpts...)
	if err != nil {
		return nil, err
	}
	a.engine = engine
	a.engine.Subscribe(a.collect)

	a.log.Infow("app_ready", "height", a.Height(), "tokens", len(a.tokens.List()))
	return a, nil
}

func (a *App) genesis() error {
	g := a.cfg.Genesis
	tok := token.NewERC20(g.Token.Address, g.Token.Name, g.Token.Symbol, params.Decimals, params.Tokens(g.Token.Supply), g.Token.Deployer)
	if err := a.tokens.Deploy(tok); err != nil {
		return fmt.Errorf("deploy genesis token: %w", err)
	}
	a.bank = chain.NewBank(g.Alloc)
	a.log.Infow("genesis",
		"token", tok.Address().Hex(),
		"symbol", tok.Symbol(),
		"deployer", g.Token.Deployer.Hex(),
		"funded_accounts", len(g.Alloc))
	return nil
}

func (a *App) restore(s *ChainState) error {
	for _, ts := range s.Tokens {
		if err := a.tokens.Deploy(token.Restore(ts)); err != nil {
			return fmt.Errorf("restore token %s: %w", ts.Address.Hex(), err)
		}
	}
	a.bank = chain.NewBank(s.Ether)
	for addr, n := range s.Nonces {
		a.nonces[addr] = n
	}
	return nil
}

func (a *App) chainState(height uint64) *ChainState {
	s := &ChainState{
		Height: height,
		Nonces: make(map[common.Address]uint64),
		Ether:  make(map[common.Address]*big.Int),
	}
	a.mu.RLock()
	for addr, n := range a.nonces {
		s.Nonces[addr] = n
	}
	a.mu.RUnlock()
	for _, addr := range a.bank.Accounts() {
		s.Ether[addr] = a.bank.BalanceOf(addr)
	}
	for _, t := range a.tokens.List() {
		s.Tokens = append(s.Tokens, t.State())
	}
	return s
}

func (a *App) Engine() *exchange.Engine  { return a.engine }
func (a *App) Tokens() *token.Registry   { return a.tokens }
func (a *App) Bank() *chain.Bank         { return a.bank }
func (a *App) Mempool() *mempool.Mempool { return a.mempool }
func (a *App) Config() params.Config     { return a.cfg }

// Domain is the EIP-712 domain clients must sign under.
func (a *App) Domain() crypto.EIP712Domain {
	return crypto.NewDomain(a.cfg.Chain.ChainID, a.cfg.Exchange.Address)
}

func (a *App) Height() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.latest == nil {
		return 0
	}
	return a.latest.Height
}

func (a *App) LatestBlock() *Block {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest
}

// Nonce is the highest nonce included for addr; the next tx must use a larger one.
func (a *App) Nonce(addr common.Address) uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.nonces[addr]
}

// Submit verifies a raw signed transaction and queues it for the next block.
func (a *App) Submit(raw []byte) (common.Hash, error) {
	tx, err := a.verifier.Verify(raw)
	if err != nil {
		return common.Hash{}, err
	}
	if tx.Nonce <= a.Nonce(tx.From) {
		return tx.Hash, fmt.Errorf("%w: %d", ErrStaleNonce, tx.Nonce)
	}
	if err := a.mempool.Push(tx); err != nil {
		return tx.Hash, err
	}
	a.log.Debugw("tx_submitted", "hash", tx.Hash.Hex(), "type", tx.Type, "from", tx.From.Hex(), "nonce", tx.Nonce)
	return tx.Hash, nil
}

// Receipt looks up a transaction by hash. Queued transactions report StatusPending.
func (a *App) Receipt(hash common.Hash) (*Receipt, error) {
	a.mu.RLock()
	r, ok := a.receipts[hash]
	a.mu.RUnlock()
	if ok {
		return r, nil
	}
	if a.mempool.Has(hash) {
		return &Receipt{Hash: hash, Status: StatusPending}, nil
	}
	if a.chainStore != nil {
		r, err := a.chainStore.Receipt(hash)
		if err != nil {
			return nil, err
		}
		if r != nil {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTx, hash.Hex())
}

// ProduceBlock drains the mempool and applies its transactions in order.
// It returns nil when there is nothing to include.
func (a *App) ProduceBlock(ctx context.Context, now time.Time) (*Block, error) {
	a.produceMu.Lock()
	defer a.produceMu.Unlock()

	txs := a.mempool.SelectForProposal(a.cfg.Node.MaxBlockBytes)
	if len(txs) == 0 {
		return nil, nil
	}

	height := uint64(1)
	var parent common.Hash
	if prev := a.LatestBlock(); prev != nil {
		height = prev.Height + 1
		parent = prev.Hash
	}

	receipts := make([]*Receipt, 0, len(txs))
	hashes := make([]common.Hash, 0, len(txs))
	failed := 0
	for _, tx := range txs {
		r := a.applyTx(ctx, tx, height)
		if r.Status == StatusFailed {
			failed++
		}
		receipts = append(receipts, r)
		hashes = append(hashes, tx.Hash)
	}

	b := &Block{
		Height:    height,
		Time:      now.UnixMilli(),
		Parent:    parent,
		StateRoot: a.stateRoot(),
		Txs:       hashes,
	}
	b.Hash = blockHash(b)

	if a.chainStore != nil {
		var changes []*exchange.Changeset
		if a.pending != nil {
			changes = a.pending.take()
		}
		if err := a.chainStore.SaveBlock(b, receipts, a.chainState(height), changes); err != nil {
			return nil, fmt.Errorf("save block %d: %w", height, err)
		}
	}
	a.mu.Lock()
	for _, r := range receipts {
		a.receipts[r.Hash] = r
	}
	a.latest = b
	a.mu.Unlock()

	a.log.Infow("block_committed",
		"height", height,
		"txs", len(txs),
		"failed", failed,
		"state_root", b.StateRoot.Hex())

	if a.OnBlock != nil {
		a.OnBlock(b, receipts)
	}
	return b, nil
}

// Run produces a block every interval until ctx is cancelled.
func (a *App) Run(ctx context.Context, interval time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.clock.After(interval):
		}
		if _, err := a.ProduceBlock(ctx, a.clock.Now()); err != nil {
			return err
		}
	}
}

// collect captures engine records for the receipt being built.
func (a *App) collect(r exchange.Record) {
	a.collectMu.Lock()
	defer a.collectMu.Unlock()
	if a.collecting != nil {
		*a.collecting = append(*a.collecting, r)
	}
}

// blockChanges holds engine changesets until the block that produced them is saved,
// so engine state and chain state reach disk in the same batch.
type blockChanges struct {
	exchange.Store

	mu      sync.Mutex
	changes []*exchange.Changeset
}

func (c *blockChanges) Commit(cs *exchange.Changeset) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = append(c.changes, cs)
	return nil
}

func (c *blockChanges) take() []*exchange.Changeset {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.changes
	c.changes = nil
	return out
}
