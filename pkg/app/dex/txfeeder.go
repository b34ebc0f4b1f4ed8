package dex

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/portex/params"
	"github.com/uhyunpark/portex/pkg/app/core/exchange"
	"github.com/uhyunpark/portex/pkg/app/core/transaction"
	"github.com/uhyunpark/portex/pkg/crypto"
)

// FeederConfig controls simulated trading load.
type FeederConfig struct {
	Interval    time.Duration // how often a batch is submitted
	BatchSize   int           // txs per batch
	NumAccounts int           // simulated traders
	Seed        int64         // 0 seeds from the clock
}

func DefaultFeederConfig() FeederConfig {
	return FeederConfig{Interval: 100 * time.Millisecond, BatchSize: 10, NumAccounts: 20}
}

// HighLoadConfig is for stress testing block production.
func HighLoadConfig() FeederConfig {
	return FeederConfig{Interval: 50 * time.Millisecond, BatchSize: 200, NumAccounts: 200}
}

// TxFeeder submits signed transactions from simulated traders. It is a
// development tool: Bootstrap mints native ether to the traders, and the
// funder must hold the genesis token.
type TxFeeder struct {
	app     *App
	cfg     FeederConfig
	funder  *crypto.Signer
	traders []*crypto.Signer
	nonces  map[common.Address]uint64
	rng     *rand.Rand
	log     *zap.SugaredLogger

	submitted int
	rejected  int
}

var (
	feederEther      = params.Ether(100)
	feederTokens     = params.Tokens(1_000)
	feederEtherDepo  = params.Ether(50)
	feederTokensDepo = params.Tokens(500)
)

func NewTxFeeder(app *App, funder *crypto.Signer, cfg FeederConfig, log *zap.SugaredLogger) (*TxFeeder, error) {
	if cfg.NumAccounts <= 0 || cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("txfeeder: need at least one account and a positive batch size")
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	f := &TxFeeder{
		app:    app,
		cfg:    cfg,
		funder: funder,
		nonces: make(map[common.Address]uint64),
		rng:    rand.New(rand.NewSource(seed)),
		log:    log,
	}
	for i := 0; i < cfg.NumAccounts; i++ {
		s, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		f.traders = append(f.traders, s)
	}
	return f, nil
}

func (f *TxFeeder) Traders() []*crypto.Signer { return f.traders }

// Bootstrap funds every trader and queues their initial exchange deposits.
// The deposits land in the next block.
func (f *TxFeeder) Bootstrap() error {
	port := f.app.Config().Genesis.Token.Address
	tok, ok := f.app.Tokens().Get(port)
	if !ok {
		return fmt.Errorf("txfeeder: genesis token %s not deployed", port.Hex())
	}
	need := new(big.Int).Mul(feederTokens, big.NewInt(int64(len(f.traders))))
	if have := tok.BalanceOf(f.funder.Address()); have.Cmp(need) < 0 {
		return fmt.Errorf("txfeeder: funder %s holds %s %s, needs %s", f.funder.Address().Hex(), have, tok.Symbol(), need)
	}
	f.nonces[f.funder.Address()] = f.app.Nonce(f.funder.Address())

	exchangeAddr := f.app.Engine().Address()
	for _, t := range f.traders {
		f.app.Bank().Mint(t.Address(), feederEther)
		f.submit(f.funder, &transaction.Action{Type: transaction.TxTokenTransfer, Token: port, To: t.Address(), Amount: feederTokens})
		f.submit(t, &transaction.Action{Type: transaction.TxTokenApprove, Token: port, To: exchangeAddr, Amount: feederTokensDepo})
		f.submit(t, &transaction.Action{Type: transaction.TxDepositToken, Token: port, Amount: feederTokensDepo})
		f.submit(t, &transaction.Action{Type: transaction.TxDepositEther, Amount: feederEtherDepo})
	}
	f.log.Infow("txfeeder_bootstrapped", "traders", len(f.traders), "submitted", f.submitted, "rejected", f.rejected)
	return nil
}

// Step submits n random trading actions.
func (f *TxFeeder) Step(n int) {
	for i := 0; i < n; i++ {
		trader := f.traders[f.rng.Intn(len(f.traders))]
		switch r := f.rng.Intn(100); {
		case r < 50:
			f.submit(trader, f.randomOrder())
		case r < 75:
			f.submit(trader, f.fillOrMake(trader.Address()))
		case r < 90:
			f.submit(trader, f.cancelOrMake(trader.Address()))
		default:
			f.submit(trader, f.moveEther())
		}
	}
}

// Run bootstraps and then submits a batch every interval until ctx is cancelled.
func (f *TxFeeder) Run(ctx context.Context) error {
	if err := f.Bootstrap(); err != nil {
		return err
	}
	start := f.app.clock.Now()
	lastReport := start
	for {
		select {
		case <-ctx.Done():
			elapsed := f.app.clock.Now().Sub(start)
			f.log.Infow("txfeeder_stopped", "submitted", f.submitted, "rejected", f.rejected, "elapsed", elapsed.Round(time.Second))
			return nil
		case <-f.app.clock.After(f.cfg.Interval):
		}
		f.Step(f.cfg.BatchSize)

		if now := f.app.clock.Now(); now.Sub(lastReport) >= 10*time.Second {
			elapsed := now.Sub(start).Seconds()
			f.log.Infow("txfeeder_stats",
				"submitted", f.submitted,
				"rejected", f.rejected,
				"tx_per_sec", float64(f.submitted)/elapsed,
				"mempool", f.app.Mempool().Len())
			lastReport = now
		}
	}
}

func (f *TxFeeder) submit(key *crypto.Signer, a *transaction.Action) {
	addr := key.Address()
	f.nonces[addr]++
	a.Nonce = f.nonces[addr]

	tx, err := transaction.Sign(f.app.Domain(), key, a)
	if err == nil {
		var raw []byte
		if raw, err = tx.Serialize(); err == nil {
			_, err = f.app.Submit(raw)
		}
	}
	if err != nil {
		f.rejected++
		f.log.Debugw("txfeeder_rejected", "from", addr.Hex(), "type", a.Type, "err", err)
		return
	}
	f.submitted++
}

// units returns 1..max tenths of a whole unit.
func (f *TxFeeder) units(max int) *big.Int {
	n := big.NewInt(int64(f.rng.Intn(max) + 1))
	return n.Mul(n, params.Ether(1)).Div(n, big.NewInt(10))
}

func (f *TxFeeder) randomOrder() *transaction.Action {
	port := f.app.Config().Genesis.Token.Address
	a := &transaction.Action{Type: transaction.TxMakeOrder, AmountGet: f.units(20), AmountGive: f.units(20)}
	if f.rng.Intn(2) == 0 {
		a.TokenGet, a.TokenGive = port, exchange.Ether
	} else {
		a.TokenGet, a.TokenGive = exchange.Ether, port
	}
	return a
}

func (f *TxFeeder) fillOrMake(taker common.Address) *transaction.Action {
	var candidates []*exchange.Order
	for _, o := range f.app.Engine().Orders(exchange.OrderFilter{Status: exchange.StatusOpen}) {
		if o.User != taker {
			candidates = append(candidates, o)
		}
	}
	if len(candidates) == 0 {
		return f.randomOrder()
	}
	o := candidates[f.rng.Intn(len(candidates))]
	return &transaction.Action{Type: transaction.TxFillOrder, OrderID: o.ID}
}

func (f *TxFeeder) cancelOrMake(maker common.Address) *transaction.Action {
	open := f.app.Engine().Orders(exchange.OrderFilter{User: &maker, Status: exchange.StatusOpen})
	if len(open) == 0 {
		return f.randomOrder()
	}
	return &transaction.Action{Type: transaction.TxCancelOrder, OrderID: open[f.rng.Intn(len(open))].ID}
}

func (f *TxFeeder) moveEther() *transaction.Action {
	if f.rng.Intn(2) == 0 {
		return &transaction.Action{Type: transaction.TxDepositEther, Amount: f.units(10)}
	}
	return &transaction.Action{Type: transaction.TxWithdrawEther, Amount: f.units(10)}
}
