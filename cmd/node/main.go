package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/uhyunpark/portex/params"
	"github.com/uhyunpark/portex/pkg/api"
	"github.com/uhyunpark/portex/pkg/app/dex"
	"github.com/uhyunpark/portex/pkg/broadcast"
	"github.com/uhyunpark/portex/pkg/crypto"
	"github.com/uhyunpark/portex/pkg/storage"
	"github.com/uhyunpark/portex/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.Verbose)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile, "verbose", cfg.Node.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []dex.Option{dex.WithLogger(sugar.Named("dex"))}

	// ---- Transaction Feeder (optional) ----
	// Enable with: ENABLE_TXGEN=true TXGEN_KEY=<hex> TXGEN_MODE=default|high
	// On a fresh chain the feeder key becomes the genesis token deployer so it can fund traders.
	var funder *crypto.Signer
	if os.Getenv("ENABLE_TXGEN") == "true" {
		key := os.Getenv("TXGEN_KEY")
		if key == "" {
			sugar.Fatalw("txgen_key_missing", "hint", "set TXGEN_KEY to the genesis token deployer key")
		}
		if funder, err = crypto.FromPrivateKeyHex(key); err != nil {
			sugar.Fatalw("txgen_key_invalid", "err", err)
		}
		cfg.Genesis.Token.Deployer = funder.Address()
	}

	// ---- Storage ----
	// DATA_DIR="" runs fully in memory: nothing survives a restart.
	var wal *storage.FileWAL
	if dir := cfg.Node.DataDir; dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			sugar.Fatalw("data_dir_failed", "dir", dir, "err", err)
		}
		store, err := storage.NewPebbleStore(filepath.Join(dir, "pebble"))
		if err != nil {
			sugar.Fatalw("pebble_open_failed", "dir", dir, "err", err)
		}
		defer store.Close()
		opts = append(opts, dex.WithChainStore(store), dex.WithExchangeStore(store))

		wal, err = storage.NewFileWAL(filepath.Join(dir, "events.wal"), sugar.Named("wal"))
		if err != nil {
			sugar.Fatalw("wal_open_failed", "err", err)
		}
		defer wal.Close()
		sugar.Infow("storage_ready", "data_dir", dir)
	} else {
		opts = append(opts, dex.WithChainStore(storage.NewInMemoryBlockStore()))
		sugar.Warnw("storage_in_memory")
	}

	// ---- App ----
	app, err := dex.NewApp(cfg, opts...)
	if err != nil {
		sugar.Fatalw("app_init_failed", "err", err)
	}
	if err := app.Engine().CheckSolvency(ctx); err != nil {
		sugar.Fatalw("custody_check_failed", "err", err)
	}
	if wal != nil {
		app.Engine().Subscribe(wal.Observe)
	}

	// ---- Kafka export (optional) ----
	var sink *broadcast.KafkaSink
	if len(cfg.Kafka.Brokers) > 0 {
		sink = broadcast.NewKafkaSink(broadcast.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), sugar.Named("kafka"), 4096)
		app.Engine().Subscribe(sink.Observe)
		go sink.Run(ctx)
		sugar.Infow("kafka_export_enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	// ---- API Server ----
	apiServer := api.NewServer(app, sugar.Named("api"), cfg.Node.CORSOrigins)
	apiDone := make(chan struct{})
	go func() {
		defer close(apiDone)
		if err := apiServer.Start(ctx, cfg.Node.APIAddr); err != nil {
			sugar.Errorw("api_server_failed", "err", err)
			stop()
		}
	}()

	// Hook API server to block production: push a summary on every commit
	app.OnBlock = apiServer.BroadcastBlock

	if funder != nil {
		feederCfg := dex.DefaultFeederConfig()
		if os.Getenv("TXGEN_MODE") == "high" {
			feederCfg = dex.HighLoadConfig()
		}
		feeder, err := dex.NewTxFeeder(app, funder, feederCfg, sugar.Named("txfeeder"))
		if err != nil {
			sugar.Fatalw("txgen_init_failed", "err", err)
		}
		go func() {
			if err := feeder.Run(ctx); err != nil {
				sugar.Errorw("txgen_failed", "err", err)
			}
		}()
		sugar.Infow("txgen_enabled",
			"traders", feederCfg.NumAccounts,
			"batch", feederCfg.BatchSize,
			"interval_ms", feederCfg.Interval.Milliseconds())
	} else {
		sugar.Info("txgen_disabled")
	}

	sugar.Infow("node_starting",
		"chain_id", cfg.Chain.ChainID,
		"exchange", cfg.Exchange.Address.Hex(),
		"fee_account", cfg.Exchange.FeeAccount.Hex(),
		"fee_percent", cfg.Exchange.FeePercent,
		"height", app.Height(),
		"min_block_time_ms", cfg.Node.MinBlockTime.Milliseconds())

	if err := app.Run(ctx, cfg.Node.MinBlockTime); err != nil && !errors.Is(err, context.Canceled) {
		sugar.Errorw("block_loop_failed", "err", err)
		stop()
	}

	<-apiDone
	if sink != nil {
		<-sink.Done()
	}
	sugar.Infow("node_stopped", "height", app.Height())
}
