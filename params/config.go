package params

import (
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Decimals is the number of subunits per whole unit, shared by Ether and the genesis token.
const Decimals = 18

var unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// Ether converts whole Ether into wei.
func Ether(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), unit) }

// Tokens converts whole token units into subunits (18 decimals).
func Tokens(n int64) *big.Int { return Ether(n) }

type Exchange struct {
	// Address is the custodial address of the engine on the ledger of every asset.
	Address    common.Address
	FeeAccount common.Address
	FeePercent uint64
}

type Node struct {
	DataDir string
	APIAddr string
	LogFile string
	// MinBlockTime is how often the mempool is drained into a block.
	MinBlockTime  time.Duration
	MaxBlockBytes int64
	Verbose       bool
	CORSOrigins   []string
}

type Chain struct {
	ChainID int64
}

// GenesisToken describes the token deployed at startup.
type GenesisToken struct {
	Address  common.Address
	Name     string
	Symbol   string
	Supply   int64 // whole units, scaled by Decimals
	Deployer common.Address
}

type Genesis struct {
	Token GenesisToken
	// Alloc funds native wallets (wei) at startup.
	Alloc map[common.Address]*big.Int
}

type Kafka struct {
	Brokers []string
	Topic   string
}

type Config struct {
	Exchange Exchange
	Node     Node
	Chain    Chain
	Genesis  Genesis
	Kafka    Kafka
}

func Default() Config {
	return Config{
		Exchange: Exchange{
			Address:    common.HexToAddress("0x00000000000000000000000000000000000e0e0e"),
			FeeAccount: common.HexToAddress("0x00000000000000000000000000000000000fee01"),
			FeePercent: 10,
		},
		Node: Node{
			DataDir:       "data",
			APIAddr:       ":8080",
			LogFile:       "data/node.log",
			MinBlockTime:  200 * time.Millisecond,
			MaxBlockBytes: 1 << 20,
			CORSOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Chain: Chain{ChainID: 1337},
		Genesis: Genesis{
			Token: GenesisToken{
				Address:  common.HexToAddress("0x0000000000000000000000000000000000007047"),
				Name:     "Port",
				Symbol:   "PRT",
				Supply:   1_000_000,
				Deployer: common.HexToAddress("0x00000000000000000000000000000000000de901"),
			},
			Alloc: map[common.Address]*big.Int{},
		},
		Kafka: Kafka{Topic: "portex.events"},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("EXCHANGE_ADDRESS"); common.IsHexAddress(v) {
		cfg.Exchange.Address = common.HexToAddress(v)
	}
	if v := os.Getenv("FEE_ACCOUNT"); common.IsHexAddress(v) {
		cfg.Exchange.FeeAccount = common.HexToAddress(v)
	}
	if v := os.Getenv("FEE_PERCENT"); v != "" {
		if pct, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Exchange.FeePercent = pct
		}
	}

	cfg.Node.DataDir = getEnv("DATA_DIR", cfg.Node.DataDir)
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	if v := os.Getenv("NODE_MIN_BLOCK_TIME_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Node.MinBlockTime = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("NODE_MAX_BLOCK_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Node.MaxBlockBytes = n
		}
	}
	cfg.Node.Verbose = os.Getenv("VERBOSE") == "true"
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Node.CORSOrigins = splitList(v)
	}

	if v := os.Getenv("CHAIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Chain.ChainID = id
		}
	}

	if v := os.Getenv("GENESIS_TOKEN_ADDRESS"); common.IsHexAddress(v) {
		cfg.Genesis.Token.Address = common.HexToAddress(v)
	}
	cfg.Genesis.Token.Name = getEnv("GENESIS_TOKEN_NAME", cfg.Genesis.Token.Name)
	cfg.Genesis.Token.Symbol = getEnv("GENESIS_TOKEN_SYMBOL", cfg.Genesis.Token.Symbol)
	if v := os.Getenv("GENESIS_TOKEN_SUPPLY"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Genesis.Token.Supply = n
		}
	}
	if v := os.Getenv("GENESIS_TOKEN_DEPLOYER"); common.IsHexAddress(v) {
		cfg.Genesis.Token.Deployer = common.HexToAddress(v)
	}
	// Example: GENESIS_ALLOC="0xabc...=1000000000000000000,0xdef...=5"
	if v := os.Getenv("GENESIS_ALLOC"); v != "" {
		cfg.Genesis.Alloc = parseAlloc(v)
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", cfg.Kafka.Topic)

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseAlloc skips malformed entries instead of failing startup.
func parseAlloc(v string) map[common.Address]*big.Int {
	alloc := make(map[common.Address]*big.Int)
	for _, entry := range splitList(v) {
		addr, amount, ok := strings.Cut(entry, "=")
		if !ok || !common.IsHexAddress(addr) {
			continue
		}
		wei, ok := new(big.Int).SetString(strings.TrimSpace(amount), 10)
		if !ok || wei.Sign() < 0 {
			continue
		}
		alloc[common.HexToAddress(addr)] = wei
	}
	return alloc
}
