package params

import (
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Storage struct {
	Path string
	// JournalPath receives committed events as JSON lines; empty disables it.
	JournalPath string
}

type Orders struct {
	// MaxOpenPerAccount caps simultaneously open trigger orders per (owner, market).
	MaxOpenPerAccount int
}

// Keeper holds the venue-specific compensation parameters.
//
// Total keeper cost on rollup-style venues has two parts:
//   - compute: gas burned locally, priced at the local gas price
//   - data:    calldata posted to the data layer, priced per byte
//
// Multipliers absorb estimation error between order placement and execution,
// buffers are flat overheads (completion event, reimbursement transfer).
type Keeper struct {
	ComputeMultiplier decimal.Decimal
	ComputeBufferGas  uint64
	DataMultiplier    decimal.Decimal
	DataBufferGas     uint64

	ComputeGasPrice *big.Int // wei per gas
	DataGasPrice    *big.Int // wei per calldata gas

	// NativePriceFeed is the oracle market quoting the native token in settlement units.
	NativePriceFeed common.Address

	// StrictFeeCeiling fails execution instead of clamping when the fee exceeds maxFee.
	StrictFeeCeiling bool
}

type Oracle struct {
	MaxPriceAge time.Duration
	// Committers may publish prices through CommitPrice. Empty disables it.
	Committers []common.Address
}

type Collateral struct {
	BatcherEnabled  bool
	BatcherAddress  common.Address
	ReserveAddress  common.Address
	RedemptionPrice decimal.Decimal
}

// Invoker is the holding account and signing domain of the dispatcher.
type Invoker struct {
	Address common.Address
	ChainID int64
}

// Market is registered with the settlement engine at startup.
type Market struct {
	Address          common.Address
	Name             string
	MarginRatio      decimal.Decimal
	MaintenanceRatio decimal.Decimal
}

type Vault struct {
	Address common.Address
	Name    string
}

type API struct {
	Addr           string
	AllowedOrigins []string
}

type Bot struct {
	Enabled  bool
	Interval time.Duration
	// PrivateKey signs executions on behalf of the keeper (hex, no 0x).
	PrivateKey string
}

type Log struct {
	File  string
	Level string
}

type Config struct {
	Storage    Storage
	Orders     Orders
	Keeper     Keeper
	Oracle     Oracle
	Collateral Collateral
	Invoker    Invoker
	Markets    []Market
	Vaults     []Vault
	API        API
	Bot        Bot
	Log        Log
}

func Default() Config {
	return Config{
		Storage: Storage{Path: "data/state.db", JournalPath: "data/events.jsonl"},
		Orders:  Orders{MaxOpenPerAccount: 10},
		Keeper: Keeper{
			ComputeMultiplier: decimal.RequireFromString("1.5"),
			ComputeBufferGas:  100_000,
			DataMultiplier:    decimal.RequireFromString("1.2"),
			DataBufferGas:     3_000,
			ComputeGasPrice:   big.NewInt(100_000_000),   // 0.1 gwei
			DataGasPrice:      big.NewInt(5_000_000_000), // 5 gwei
			NativePriceFeed:   common.HexToAddress("0x00000000000000000000000000000000000000E7"),
		},
		Oracle: Oracle{MaxPriceAge: 60 * time.Second},
		Collateral: Collateral{
			BatcherEnabled:  true,
			BatcherAddress:  common.HexToAddress("0xAEf566ca7E84d1E736f999765a804687f39D9094"),
			ReserveAddress:  common.HexToAddress("0xD05aCe63789cCb35B9cE71d01e4d632a0486Da4B"),
			RedemptionPrice: decimal.NewFromInt(1),
		},
		Invoker: Invoker{
			Address: common.HexToAddress("0xCE90000000000000000000000000000000000001"),
			ChainID: 1337,
		},
		Markets: []Market{{
			Address:          common.HexToAddress("0x90A664846960AaFA2c164605Aebb8e9Ac338f9a0"),
			Name:             "ETH",
			MarginRatio:      decimal.RequireFromString("0.01"),
			MaintenanceRatio: decimal.RequireFromString("0.005"),
		}},
		API: API{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Bot: Bot{Interval: 2 * time.Second},
		Log: Log{File: "data/node.log", Level: "info"},
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

	cfg.Storage.Path = getEnv("STATE_DB_PATH", cfg.Storage.Path)
	if journal, ok := os.LookupEnv("EVENT_JOURNAL_PATH"); ok {
		cfg.Storage.JournalPath = journal
	}
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)

	if origins := os.Getenv("API_ALLOWED_ORIGINS"); origins != "" {
		cfg.API.AllowedOrigins = strings.Split(origins, ",")
	}

	if n := os.Getenv("MAX_OPEN_ORDERS_PER_ACCOUNT"); n != "" {
		if v, err := strconv.Atoi(n); err == nil && v > 0 {
			cfg.Orders.MaxOpenPerAccount = v
		}
	}

	if m := os.Getenv("KEEPER_COMPUTE_MULTIPLIER"); m != "" {
		if d, err := decimal.NewFromString(m); err == nil {
			cfg.Keeper.ComputeMultiplier = d
		}
	}
	if m := os.Getenv("KEEPER_DATA_MULTIPLIER"); m != "" {
		if d, err := decimal.NewFromString(m); err == nil {
			cfg.Keeper.DataMultiplier = d
		}
	}
	if g := os.Getenv("KEEPER_COMPUTE_BUFFER_GAS"); g != "" {
		if v, err := strconv.ParseUint(g, 10, 64); err == nil {
			cfg.Keeper.ComputeBufferGas = v
		}
	}
	if g := os.Getenv("KEEPER_DATA_BUFFER_GAS"); g != "" {
		if v, err := strconv.ParseUint(g, 10, 64); err == nil {
			cfg.Keeper.DataBufferGas = v
		}
	}
	if p := os.Getenv("KEEPER_COMPUTE_GAS_PRICE_WEI"); p != "" {
		if v, ok := new(big.Int).SetString(p, 10); ok {
			cfg.Keeper.ComputeGasPrice = v
		}
	}
	if p := os.Getenv("KEEPER_DATA_GAS_PRICE_WEI"); p != "" {
		if v, ok := new(big.Int).SetString(p, 10); ok {
			cfg.Keeper.DataGasPrice = v
		}
	}
	if feed := os.Getenv("KEEPER_NATIVE_PRICE_FEED"); common.IsHexAddress(feed) {
		cfg.Keeper.NativePriceFeed = common.HexToAddress(feed)
	}
	if strict := os.Getenv("KEEPER_STRICT_FEE_CEILING"); strict != "" {
		cfg.Keeper.StrictFeeCeiling = strict == "true"
	}

	if age := os.Getenv("ORACLE_MAX_PRICE_AGE_MS"); age != "" {
		if ms, err := strconv.Atoi(age); err == nil {
			cfg.Oracle.MaxPriceAge = time.Duration(ms) * time.Millisecond
		}
	}

	// ORACLE_COMMITTERS=address,...
	if committers := os.Getenv("ORACLE_COMMITTERS"); committers != "" {
		cfg.Oracle.Committers = parseAddresses(committers)
	}

	if batcher := os.Getenv("COLLATERAL_BATCHER_ENABLED"); batcher != "" {
		cfg.Collateral.BatcherEnabled = batcher == "true"
	}

	if addr := os.Getenv("COLLATERAL_BATCHER_ADDRESS"); common.IsHexAddress(addr) {
		cfg.Collateral.BatcherAddress = common.HexToAddress(addr)
	}
	if addr := os.Getenv("COLLATERAL_RESERVE_ADDRESS"); common.IsHexAddress(addr) {
		cfg.Collateral.ReserveAddress = common.HexToAddress(addr)
	}
	if p := os.Getenv("COLLATERAL_REDEMPTION_PRICE"); p != "" {
		if d, err := decimal.NewFromString(p); err == nil {
			cfg.Collateral.RedemptionPrice = d
		}
	}

	if addr := os.Getenv("INVOKER_ADDRESS"); common.IsHexAddress(addr) {
		cfg.Invoker.Address = common.HexToAddress(addr)
	}
	if id := os.Getenv("CHAIN_ID"); id != "" {
		if v, err := strconv.ParseInt(id, 10, 64); err == nil && v > 0 {
			cfg.Invoker.ChainID = v
		}
	}

	// MARKETS=address:name:margin:maintenance,...
	if markets := os.Getenv("MARKETS"); markets != "" {
		if ms, ok := parseMarkets(markets); ok {
			cfg.Markets = ms
		}
	}
	// VAULTS=address:name,...
	if vaults := os.Getenv("VAULTS"); vaults != "" {
		cfg.Vaults = parseVaults(vaults)
	}

	if bot := os.Getenv("KEEPER_BOT_ENABLED"); bot != "" {
		cfg.Bot.Enabled = bot == "true"
	}
	if interval := os.Getenv("KEEPER_BOT_INTERVAL_MS"); interval != "" {
		if ms, err := strconv.Atoi(interval); err == nil {
			cfg.Bot.Interval = time.Duration(ms) * time.Millisecond
		}
	}
	cfg.Bot.PrivateKey = strings.TrimPrefix(getEnv("KEEPER_BOT_PRIVATE_KEY", cfg.Bot.PrivateKey), "0x")

	return cfg
}

func parseMarkets(s string) ([]Market, bool) {
	var out []Market
	for _, entry := range strings.Split(s, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 4 || !common.IsHexAddress(parts[0]) {
			return nil, false
		}
		margin, err := decimal.NewFromString(parts[2])
		if err != nil {
			return nil, false
		}
		maint, err := decimal.NewFromString(parts[3])
		if err != nil {
			return nil, false
		}
		out = append(out, Market{
			Address:          common.HexToAddress(parts[0]),
			Name:             parts[1],
			MarginRatio:      margin,
			MaintenanceRatio: maint,
		})
	}
	return out, true
}

func parseVaults(s string) []Vault {
	var out []Vault
	for _, entry := range strings.Split(s, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
		if len(parts) != 2 || !common.IsHexAddress(parts[0]) {
			continue
		}
		out = append(out, Vault{Address: common.HexToAddress(parts[0]), Name: parts[1]})
	}
	return out
}

func parseAddresses(s string) []common.Address {
	var out []common.Address
	for _, entry := range strings.Split(s, ",") {
		if entry = strings.TrimSpace(entry); common.IsHexAddress(entry) {
			out = append(out, common.HexToAddress(entry))
		}
	}
	return out
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
