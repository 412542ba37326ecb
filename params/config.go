package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Storage struct {
	DBPath   string
	InMemory bool // dev runs: pebble on a memory filesystem
}

type API struct {
	Addr            string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

type Engine struct {
	// PricePolicy is "maker" (trade at the resting price) or "taker" (trade
	// at the incoming limit)
	PricePolicy string
	QueueDepth  int
}

// Markets lists the coins traded against one quote asset.
// Each coin becomes instrument "<coin>-<quote>".
type Markets struct {
	Coins         []string
	QuoteAsset    string
	BaseDecimals  int32
	QuoteDecimals int32
}

type Log struct {
	Level string
	File  string
}

type Config struct {
	Storage Storage
	API     API
	Engine  Engine
	Markets Markets
	Log     Log
}

func Default() Config {
	return Config{
		Storage: Storage{
			DBPath: "./data/exchange",
		},
		API: API{
			Addr:            ":8080",
			AllowedOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
			ShutdownTimeout: 5 * time.Second,
		},
		Engine: Engine{
			PricePolicy: "maker",
			QueueDepth:  1024,
		},
		Markets: Markets{
			Coins:         []string{"btc", "eth"},
			QuoteAsset:    "usd",
			BaseDecimals:  0, // 1 lot = 1 coin, so prices read per coin
			QuoteDecimals: 2,
		},
		Log: Log{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.Storage.DBPath = getEnv("DB_PATH", cfg.Storage.DBPath)
	if inMem := os.Getenv("DB_IN_MEMORY"); inMem != "" {
		cfg.Storage.InMemory = inMem == "true"
	}

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.API.AllowedOrigins = splitList(origins)
	}
	if ms := getInt("API_SHUTDOWN_TIMEOUT_MS", -1); ms >= 0 {
		cfg.API.ShutdownTimeout = time.Duration(ms) * time.Millisecond
	}

	cfg.Engine.PricePolicy = getEnv("PRICE_POLICY", cfg.Engine.PricePolicy)
	if n := getInt("QUEUE_DEPTH", 0); n > 0 {
		cfg.Engine.QueueDepth = n
	}

	// Instruments from comma-separated coin list, e.g. "btc,eth,sol"
	if coins := os.Getenv("INSTRUMENTS"); coins != "" {
		cfg.Markets.Coins = splitList(coins)
	}
	cfg.Markets.QuoteAsset = getEnv("QUOTE_ASSET", cfg.Markets.QuoteAsset)
	if d := getInt("BASE_DECIMALS", -1); d >= 0 {
		cfg.Markets.BaseDecimals = int32(d)
	}
	if d := getInt("QUOTE_DECIMALS", -1); d >= 0 {
		cfg.Markets.QuoteDecimals = int32(d)
	}

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getInt returns the integer value of key, or def if unset or malformed
func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}
