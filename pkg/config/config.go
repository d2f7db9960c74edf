package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds environment-driven settings for the gateway.
type Config struct {
	Port string

	// Per-request deadline on the HTTP surface (websockets exempt)
	APIRequestTimeout time.Duration

	// Terminal bridge
	BridgeHost     string
	BridgePort     int
	RequestTimeout time.Duration

	// Terminal credentials replayed on every reconnect
	MT5Login    int64
	MT5Password string
	MT5Server   string

	// Reconnect backoff bounds
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration

	// Periodic tasks
	TickPollInterval    time.Duration
	HealthProbeInterval time.Duration

	// Symbol cache
	SymbolCacheTTL time.Duration
	RedisAddr      string // empty: in-memory cache

	// Order audit journal (empty path disables)
	JournalDBPath string

	// Optional auth hook for trading endpoints
	JWTSecret string

	// Limited-mode policy file
	PolicyPath string
}

// Policy enumerates the endpoints allowed to answer while the terminal
// connection is down. Anything not listed fails fast with 503.
type Policy struct {
	LimitedMode []string `yaml:"limited_mode"`
}

// Allows reports whether the named endpoint may run in limited mode.
func (p Policy) Allows(endpoint string) bool {
	for _, e := range p.LimitedMode {
		if e == endpoint {
			return true
		}
	}
	return false
}

// DefaultPolicy is used when no policy file is present: only endpoints
// that serve purely local data stay up without a terminal.
func DefaultPolicy() Policy {
	return Policy{LimitedMode: []string{"health", "metrics", "journal", "symbol_cached"}}
}

// BridgeURL returns the websocket endpoint of the terminal-side bridge.
func (c *Config) BridgeURL() string {
	return fmt.Sprintf("ws://%s:%d/bridge", c.BridgeHost, c.BridgePort)
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:                getEnv("PORT", "8000"),
		APIRequestTimeout:   getEnvDuration("API_REQUEST_TIMEOUT", 30*time.Second),
		BridgeHost:          getEnv("BRIDGE_HOST", "localhost"),
		BridgePort:          getEnvInt("BRIDGE_PORT", 8001),
		RequestTimeout:      getEnvDuration("BRIDGE_REQUEST_TIMEOUT", 5*time.Second),
		MT5Login:            int64(getEnvInt("MT5_LOGIN", 0)),
		MT5Password:         os.Getenv("MT5_PASSWORD"),
		MT5Server:           os.Getenv("MT5_SERVER"),
		ReconnectBaseDelay:  getEnvDuration("RECONNECT_BASE_DELAY", time.Second),
		ReconnectMaxDelay:   getEnvDuration("RECONNECT_MAX_DELAY", 30*time.Second),
		TickPollInterval:    getEnvDuration("TICK_POLL_INTERVAL", 500*time.Millisecond),
		HealthProbeInterval: getEnvDuration("HEALTH_PROBE_INTERVAL", 5*time.Second),
		SymbolCacheTTL:      getEnvDuration("SYMBOL_CACHE_TTL", time.Minute),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		JournalDBPath:       getEnv("JOURNAL_DB_PATH", ""),
		JWTSecret:           os.Getenv("API_JWT_SECRET"),
		PolicyPath:          getEnv("GATEWAY_CONFIG", "gateway.yaml"),
	}, nil
}

// LoadPolicy reads the limited-mode policy file; a missing file yields
// the default policy rather than an error.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPolicy(), nil
		}
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("parse policy file: %w", err)
	}
	if len(p.LimitedMode) == 0 {
		return DefaultPolicy(), nil
	}
	return p, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
