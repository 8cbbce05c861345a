// Package config loads service configuration from a YAML file with
// FASTTRADING_* environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration
type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Store     StoreConfig     `mapstructure:"store"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Market    MarketConfig    `mapstructure:"market"`
	Log       LogConfig       `mapstructure:"log"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
}

type HTTPConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	DisableRateLimit bool          `mapstructure:"disable_rate_limit"`
}

// StoreConfig selects the persistence backend. An empty DSN runs on
// the in-memory store, which is for development only.
type StoreConfig struct {
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// RedisConfig selects the fan-out transport. An empty address runs on
// the in-process bus, which serves a single node.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type EngineConfig struct {
	CommissionRate string `mapstructure:"commission_rate"`
	SlippageFactor string `mapstructure:"slippage_factor"`
	MinOrderSize   string `mapstructure:"min_order_size"`
	MaxOrderSize   string `mapstructure:"max_order_size"`
}

type MarketConfig struct {
	Symbols []string `mapstructure:"symbols"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

type WebSocketConfig struct {
	MaxClients int `mapstructure:"max_clients"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.disable_rate_limit", false)

	v.SetDefault("store.postgres_dsn", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 30*time.Minute)

	v.SetDefault("engine.commission_rate", "0.001")
	v.SetDefault("engine.slippage_factor", "0.05")
	v.SetDefault("engine.min_order_size", "0.001")
	v.SetDefault("engine.max_order_size", "1000000")

	v.SetDefault("market.symbols", []string{"BTC-USDT", "ETH-USDT"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("websocket.max_clients", 10000)
}

// Load reads configuration from path (optional) and the environment.
// Environment variables use the FASTTRADING_ prefix with underscores,
// e.g. FASTTRADING_HTTP_PORT=9090.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FASTTRADING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that cannot start
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(c.Market.Symbols) == 0 {
		return fmt.Errorf("market.symbols must list at least one symbol")
	}
	for _, s := range c.Market.Symbols {
		if !strings.Contains(s, "-") {
			return fmt.Errorf("symbol %q is not BASE-QUOTE", s)
		}
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q unknown", c.Log.Level)
	}
	return nil
}
