package config

import (
	"log/slog"
	"strings"
	"time"
)

// Config is the root configuration for an offerwatch instance.
type Config struct {
	Instance InstanceConfig  `yaml:"instance"`
	LogLevel string          `yaml:"log_level"`
	API      APIConfig       `yaml:"api"`
	Accounts []AccountConfig `yaml:"accounts"`
	Poller   PollerConfig    `yaml:"poller"`
	Notify   NotifyConfig    `yaml:"notify"`
	Dedup    DedupConfig     `yaml:"dedup"`
	Redis    RedisConfig     `yaml:"redis"`
	Relay    RelayConfig     `yaml:"relay"`
	Database DBConfig        `yaml:"database"`
	Journal  JournalConfig   `yaml:"journal"`
	Server   ServerConfig    `yaml:"server"`
}

// InstanceConfig identifies this coordinator.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds trade offer Web API settings shared by all accounts.
type APIConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	Language     string        `yaml:"language"`
}

// AccountConfig describes one bot account.
type AccountConfig struct {
	Key            string `yaml:"key"`          // stable grouping key, usually the bot username
	APIKey         string `yaml:"api_key"`      // Web API key
	APIKeyFile     string `yaml:"api_key_file"` // alternative to api_key
	SessionID      string `yaml:"session_id"`
	LoginSecure    string `yaml:"login_secure"`
	WatchNewOffers bool   `yaml:"watch_new_offers"`
}

// PollerConfig holds offer poller settings.
type PollerConfig struct {
	Interval       time.Duration `yaml:"interval"`
	Concurrency    int           `yaml:"concurrency"`
	Timeout        time.Duration `yaml:"timeout"`
	WatermarkSlack time.Duration `yaml:"watermark_slack"`
}

// NotifyConfig holds new-offer observer settings.
type NotifyConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

// DedupConfig selects the seen-offer set backend.
type DedupConfig struct {
	Backend string        `yaml:"backend"` // memory or redis
	TTL     time.Duration `yaml:"ttl"`     // redis only, 0 keeps ids forever
}

// RedisConfig holds the Redis connection shared by dedup and relay.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// RelayConfig controls publishing new-offer events to Redis.
type RelayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Channel string `yaml:"channel"`
}

// DBConfig holds the PostgreSQL connection for the offer journal.
type DBConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// JournalConfig holds batch writer settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// ServerConfig holds the HTTP health and stream server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	PingInterval time.Duration `yaml:"ping_interval"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// SlogLevel maps LogLevel onto slog. Unknown values map to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewOfferAccounts returns the accounts with watch_new_offers set.
func (c *Config) NewOfferAccounts() []AccountConfig {
	var out []AccountConfig
	for _, a := range c.Accounts {
		if a.WatchNewOffers {
			out = append(out, a)
		}
	}
	return out
}
