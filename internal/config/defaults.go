package config

import (
	"time"

	"github.com/google/uuid"
)

// Default values for optional configuration fields.
const (
	DefaultLogLevel         = "info"
	DefaultBaseURL          = "https://api.steampowered.com"
	DefaultAPITimeout       = 30 * time.Second
	DefaultMaxRetries       = 3
	DefaultRetryBackoff     = 1 * time.Second
	DefaultLanguage         = "english"
	DefaultPollInterval     = 10 * time.Second
	DefaultPollConcurrency  = 16
	DefaultPollTimeout      = 30 * time.Second
	DefaultWatermarkSlack   = 1 * time.Minute
	DefaultNotifyBufferSize = 1024
	DefaultDedupBackend     = "memory"
	DefaultRedisAddr        = "localhost:6379"
	DefaultRedisPrefix      = "offerwatch:"
	DefaultRelayChannel     = "offerwatch:new-offers"
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 4
	DefaultMinConns         = 1
	DefaultBatchSize        = 100
	DefaultFlushInterval    = 1 * time.Second
	DefaultServerPort       = 8080
	DefaultPingInterval     = 30 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DedupBackendMemory      = "memory"
	DedupBackendRedis       = "redis"
)

func (c *Config) applyDefaults() {
	// A missing instance id gets a random one so Redis keys and journal
	// rows from separate runs never collide.
	if c.Instance.ID == "" {
		c.Instance.ID = "offerwatch-" + uuid.NewString()[:8]
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.RetryBackoff == 0 {
		c.API.RetryBackoff = DefaultRetryBackoff
	}
	if c.API.Language == "" {
		c.API.Language = DefaultLanguage
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.Concurrency == 0 {
		c.Poller.Concurrency = DefaultPollConcurrency
	}
	if c.Poller.Timeout == 0 {
		c.Poller.Timeout = DefaultPollTimeout
	}
	if c.Poller.WatermarkSlack == 0 {
		c.Poller.WatermarkSlack = DefaultWatermarkSlack
	}

	if c.Notify.BufferSize == 0 {
		c.Notify.BufferSize = DefaultNotifyBufferSize
	}
	if c.Dedup.Backend == "" {
		c.Dedup.Backend = DefaultDedupBackend
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = DefaultRedisAddr
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = DefaultRedisPrefix
	}
	if c.Relay.Channel == "" {
		c.Relay.Channel = DefaultRelayChannel
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Journal defaults
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.PingInterval == 0 {
		c.Server.PingInterval = DefaultPingInterval
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
}
