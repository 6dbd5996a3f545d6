package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	if len(c.Accounts) == 0 {
		return errors.New("accounts must not be empty")
	}
	seen := make(map[string]bool, len(c.Accounts))
	for i, a := range c.Accounts {
		prefix := fmt.Sprintf("accounts[%d]", i)
		if a.Key == "" {
			return fmt.Errorf("%s.key is required", prefix)
		}
		if seen[a.Key] {
			return fmt.Errorf("%s.key %q is duplicated", prefix, a.Key)
		}
		seen[a.Key] = true
		if a.APIKey == "" && a.APIKeyFile == "" {
			return fmt.Errorf("%s.api_key or %s.api_key_file is required", prefix, prefix)
		}
	}

	if c.Poller.Interval <= 0 {
		return errors.New("poller.interval must be > 0")
	}
	if c.Poller.Concurrency < 1 {
		return errors.New("poller.concurrency must be >= 1")
	}
	if c.Notify.BufferSize < 1 {
		return errors.New("notify.buffer_size must be >= 1")
	}

	switch c.Dedup.Backend {
	case DedupBackendMemory:
	case DedupBackendRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis.addr is required for dedup.backend redis")
		}
	default:
		return fmt.Errorf("dedup.backend must be %q or %q, got %q", DedupBackendMemory, DedupBackendRedis, c.Dedup.Backend)
	}
	if c.Dedup.TTL < 0 {
		return errors.New("dedup.ttl must be >= 0")
	}

	if c.Relay.Enabled {
		if c.Redis.Addr == "" {
			return errors.New("redis.addr is required when relay.enabled")
		}
		if c.Relay.Channel == "" {
			return errors.New("relay.channel is required when relay.enabled")
		}
	}

	if c.Database.Enabled {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}
	if c.Journal.Enabled {
		if !c.Database.Enabled {
			return errors.New("journal.enabled requires database.enabled")
		}
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
