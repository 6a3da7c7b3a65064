// Package config loads client, cache and session settings from YAML, the
// environment, or a decoded map, and builds the matching components.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	nomos "github.com/misaret/nomos-go"
)

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

var ErrInvalidConfig = errors.New("config: invalid")

// Config is the full client configuration.
type Config struct {
	Servers        []nomos.Endpoint `env:"NOMOS_SERVERS" envSeparator:"," yaml:"servers" mapstructure:"servers"`
	Timeout        time.Duration    `env:"NOMOS_TIMEOUT" yaml:"timeout" mapstructure:"timeout"`
	ConnectTimeout time.Duration    `env:"NOMOS_CONNECT_TIMEOUT" yaml:"connect_timeout" mapstructure:"connect_timeout"`
	PoolSize       int              `env:"NOMOS_POOL_SIZE" yaml:"pool_size" mapstructure:"pool_size"`
	LogLevel       string           `env:"NOMOS_LOG_LEVEL" yaml:"log_level" mapstructure:"log_level"`

	Cache   Cache   `envPrefix:"NOMOS_CACHE_" yaml:"cache" mapstructure:"cache"`
	Session Session `envPrefix:"NOMOS_SESSION_" yaml:"session" mapstructure:"session"`
}

// Cache configures the cache adapter.
type Cache struct {
	Level      int    `env:"LEVEL" yaml:"level" mapstructure:"level"`
	SubLevel   int    `env:"SUB_LEVEL" yaml:"sub_level" mapstructure:"sub_level"`
	KeyPrefix  string `env:"KEY_PREFIX" yaml:"key_prefix" mapstructure:"key_prefix"`
	DefaultTTL int    `env:"DEFAULT_TTL" yaml:"default_ttl" mapstructure:"default_ttl"`
	Renew      int    `env:"RENEW" yaml:"renew" mapstructure:"renew"`
}

// Session configures the session handler and its store.
type Session struct {
	Store         string        `env:"STORE" yaml:"store" mapstructure:"store"`
	Lifetime      time.Duration `env:"LIFETIME" yaml:"lifetime" mapstructure:"lifetime"`
	Path          string        `env:"PATH" yaml:"path" mapstructure:"path"`
	RedisAddr     string        `env:"REDIS_ADDR" yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string        `env:"REDIS_PASSWORD" yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int           `env:"REDIS_DB" yaml:"redis_db" mapstructure:"redis_db"`
	RedisPrefix   string        `env:"REDIS_PREFIX" yaml:"redis_prefix" mapstructure:"redis_prefix"`
}

// Default returns a configuration with every optional field set.
func Default() Config {
	return Config{
		Timeout:        nomos.DefaultTimeout,
		ConnectTimeout: nomos.DefaultConnectTimeout,
		LogLevel:       "info",
		Session: Session{
			Store:    StoreMemory,
			Lifetime: 24 * time.Minute,
		},
	}
}

// applyDefaults fills zero values left by a partial source.
func (c *Config) applyDefaults() {
	d := Default()
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.Session.Store == "" {
		c.Session.Store = d.Session.Store
	}
	c.Session.Store = strings.ToLower(strings.TrimSpace(c.Session.Store))
	if c.Session.Lifetime == 0 {
		c.Session.Lifetime = d.Session.Lifetime
	}
}

// Validate reports the first problem found.
func (c Config) Validate() error {
	if len(c.Servers) == 0 {
		return nomos.ErrNoServers
	}
	for _, e := range c.Servers {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	if c.Timeout < 0 || c.ConnectTimeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	if c.PoolSize < 0 {
		return fmt.Errorf("%w: pool_size %d", ErrInvalidConfig, c.PoolSize)
	}
	if c.Cache.Level < 0 || c.Cache.SubLevel < 0 || c.Cache.DefaultTTL < 0 || c.Cache.Renew < 0 {
		return fmt.Errorf("%w: cache namespace and ttls must not be negative", ErrInvalidConfig)
	}
	switch c.Session.Store {
	case StoreMemory:
	case StoreSQLite:
		if strings.TrimSpace(c.Session.Path) == "" {
			return fmt.Errorf("%w: session path is required for the sqlite store", ErrInvalidConfig)
		}
	case StoreRedis:
		if strings.TrimSpace(c.Session.RedisAddr) == "" {
			return fmt.Errorf("%w: session redis_addr is required for the redis store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown session store %q", ErrInvalidConfig, c.Session.Store)
	}
	return nil
}
