package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/oneyeking31/local-explorer/models"
)

// Config is the response cache shared by the backend endpoints
type Config struct {
	L1    BigCacheConfig   `yaml:"l1" mapstructure:"l1"`
	L2    KeyDBConfig      `yaml:"l2" mapstructure:"l2"`
	Multi MultiCacheConfig `yaml:"multi" mapstructure:"multi"`
	// Policies maps an endpoint name to its cache policy
	Policies map[string]models.CacheType `yaml:"policies" mapstructure:"policies"`
}

// DefaultPolicies keeps forecasts briefly and place lookups for a day
func DefaultPolicies() map[string]models.CacheType {
	return map[string]models.CacheType{
		"weather":     models.CacheTypeShort,
		"places":      models.CacheTypePermanent,
		"suggestions": models.CacheTypeNone,
	}
}

func (c *Config) ApplyDefaults() {
	c.L1.ApplyDefaults()
	c.L2.ApplyDefaults()
	if c.Policies == nil {
		c.Policies = DefaultPolicies()
	}
	for name, policy := range DefaultPolicies() {
		if _, ok := c.Policies[name]; !ok {
			c.Policies[name] = policy
		}
	}
}

func (c *Config) Validate() error {
	if err := c.L1.Validate(); err != nil {
		return err
	}
	if err := c.L2.Validate(); err != nil {
		return err
	}
	for name, policy := range c.Policies {
		if !policy.IsValid() {
			return fmt.Errorf("cache policy for %q: invalid cache type %q", name, policy)
		}
	}
	return nil
}

// Policy returns the cache type for an endpoint, none when unknown
func (c *Config) Policy(endpoint string) models.CacheType {
	if p, ok := c.Policies[endpoint]; ok {
		return p
	}
	return models.CacheTypeNone
}

// BigCacheConfig represents BigCache (L1) configuration
type BigCacheConfig struct {
	Enabled      bool `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Size         int  `yaml:"size" json:"size" mapstructure:"size"` // MB
	MaxEntrySize int  `yaml:"max_entry_size" json:"max_entry_size" mapstructure:"max_entry_size"`
	Shards       int  `yaml:"shards" json:"shards" mapstructure:"shards"` // must be power of 2
}

func (c *BigCacheConfig) ApplyDefaults() {
	if c.Size == 0 {
		c.Size = 64
	}
	if c.MaxEntrySize == 0 {
		c.MaxEntrySize = 1 << 20
	}
	if c.Shards == 0 {
		c.Shards = 64
	}
}

func (c *BigCacheConfig) Validate() error {
	if c.Shards <= 0 || c.Shards&(c.Shards-1) != 0 {
		return fmt.Errorf("l1 shards must be a power of 2, got %d", c.Shards)
	}
	if c.Size < 0 || c.MaxEntrySize < 0 {
		return errors.New("l1 size and max_entry_size must not be negative")
	}
	return nil
}

// KeyDBConfig represents KeyDB (L2) cache configuration
type KeyDBConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	// URL is redis://[:password@]host[:port][/db]
	URL        string           `yaml:"url" json:"url" mapstructure:"url"`
	Connection ConnectionConfig `yaml:"connection" json:"connection" mapstructure:"connection"`
	Keepalive  KeepaliveConfig  `yaml:"keepalive" json:"keepalive" mapstructure:"keepalive"`
	Cache      CacheSettings    `yaml:"cache" json:"cache" mapstructure:"cache"`
}

func (c *KeyDBConfig) ApplyDefaults() {
	if c.URL == "" {
		c.URL = "redis://127.0.0.1:6379/0"
	}
	if c.Connection.ConnectTimeout == 0 {
		c.Connection.ConnectTimeout = 1000 * time.Millisecond
	}
	if c.Connection.SendTimeout == 0 {
		c.Connection.SendTimeout = 1000 * time.Millisecond
	}
	if c.Connection.ReadTimeout == 0 {
		c.Connection.ReadTimeout = 1000 * time.Millisecond
	}

	if c.Keepalive.PoolSize == 0 {
		c.Keepalive.PoolSize = 10
	}
	if c.Keepalive.MaxIdleTimeout == 0 {
		c.Keepalive.MaxIdleTimeout = 10000 * time.Millisecond
	}

	if c.Cache.MaxTTL == 0 {
		c.Cache.MaxTTL = 48 * time.Hour
	}
}

func (c *KeyDBConfig) Validate() error {
	if c.Enabled && c.URL == "" {
		return errors.New("l2 cache enabled without url")
	}
	return nil
}

type ConnectionConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout" mapstructure:"connect_timeout"`
	SendTimeout    time.Duration `yaml:"send_timeout" json:"send_timeout" mapstructure:"send_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout" json:"read_timeout" mapstructure:"read_timeout"`
}

// KeepaliveConfig represents connection pool settings
type KeepaliveConfig struct {
	PoolSize       int           `yaml:"pool_size" json:"pool_size" mapstructure:"pool_size"` // max connections in pool
	MaxIdleTimeout time.Duration `yaml:"max_idle_timeout" json:"max_idle_timeout" mapstructure:"max_idle_timeout"`
}

type CacheSettings struct {
	// MaxTTL caps the lifetime of any entry written to L2
	MaxTTL time.Duration `yaml:"max_ttl" json:"max_ttl" mapstructure:"max_ttl"`
	// KeyPrefix namespaces keys when the store is shared with other apps
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix" mapstructure:"key_prefix"`
}

type MultiCacheConfig struct {
	EnablePropagation bool `yaml:"enable_propagation" json:"enable_propagation" mapstructure:"enable_propagation"`
}
