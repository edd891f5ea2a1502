package l2

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/oneyeking31/local-explorer/cache"
)

var _ cache.KeyDbClient = (*RedisKeyDbClient)(nil)

// RedisKeyDbClient narrows *redis.Client to the commands the cache issues
type RedisKeyDbClient struct {
	*redis.Client
	logger cache.Logger
}

type ClientOption func(*RedisKeyDbClient)

func WithClientLogger(logger cache.Logger) ClientOption {
	return func(r *RedisKeyDbClient) {
		r.logger = logger
	}
}

// ClientOptions maps the l2 config onto go-redis options
func ClientOptions(cfg *cache.KeyDBConfig) (*redis.Options, error) {
	cfg.ApplyDefaults()

	o, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid l2 cache url: %w", err)
	}
	o.DialTimeout = cfg.Connection.ConnectTimeout
	o.ReadTimeout = cfg.Connection.ReadTimeout
	o.WriteTimeout = cfg.Connection.SendTimeout
	o.PoolSize = cfg.Keepalive.PoolSize
	o.IdleTimeout = cfg.Keepalive.MaxIdleTimeout
	return o, nil
}

// NewRedisKeyDbClient dials the store and fails unless it answers a PING
// within the connect timeout
func NewRedisKeyDbClient(ctx context.Context, cfg *cache.KeyDBConfig, opts ...ClientOption) (*RedisKeyDbClient, error) {
	o, err := ClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	r := &RedisKeyDbClient{Client: redis.NewClient(o), logger: cache.NoopLogger{}}
	for _, opt := range opts {
		opt(r)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Connection.ConnectTimeout)
	defer cancel()
	if err := r.Client.Ping(ctx).Err(); err != nil {
		_ = r.Client.Close()
		return nil, fmt.Errorf("l2 cache at %s unreachable: %w", o.Addr, err)
	}

	r.logger.Info("l2 cache connected", "address", o.Addr, "db", o.DB, "pool_size", o.PoolSize)
	return r, nil
}

