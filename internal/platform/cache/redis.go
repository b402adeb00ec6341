package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// Options configures the Redis client shared by sessions, locks and the
// resource cache.
type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

func (o Options) redisOptions() *redis.Options {
	opts := &redis.Options{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,
	}
	if o.PoolSize > 0 {
		opts.PoolSize = o.PoolSize
	}
	return opts
}

// New connects to Redis and fails fast when the server does not answer a PING.
func New(ctx context.Context, opts Options) (*redis.Client, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("platform/cache: redis address is empty")
	}
	client := redis.NewClient(opts.redisOptions())

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping %s: %w", opts.Addr, err)
	}
	return client, nil
}
