package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Versioned wraps Redis JSON caching under a namespace whose keys are
// invalidated together by bumping the namespace version.
type Versioned struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewVersioned instantiates the cache helper. A nil client disables caching.
func NewVersioned(client *redis.Client, namespace string, ttl time.Duration) *Versioned {
	return &Versioned{client: client, namespace: namespace, ttl: ttl}
}

func (c *Versioned) versionKey() string {
	return c.namespace + ":version"
}

// Version returns the current namespace version, initialising when missing.
func (c *Versioned) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, c.versionKey()).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, c.versionKey(), 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, c.versionKey()).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// BuildKey composes the cache key with the current version.
func (c *Versioned) BuildKey(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(parts, ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s:v%d", c.namespace, joined, ver), nil
}

// FetchJSON loads a cached value into dest or populates it using the loader.
func (c *Versioned) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c != nil && c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			return err
		}
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c != nil && c.client != nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return err
		}
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates every key in the namespace.
func (c *Versioned) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, c.versionKey()).Err()
}
