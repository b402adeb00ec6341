package matrix

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// SaveLocker serialises saves of one matrix across processes.
type SaveLocker interface {
	Lock(ctx context.Context, matrixID string, ttl time.Duration) (release func(context.Context) error, err error)
}

// RedisLocker implements SaveLocker with redislock.
type RedisLocker struct {
	locker *redislock.Client
}

// NewRedisLocker constructs RedisLocker.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{locker: redislock.New(client)}
}

// MatrixLockKey is the redis key guarding saves of matrixID.
func MatrixLockKey(matrixID string) string {
	return fmt.Sprintf("slotbook:matrix:%s:save", matrixID)
}

// Lock obtains the save lock or fails fast with ErrSaveInProgress.
func (l *RedisLocker) Lock(ctx context.Context, matrixID string, ttl time.Duration) (func(context.Context) error, error) {
	lock, err := l.locker.Obtain(ctx, MatrixLockKey(matrixID), ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrSaveInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("matrix: obtain save lock: %w", err)
	}
	return func(ctx context.Context) error {
		err := lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			return nil
		}
		return err
	}, nil
}
