package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis backend
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Key     string
	LockTTL time.Duration // zero disables the write lock
}

// RedisBackend stores the document under a single key. SET replaces the
// value atomically. When LockTTL is set, writers from several processes are
// serialised with a redislock lock on "<key>:lock".
type RedisBackend struct {
	client  *redis.Client
	locker  *redislock.Client
	key     string
	lockTTL time.Duration
}

// NewRedisBackend connects and pings the server
func NewRedisBackend(ctx context.Context, cfg RedisConfig) (*RedisBackend, error) {
	if cfg.Key == "" {
		return nil, errors.New("redis backend: key is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis backend: ping: %w", err)
	}

	b := &RedisBackend{client: client, key: cfg.Key, lockTTL: cfg.LockTTL}
	if cfg.LockTTL > 0 {
		b.locker = redislock.New(client)
	}
	return b, nil
}

// Load reads the document
func (b *RedisBackend) Load(ctx context.Context) ([]byte, error) {
	data, err := b.client.Get(ctx, b.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis backend: get: %w", err)
	}
	return data, nil
}

// Save replaces the document
func (b *RedisBackend) Save(ctx context.Context, doc []byte) error {
	if b.locker != nil {
		lock, err := b.locker.Obtain(ctx, b.key+":lock", b.lockTTL, &redislock.Options{
			RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 10),
		})
		if errors.Is(err, redislock.ErrNotObtained) {
			return fmt.Errorf("redis backend: could not obtain write lock: %w", err)
		}
		if err != nil {
			return fmt.Errorf("redis backend: obtain lock: %w", err)
		}
		defer func() {
			_ = lock.Release(context.Background())
		}()
	}

	if err := b.client.Set(ctx, b.key, doc, 0).Err(); err != nil {
		return fmt.Errorf("redis backend: set: %w", err)
	}
	return nil
}

// Close closes the client
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
