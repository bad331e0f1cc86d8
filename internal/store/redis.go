package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultMaxRetries bounds how many times Update re-runs after a concurrent
// writer touched the watched key.
const defaultMaxRetries = 16

// Redis is a Store backed by a Redis server. Update is an optimistic
// compare-and-swap built on WATCH/MULTI/EXEC.
type Redis struct {
	client     redis.UniversalClient
	maxRetries int
}

// NewRedis wraps an existing client.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client, maxRetries: defaultMaxRetries}
}

// Dial parses a redis:// URL, connects and pings the server.
func Dial(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}
	return NewRedis(client), nil
}

// Client exposes the underlying client for pub/sub users.
func (r *Redis) Client() redis.UniversalClient {
	return r.client
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get", key, err)
	}
	return val, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return unavailable("delete", key, err)
	}
	return nil
}

// callerError marks errors returned by an UpdateFunc so they pass through
// unwrapped.
type callerError struct{ err error }

func (e callerError) Error() string { return e.err.Error() }

func (r *Redis) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error {
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			current = nil
		} else if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			return callerError{err}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, key)
			} else {
				pipe.Set(ctx, key, next, ttl)
			}
			return nil
		})
		return err
	}

	for i := 0; i < r.maxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		var ce callerError
		if errors.As(err, &ce) {
			return ce.err
		}
		return unavailable("update", key, err)
	}
	return fmt.Errorf("%w: %s after %d attempts", ErrConflict, key, r.maxRetries)
}

func unavailable(op, key string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, op, key, err)
}
