package confirm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "finbot:pending:"

// RedisStore keeps pending entries as keys that expire on their own deadline.
type RedisStore struct {
	client *redis.Client
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

func OpenRedis(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) key(userID string) string { return redisKeyPrefix + userID }

func (s *RedisStore) Upsert(ctx context.Context, userID string, p Pending) error {
	ttl := time.Until(p.ExpiresAt)
	if ttl <= 0 {
		return s.Delete(ctx, userID)
	}
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode pending: %w", err)
	}
	if err := s.client.Set(ctx, s.key(userID), b, ttl).Err(); err != nil {
		return fmt.Errorf("set pending: %w", err)
	}
	return nil
}

func (s *RedisStore) Peek(ctx context.Context, userID string) (Pending, error) {
	return s.read(s.client.Get(ctx, s.key(userID)))
}

func (s *RedisStore) Take(ctx context.Context, userID string) (Pending, error) {
	return s.read(s.client.GetDel(ctx, s.key(userID)))
}

func (s *RedisStore) read(cmd *redis.StringCmd) (Pending, error) {
	b, err := cmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Pending{}, ErrNoPending
		}
		return Pending{}, fmt.Errorf("read pending: %w", err)
	}
	var p Pending
	if err := json.Unmarshal(b, &p); err != nil {
		return Pending{}, fmt.Errorf("decode pending: %w", err)
	}
	return p, nil
}

func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("delete pending: %w", err)
	}
	return nil
}

// SweepExpired is a no-op: keys carry their own expiry.
func (s *RedisStore) SweepExpired(context.Context, time.Time) (int, error) { return 0, nil }

func (s *RedisStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }
func (s *RedisStore) Close() error                   { return s.client.Close() }
