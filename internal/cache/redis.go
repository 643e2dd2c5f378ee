package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"cantina/backend/internal/domain"
)

const accountKeyPrefix = "cantina:account:"

type RedisAccountCache struct {
	client *redis.Client
}

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewRedisAccountCache(client *redis.Client) *RedisAccountCache {
	return &RedisAccountCache{client: client}
}

func (c *RedisAccountCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisAccountCache) Get(ctx context.Context, id string) (*domain.Account, bool, error) {
	val, err := c.client.Get(ctx, accountKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var acct domain.Account
	if err := json.Unmarshal(val, &acct); err != nil {
		return nil, false, err
	}
	return &acct, true, nil
}

func (c *RedisAccountCache) Set(ctx context.Context, acct domain.Account, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(acct)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, accountKey(acct.ID), payload, ttl).Err()
}

func (c *RedisAccountCache) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, accountKey(id))
	}
	return c.client.Del(ctx, keys...).Err()
}

func accountKey(id string) string {
	return accountKeyPrefix + id
}
