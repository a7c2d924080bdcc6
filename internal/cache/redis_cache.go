package cache

import (
	"context"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type RedisBalanceCache struct {
	client *redis.Client
}

func NewRedisBalanceCache(addr string, password string, db int) *RedisBalanceCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisBalanceCache{client: client}
}

func (c *RedisBalanceCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisBalanceCache) Close() error {
	return c.client.Close()
}

func balanceKey(clientID string) string {
	return "credit:balance:" + clientID
}

func (c *RedisBalanceCache) GetBalance(ctx context.Context, clientID string) (int64, bool, error) {
	val, err := c.client.Get(ctx, balanceKey(clientID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	cents, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return cents, true, nil
}

func (c *RedisBalanceCache) SetBalance(ctx context.Context, clientID string, balanceCents int64, ttl time.Duration) error {
	return c.client.Set(ctx, balanceKey(clientID), strconv.FormatInt(balanceCents, 10), ttl).Err()
}

func (c *RedisBalanceCache) Invalidate(ctx context.Context, clientID string) error {
	return c.client.Del(ctx, balanceKey(clientID)).Err()
}
