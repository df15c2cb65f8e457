package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"retailpos/internal/domain"
)

const tiersKey = "retailpos:customer_tiers"

type RedisTierCache struct {
	client *redis.Client
}

func NewRedisTierCache(addr string, password string, db int) *RedisTierCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisTierCache{client: client}
}

func NewRedisTierCacheFromClient(client *redis.Client) *RedisTierCache {
	return &RedisTierCache{client: client}
}

func (c *RedisTierCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisTierCache) Close() error {
	return c.client.Close()
}

func (c *RedisTierCache) Get(ctx context.Context) ([]domain.CustomerTier, bool, error) {
	val, err := c.client.Get(ctx, tiersKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var tiers []domain.CustomerTier
	if err := json.Unmarshal([]byte(val), &tiers); err != nil {
		return nil, false, err
	}
	return tiers, len(tiers) > 0, nil
}

func (c *RedisTierCache) Set(ctx context.Context, tiers []domain.CustomerTier, ttl time.Duration) error {
	if len(tiers) == 0 {
		return nil
	}
	payload, err := json.Marshal(tiers)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, tiersKey, payload, ttl).Err()
}

func (c *RedisTierCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, tiersKey).Err()
}
