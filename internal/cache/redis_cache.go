package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wisegate/wisegate/internal/config"
	"github.com/wisegate/wisegate/internal/domain"
)

// RedisSessionCache implements SessionCache on redis with a TTL.
type RedisSessionCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisSessionCache(cfg config.RedisConfig) (*RedisSessionCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisSessionCache{
		client: client,
		prefix: cfg.CachePrefix,
		ttl:    cfg.SessionCacheTTL,
	}, nil
}

func (c *RedisSessionCache) key(sessionID string) string {
	return fmt.Sprintf("%s:session:%s", c.prefix, sessionID)
}

func (c *RedisSessionCache) Get(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	data, err := c.client.Get(ctx, c.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var session domain.ChatSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached session: %w", err)
	}
	return &session, nil
}

func (c *RedisSessionCache) Set(ctx context.Context, session *domain.ChatSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := c.client.Set(ctx, c.key(session.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

func (c *RedisSessionCache) Invalidate(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, c.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate in redis: %w", err)
	}
	return nil
}

func (c *RedisSessionCache) Close() error {
	return c.client.Close()
}
