package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const tokenKeyPrefix = "chat:push_token:"

// CachedTokenLookup fronts a TokenRegistry with a redis read-through cache.
// Redis failures fall back to the wrapped registry.
type CachedTokenLookup struct {
	next   TokenRegistry
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewCachedTokenLookup(next TokenRegistry, client *redis.Client, ttl time.Duration, log *zap.Logger) *CachedTokenLookup {
	return &CachedTokenLookup{next: next, client: client, ttl: ttl, log: log}
}

func tokenKey(userID string) string { return fmt.Sprintf("%s%s", tokenKeyPrefix, userID) }

func (c *CachedTokenLookup) FindPushToken(ctx context.Context, userID string) (string, error) {
	token, err := c.client.Get(ctx, tokenKey(userID)).Result()
	switch {
	case err == nil:
		return token, nil
	case !errors.Is(err, redis.Nil):
		c.log.Warn("push token cache read failed", zap.String("user_id", userID), zap.Error(err))
	}

	token, err = c.next.FindPushToken(ctx, userID)
	if err != nil || token == "" {
		return token, err
	}

	c.populate(ctx, userID, token)
	return token, nil
}

// populate caches a token read from the registry. SetNX never replaces an
// entry written by SavePushToken, so a reader holding an older row cannot
// overwrite a newer token.
func (c *CachedTokenLookup) populate(ctx context.Context, userID, token string) {
	if err := c.client.SetNX(ctx, tokenKey(userID), token, c.ttl).Err(); err != nil {
		c.log.Warn("push token cache write failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// SavePushToken writes through to the registry and then caches the new token.
// The entry is dropped before the write so no reader serves the old token from
// cache while the row changes.
func (c *CachedTokenLookup) SavePushToken(ctx context.Context, userID, token string) error {
	key := tokenKey(userID)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.log.Warn("push token cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
	}

	if err := c.next.SavePushToken(ctx, userID, token); err != nil {
		return err
	}

	if err := c.client.Set(ctx, key, token, c.ttl).Err(); err != nil {
		c.log.Warn("push token cache write failed", zap.String("user_id", userID), zap.Error(err))
		if err := c.client.Del(ctx, key).Err(); err != nil {
			c.log.Warn("push token cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return nil
}
