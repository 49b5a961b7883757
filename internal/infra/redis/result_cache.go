package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"iranpay/internal/domain/model"
)

// ResultCache remembers successful verifications so a replayed callback
// is answered without asking the gateway again.
type ResultCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewResultCache(client RedisClient, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ResultCache{client: client, ttl: ttl}
}

func resultKey(gateway, reference string) string {
	return "payman:verified:" + gateway + ":" + reference
}

func (c *ResultCache) Store(ctx context.Context, res *model.VerifyResponse) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, resultKey(res.Gateway, res.Reference), data, c.ttl)
}

// Lookup returns (nil, nil) on a miss.
func (c *ResultCache) Lookup(ctx context.Context, gateway, reference string) (*model.VerifyResponse, error) {
	data, err := c.client.Get(ctx, resultKey(gateway, reference))
	if errors.Is(err, ErrNil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var res model.VerifyResponse
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *ResultCache) Forget(ctx context.Context, gateway, reference string) error {
	return c.client.Del(ctx, resultKey(gateway, reference))
}
