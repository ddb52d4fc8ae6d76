package cache

import (
	"context"

	"github.com/redis/go-redis/v9"
)

type redisInvalidator struct {
	client *redis.Client
}

func NewRedisInvalidator(addr string) Invalidator {
	return &redisInvalidator{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

// InvalidatePattern scans for keys matching pattern and deletes them in
// batches. SCAN keeps this safe against large keyspaces.
func (r *redisInvalidator) InvalidatePattern(ctx context.Context, pattern string) error {
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()

	batch := make([]string, 0, 100)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return r.client.Del(ctx, batch...).Err()
	}
	return nil
}
