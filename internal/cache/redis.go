package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 200

// Redis 基于 go-redis 的存储，key 统一加 namespace 前缀
type Redis struct {
	client    redis.Cmdable
	namespace string
}

func NewRedis(client redis.Cmdable, namespace string) *Redis {
	return &Redis{client: client, namespace: namespace}
}

func (r *Redis) key(k string) string { return r.namespace + k }

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return data, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

// RemovePrefix walks matching keys with SCAN and deletes them in batches.
func (r *Redis) RemovePrefix(ctx context.Context, prefix string) error {
	pattern := globEscape(r.key(prefix)) + "*"
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func globEscape(s string) string { return globReplacer.Replace(s) }
