// Package cache 提供 RPC 层与元数据查询共用的 TTL 键值存储
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Store 是一个带 TTL 的键值存储；读取过期条目视为缺失
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
	RemovePrefix(ctx context.Context, prefix string) error
}

func GetJSON[T any](ctx context.Context, s Store, key string) (T, bool, error) {
	var out T
	data, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return out, false, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, false, fmt.Errorf("decode cached %q: %w", key, err)
	}
	return out, true, nil
}

func SetJSON[T any](ctx context.Context, s Store, key string, v T, ttl time.Duration) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cached %q: %w", key, err)
	}
	return s.Set(ctx, key, payload, ttl)
}
