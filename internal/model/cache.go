package model

import "time"

// CachedEntry 带采集时间和 TTL 的缓存值
type CachedEntry[T any] struct {
	Value      T             `json:"value"`
	CapturedAt time.Time     `json:"captured_at"`
	TTL        time.Duration `json:"ttl"`
}

// Fresh 在 now >= CapturedAt+TTL 后返回 false
func (e CachedEntry[T]) Fresh(now time.Time) bool {
	return now.Before(e.CapturedAt.Add(e.TTL))
}

// CacheEntry 是数据库缓存后端的行
type CacheEntry struct {
	Key       string    `gorm:"primaryKey;column:cache_key;type:varchar(512)"`
	Value     []byte    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"index:idx_cache_expires"`
	CreatedAt time.Time
}

func (CacheEntry) TableName() string { return "cache_entries" }
