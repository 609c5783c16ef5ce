package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/solcials-sync/internal/model"
)

// Gorm 把缓存条目存进 cache_entries 表，适合单机持久化
type Gorm struct {
	db    *gorm.DB
	clock clockwork.Clock
}

func NewGorm(db *gorm.DB, clock clockwork.Clock) *Gorm {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Gorm{db: db, clock: clock}
}

func (g *Gorm) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var row model.CacheEntry
	err := g.db.WithContext(ctx).Where("cache_key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load cache row: %w", err)
	}
	if !g.clock.Now().Before(row.ExpiresAt) {
		// 过期即删
		_ = g.Remove(ctx, key)
		return nil, false, nil
	}
	return row.Value, true, nil
}

func (g *Gorm) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := g.clock.Now()
	row := &model.CacheEntry{Key: key, Value: value, ExpiresAt: now.Add(ttl), CreatedAt: now}
	err := g.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cache_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "created_at"}),
		}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("store cache row: %w", err)
	}
	return nil
}

func (g *Gorm) Remove(ctx context.Context, key string) error {
	return g.db.WithContext(ctx).Where("cache_key = ?", key).Delete(&model.CacheEntry{}).Error
}

var likeReplacer = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (g *Gorm) RemovePrefix(ctx context.Context, prefix string) error {
	return g.db.WithContext(ctx).
		Where("cache_key LIKE ? ESCAPE '\\'", likeReplacer.Replace(prefix)+"%").
		Delete(&model.CacheEntry{}).Error
}

// PurgeExpired 删除所有过期行，返回删除数量
func (g *Gorm) PurgeExpired(ctx context.Context) (int64, error) {
	res := g.db.WithContext(ctx).Where("expires_at <= ?", g.clock.Now()).Delete(&model.CacheEntry{})
	return res.RowsAffected, res.Error
}
