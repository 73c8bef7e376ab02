// Package redis 提供持仓快照的 Redis 读写穿透缓存。
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wyfcoding/strategytrading/internal/position/domain"
	"github.com/wyfcoding/strategytrading/pkg/cache"
	"github.com/wyfcoding/strategytrading/pkg/logger"
)

const positionKeyPrefix = "position:snapshot:"

// CachedPositionRepository 在底层仓储之上叠加快照缓存。
// 写路径穿透写入缓存，读路径优先命中缓存；缓存故障只记日志不阻断主流程。
type CachedPositionRepository struct {
	inner domain.PositionRepository
	cache *cache.Cache
	ttl   time.Duration
}

// NewCachedPositionRepository 创建带缓存的持仓仓储
func NewCachedPositionRepository(inner domain.PositionRepository, c *cache.Cache, ttl time.Duration) *CachedPositionRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedPositionRepository{inner: inner, cache: c, ttl: ttl}
}

// Save 先写库，成功后写穿缓存
func (r *CachedPositionRepository) Save(ctx context.Context, position *domain.StrategyPosition) error {
	if err := r.inner.Save(ctx, position); err != nil {
		return err
	}
	if err := r.cache.SetJSON(ctx, positionKey(position.ID), position, r.ttl); err != nil {
		logger.Warn(ctx, "failed to cache position snapshot", "position_id", position.ID, "error", err)
	}
	return nil
}

// FindByID 缓存命中直接返回快照，未命中回源并回填
func (r *CachedPositionRepository) FindByID(ctx context.Context, id string) (*domain.StrategyPosition, error) {
	var snapshot domain.StrategyPosition
	err := r.cache.GetJSON(ctx, positionKey(id), &snapshot)
	if err == nil {
		return &snapshot, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		logger.Warn(ctx, "position snapshot cache read failed", "position_id", id, "error", err)
	}

	position, err := r.inner.FindByID(ctx, id)
	if err != nil || position == nil {
		return position, err
	}
	if err := r.cache.SetJSON(ctx, positionKey(id), position, r.ttl); err != nil {
		logger.Warn(ctx, "failed to backfill position snapshot", "position_id", id, "error", err)
	}
	return position, nil
}

// FindByStatus 列表查询不走快照缓存，直接回源
func (r *CachedPositionRepository) FindByStatus(ctx context.Context, status domain.PositionStatus) ([]*domain.StrategyPosition, error) {
	return r.inner.FindByStatus(ctx, status)
}

// FindAll 列表查询不走快照缓存，直接回源
func (r *CachedPositionRepository) FindAll(ctx context.Context, limit, offset int) ([]*domain.StrategyPosition, error) {
	return r.inner.FindAll(ctx, limit, offset)
}

func positionKey(id string) string {
	return fmt.Sprintf("%s%s", positionKeyPrefix, id)
}

var _ domain.PositionRepository = (*CachedPositionRepository)(nil)
