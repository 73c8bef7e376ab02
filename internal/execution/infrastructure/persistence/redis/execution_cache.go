// Package redis 提供执行结果快照的 Redis 读写穿透缓存。
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wyfcoding/strategytrading/internal/execution/domain"
	"github.com/wyfcoding/strategytrading/pkg/cache"
	"github.com/wyfcoding/strategytrading/pkg/logger"
)

const executionKeyPrefix = "execution:snapshot:"

// CachedExecutionRepository 在底层仓储之上叠加快照缓存。
// 终态执行的查询大多命中缓存；缓存故障只记日志不阻断主流程。
type CachedExecutionRepository struct {
	inner domain.ExecutionRepository
	cache *cache.Cache
	ttl   time.Duration
}

// NewCachedExecutionRepository 创建带缓存的执行仓储
func NewCachedExecutionRepository(inner domain.ExecutionRepository, c *cache.Cache, ttl time.Duration) *CachedExecutionRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedExecutionRepository{inner: inner, cache: c, ttl: ttl}
}

// Save 先写库，成功后写穿缓存
func (r *CachedExecutionRepository) Save(ctx context.Context, result *domain.MultiLegExecutionResult) error {
	if err := r.inner.Save(ctx, result); err != nil {
		return err
	}
	if err := r.cache.SetJSON(ctx, executionKey(result.ID), result, r.ttl); err != nil {
		logger.Warn(ctx, "failed to cache execution snapshot", "execution_id", result.ID, "error", err)
	}
	return nil
}

// FindByID 缓存命中直接返回快照，未命中回源并回填
func (r *CachedExecutionRepository) FindByID(ctx context.Context, id string) (*domain.MultiLegExecutionResult, error) {
	var snapshot domain.MultiLegExecutionResult
	err := r.cache.GetJSON(ctx, executionKey(id), &snapshot)
	if err == nil {
		return &snapshot, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		logger.Warn(ctx, "execution snapshot cache read failed", "execution_id", id, "error", err)
	}

	result, err := r.inner.FindByID(ctx, id)
	if err != nil || result == nil {
		return result, err
	}
	if err := r.cache.SetJSON(ctx, executionKey(id), result, r.ttl); err != nil {
		logger.Warn(ctx, "failed to backfill execution snapshot", "execution_id", id, "error", err)
	}
	return result, nil
}

// FindByStrategyID 列表查询不走快照缓存，直接回源
func (r *CachedExecutionRepository) FindByStrategyID(ctx context.Context, strategyID string) ([]*domain.MultiLegExecutionResult, error) {
	return r.inner.FindByStrategyID(ctx, strategyID)
}

// FindRecent 列表查询不走快照缓存，直接回源
func (r *CachedExecutionRepository) FindRecent(ctx context.Context, limit int) ([]*domain.MultiLegExecutionResult, error) {
	return r.inner.FindRecent(ctx, limit)
}

func executionKey(id string) string {
	return fmt.Sprintf("%s%s", executionKeyPrefix, id)
}

var _ domain.ExecutionRepository = (*CachedExecutionRepository)(nil)
