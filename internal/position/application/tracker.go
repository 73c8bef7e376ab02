// Package application 持仓上下文的应用服务层。
package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wyfcoding/pkg/idgen"

	executiondomain "github.com/wyfcoding/strategytrading/internal/execution/domain"
	"github.com/wyfcoding/strategytrading/internal/position/domain"
	strategydomain "github.com/wyfcoding/strategytrading/internal/strategy/domain"
	"github.com/wyfcoding/strategytrading/pkg/metrics"
)

// PositionCallback 刷新后同步回调，每个持仓至多一个订阅者
type PositionCallback func(position *domain.StrategyPosition)

// PositionLifecycleTracker 持仓生命周期跟踪器。
// 持仓表与订阅表共用一把锁；刷新、平仓与读取可并发调用。
type PositionLifecycleTracker struct {
	pricing domain.PricingService
	repo    domain.PositionRepository
	events  domain.PositionEventPublisher
	logger  *slog.Logger

	mu          sync.RWMutex
	positions   map[string]*domain.StrategyPosition
	subscribers map[string]PositionCallback
}

func NewPositionLifecycleTracker(
	pricing domain.PricingService,
	repo domain.PositionRepository,
	events domain.PositionEventPublisher,
	logger *slog.Logger,
) *PositionLifecycleTracker {
	return &PositionLifecycleTracker{
		pricing:     pricing,
		repo:        repo,
		events:      events,
		logger:      logger,
		positions:   make(map[string]*domain.StrategyPosition),
		subscribers: make(map[string]PositionCallback),
	}
}

// CreatePosition 从执行结果建仓。仅接受 COMPLETED 或 PARTIAL 的执行。
func (t *PositionLifecycleTracker) CreatePosition(ctx context.Context, strategy *strategydomain.Strategy, result *executiondomain.MultiLegExecutionResult) (*domain.StrategyPosition, error) {
	position, err := domain.NewPositionFromExecution(strategy, result)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.positions[position.ID] = position
	t.mu.Unlock()
	metrics.PositionsActive.Inc()

	t.persist(ctx, position)
	t.publish(position, domain.EventTypePositionOpened)
	t.logger.Info("position created", "position_id", position.ID, "strategy_id", strategy.ID, "legs", len(position.Legs))
	return position, nil
}

// Refresh 重估持仓。未知 ID 返回 (nil, nil)，调用方需判空。
func (t *PositionLifecycleTracker) Refresh(ctx context.Context, positionID string) (*domain.StrategyPosition, error) {
	t.mu.RLock()
	position := t.positions[positionID]
	t.mu.RUnlock()
	if position == nil {
		return nil, nil
	}

	start := time.Now()
	defer func() {
		metrics.PositionRefreshDuration.Observe(time.Since(start).Seconds())
	}()

	valuations, err := t.collectValuations(ctx, position)
	if err != nil {
		metrics.PositionRefreshErrors.Inc()
		return nil, err
	}

	t.mu.Lock()
	wasActive := position.IsActive()
	position.ApplyValuation(valuations)
	expired := wasActive && position.Status == domain.PositionStatusExpired
	callback := t.subscribers[positionID]
	t.mu.Unlock()

	if expired {
		metrics.PositionsActive.Dec()
		t.publish(position, domain.EventTypePositionExpired)
	} else {
		t.publish(position, domain.EventTypePositionRefreshed)
	}
	t.persist(ctx, position)

	// 订阅回调在刷新末尾同步触发
	if callback != nil {
		callback(position)
	}
	return position, nil
}

// Close 平仓：未实现盈亏转入已实现。未知 ID 返回 false。
func (t *PositionLifecycleTracker) Close(ctx context.Context, positionID string) bool {
	t.mu.Lock()
	position := t.positions[positionID]
	if position == nil {
		t.mu.Unlock()
		return false
	}
	wasActive := position.IsActive()
	err := position.Close()
	t.mu.Unlock()

	if err != nil {
		// 重复平仓是空操作
		return true
	}
	if wasActive {
		metrics.PositionsActive.Dec()
	}
	t.persist(ctx, position)
	t.publish(position, domain.EventTypePositionClosed)
	t.logger.Info("position closed", "position_id", positionID, "realized_pnl", position.RealizedPnL.String())
	return true
}

// Subscribe 注册刷新回调，同一持仓的旧回调被替换
func (t *PositionLifecycleTracker) Subscribe(positionID string, callback PositionCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers[positionID] = callback
}

// Unsubscribe 取消订阅，未知 ID 为空操作
func (t *PositionLifecycleTracker) Unsubscribe(positionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subscribers, positionID)
}

// Get 查询持仓，未知 ID 返回 nil
func (t *PositionLifecycleTracker) Get(positionID string) *domain.StrategyPosition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.positions[positionID]
}

// GetAll 列出全部持仓
func (t *PositionLifecycleTracker) GetAll() []*domain.StrategyPosition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*domain.StrategyPosition, 0, len(t.positions))
	for _, p := range t.positions {
		out = append(out, p)
	}
	return out
}

// GetByUnderlying 按标的过滤持仓
func (t *PositionLifecycleTracker) GetByUnderlying(underlying string) []*domain.StrategyPosition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*domain.StrategyPosition, 0)
	for _, p := range t.positions {
		if p.Underlying == underlying {
			out = append(out, p)
		}
	}
	return out
}

// GetActive 列出活跃持仓
func (t *PositionLifecycleTracker) GetActive() []*domain.StrategyPosition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*domain.StrategyPosition, 0)
	for _, p := range t.positions {
		if p.IsActive() {
			out = append(out, p)
		}
	}
	return out
}

// RefreshAllActive 批量刷新活跃持仓，单个失败不影响其余
func (t *PositionLifecycleTracker) RefreshAllActive(ctx context.Context) {
	for _, position := range t.GetActive() {
		if _, err := t.Refresh(ctx, position.ID); err != nil {
			t.logger.Warn("position refresh failed", "position_id", position.ID, "error", err)
		}
	}
}

// StartRefreshLoop 周期性刷新活跃持仓，直到 ctx 取消
func (t *PositionLifecycleTracker) StartRefreshLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.RefreshAllActive(ctx)
		}
	}
}

// collectValuations 逐腿取价与希腊字母。单腿取价失败即整体失败，由调用方隔离。
func (t *PositionLifecycleTracker) collectValuations(ctx context.Context, position *domain.StrategyPosition) (map[string]domain.LegValuation, error) {
	valuations := make(map[string]domain.LegValuation, len(position.Legs))
	for _, leg := range position.Legs {
		price, err := t.pricing.CurrentPrice(ctx, leg.Symbol)
		if err != nil {
			return nil, fmt.Errorf("price lookup for leg %s: %w", leg.LegID, err)
		}

		v := domain.LegValuation{CurrentPrice: price}
		if leg.IsOption() {
			underlyingPrice, err := t.pricing.CurrentPrice(ctx, position.Underlying)
			if err != nil {
				return nil, fmt.Errorf("underlying price lookup for %s: %w", position.Underlying, err)
			}
			greeks, err := t.pricing.OptionGreeks(ctx, position.Underlying, leg.StrikePrice, leg.OptionType, leg.ExpiryDate, underlyingPrice)
			if err != nil {
				t.logger.Warn("greeks lookup failed", "position_id", position.ID, "leg_id", leg.LegID, "error", err)
			} else {
				v.Greeks = greeks
			}
		}
		valuations[leg.LegID] = v
	}
	return valuations, nil
}

func (t *PositionLifecycleTracker) persist(ctx context.Context, position *domain.StrategyPosition) {
	if t.repo == nil {
		return
	}
	if err := t.repo.Save(context.WithoutCancel(ctx), position); err != nil {
		t.logger.Error("failed to persist position", "position_id", position.ID, "error", err)
	}
}

func (t *PositionLifecycleTracker) publish(position *domain.StrategyPosition, eventType string) {
	if t.events == nil {
		return
	}
	event := &domain.PositionEvent{
		EventID:    fmt.Sprintf("EVT-%d", idgen.GenID()),
		EventType:  eventType,
		PositionID: position.ID,
		StrategyID: position.StrategyID,
		Status:     position.Status,
		OccurredAt: time.Now().Format(time.RFC3339),
	}
	if err := t.events.PublishPositionEvent(event); err != nil {
		t.logger.Warn("failed to publish position event", "position_id", position.ID, "event_type", eventType, "error", err)
	}
}
