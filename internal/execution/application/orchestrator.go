package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/idgen"

	"github.com/wyfcoding/strategytrading/internal/execution/domain"
	strategydomain "github.com/wyfcoding/strategytrading/internal/strategy/domain"
	"github.com/wyfcoding/strategytrading/pkg/metrics"
)

// executionEntry 执行注册表条目，条目级互斥锁保护聚合结果
type executionEntry struct {
	mu        sync.Mutex
	result    *domain.MultiLegExecutionResult
	cancelCtx context.CancelFunc
	cancelled bool
	failed    bool
}

// MultiLegExecutionOrchestrator 多腿执行编排器。
// 按执行策略协调逐腿下单，维护可查询的执行注册表。
type MultiLegExecutionOrchestrator struct {
	quotes  domain.VenueQuoteProvider
	gateway domain.VenueOrderGateway
	repo    domain.ExecutionRepository
	events  domain.EventPublisher
	logger  *slog.Logger

	mu       sync.RWMutex
	registry map[string]*executionEntry
}

func NewMultiLegExecutionOrchestrator(
	quotes domain.VenueQuoteProvider,
	gateway domain.VenueOrderGateway,
	repo domain.ExecutionRepository,
	events domain.EventPublisher,
	logger *slog.Logger,
) *MultiLegExecutionOrchestrator {
	return &MultiLegExecutionOrchestrator{
		quotes:   quotes,
		gateway:  gateway,
		repo:     repo,
		events:   events,
		logger:   logger,
		registry: make(map[string]*executionEntry),
	}
}

// Execute 执行一个已校验的策略，阻塞直到所有腿到达终态或整体超时。
// 前置校验失败时直接返回 FAILED 结果，不尝试任何腿。
func (o *MultiLegExecutionOrchestrator) Execute(ctx context.Context, strategy *strategydomain.Strategy, config domain.ExecutionConfig) *domain.MultiLegExecutionResult {
	result := domain.NewMultiLegExecutionResult(strategy.ID, len(strategy.Legs))

	if errs := preflight(strategy); len(errs) > 0 {
		result.Status = domain.ExecutionStatusFailed
		result.ErrorMessage = fmt.Sprintf("%v: %s", domain.ErrStrategyNotViable, strings.Join(errs, "; "))
		result.EndTime = time.Now()
		o.register(result, nil)
		o.finish(ctx, result)
		return result
	}

	execCtx, cancel := context.WithTimeout(ctx, config.MaxExecutionTime)
	defer cancel()

	entry := o.register(result, cancel)
	metrics.ExecutionsStarted.WithLabelValues(string(config.ExecutionType)).Inc()
	o.publish(result, domain.EventTypeExecutionStarted, "")

	// 超时取消不等待在途腿完成
	go func() {
		<-execCtx.Done()
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			o.cancelEntry(entry, "execution timed out")
		}
	}()

	var policyErr error
	switch config.ExecutionType {
	case domain.ExecutionTypeSequential:
		policyErr = o.executeSequential(execCtx, entry, strategy, config)
	case domain.ExecutionTypeConditional:
		policyErr = o.executeConditional(execCtx, entry, strategy, config)
	default:
		policyErr = o.executeSimultaneous(execCtx, entry, strategy, config)
	}

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		o.cancelEntry(entry, "execution timed out")
	}

	entry.mu.Lock()
	if policyErr != nil && !entry.cancelled {
		entry.failed = true
		if result.ErrorMessage == "" {
			result.ErrorMessage = policyErr.Error()
		}
	}
	result.Recalculate(entry.cancelled, entry.failed)
	if result.EndTime.IsZero() {
		result.EndTime = time.Now()
	}
	entry.mu.Unlock()

	o.finish(ctx, result)
	return result
}

func (o *MultiLegExecutionOrchestrator) executeSimultaneous(ctx context.Context, entry *executionEntry, strategy *strategydomain.Strategy, config domain.ExecutionConfig) error {
	// 按策略腿顺序预登记，确保结果列表顺序与提交顺序一致
	legResults := make([]*domain.LegExecutionResult, 0, len(strategy.Legs))
	entry.mu.Lock()
	for _, leg := range strategy.Legs {
		lr := domain.NewLegExecutionResult(leg)
		entry.result.LegResults = append(entry.result.LegResults, lr)
		legResults = append(legResults, lr)
	}
	entry.mu.Unlock()

	var wg sync.WaitGroup
	errCh := make(chan error, len(legResults))
	for i, leg := range strategy.Legs {
		wg.Add(1)
		go func(leg *strategydomain.StrategyLeg, lr *domain.LegExecutionResult) {
			defer wg.Done()
			if err := o.submitLeg(ctx, entry, leg, lr, config); err != nil {
				errCh <- err
			}
		}(leg, legResults[i])
	}
	wg.Wait()
	close(errCh)
	return <-errCh
}

func (o *MultiLegExecutionOrchestrator) executeSequential(ctx context.Context, entry *executionEntry, strategy *strategydomain.Strategy, config domain.ExecutionConfig) error {
	for _, leg := range strategy.Legs {
		if o.isTerminal(entry) {
			return nil
		}
		lr := o.appendLeg(entry, leg)
		if err := o.submitLeg(ctx, entry, leg, lr, config); err != nil {
			return err
		}
		if lr.GetStatus() == domain.LegStatusRejected && config.CancelAllOnFailure {
			entry.mu.Lock()
			entry.failed = true
			entry.result.ErrorMessage = fmt.Sprintf("leg %s rejected, cancelling remaining legs", lr.LegID)
			entry.mu.Unlock()
			return nil
		}
	}
	return nil
}

// executeConditional 买入腿全部先于卖出腿提交（其余保持原序）。
// 任一买入腿被拒即终止剩余腿；卖出腿被拒仅在 CancelAllOnFailure 时终止。
func (o *MultiLegExecutionOrchestrator) executeConditional(ctx context.Context, entry *executionEntry, strategy *strategydomain.Strategy, config domain.ExecutionConfig) error {
	ordered := make([]*strategydomain.StrategyLeg, len(strategy.Legs))
	copy(ordered, strategy.Legs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Action == strategydomain.LegActionBuy && ordered[j].Action != strategydomain.LegActionBuy
	})

	for _, leg := range ordered {
		if o.isTerminal(entry) {
			return nil
		}
		lr := o.appendLeg(entry, leg)
		if err := o.submitLeg(ctx, entry, leg, lr, config); err != nil {
			return err
		}
		if lr.GetStatus() != domain.LegStatusRejected {
			continue
		}
		if leg.Action == strategydomain.LegActionBuy {
			entry.mu.Lock()
			entry.failed = true
			entry.result.ErrorMessage = "Failed to execute buy leg, cancelling remaining legs"
			entry.mu.Unlock()
			return nil
		}
		if config.CancelAllOnFailure {
			entry.mu.Lock()
			entry.failed = true
			entry.result.ErrorMessage = fmt.Sprintf("sell leg %s rejected, cancelling remaining legs", lr.LegID)
			entry.mu.Unlock()
			return nil
		}
	}
	return nil
}

// submitLeg 单腿询价、选场所、下单，含瞬时错误重试。
// 返回 error 仅表示编排级异常；业务拒绝记录在腿状态上。
func (o *MultiLegExecutionOrchestrator) submitLeg(ctx context.Context, entry *executionEntry, leg *strategydomain.StrategyLeg, lr *domain.LegExecutionResult, config domain.ExecutionConfig) error {
	venues, err := o.quotes.Quote(ctx, leg)
	if err != nil {
		return fmt.Errorf("venue quote for leg %s: %w", leg.ID, err)
	}
	venues = domain.FilterByPriceTolerance(venues, leg, config.PriceTolerance)
	venue := domain.SelectBestVenue(venues)
	if venue == nil {
		lr.Reject("No execution venues available")
		metrics.LegsRejected.Inc()
		o.recalc(entry)
		return nil
	}
	lr.VenueID = venue.ID

	var fill *domain.FillResult
	var submitErr error
	for attempt := 0; attempt <= config.RetryAttempts; attempt++ {
		fill, submitErr = o.gateway.Submit(ctx, leg, venue, config.AllowPartialFills)
		if submitErr == nil {
			break
		}
		if ctx.Err() != nil {
			// 超时或取消：腿保持当前状态，由取消路径统一处理
			return nil
		}
		if attempt < config.RetryAttempts {
			select {
			case <-time.After(config.RetryDelay):
			case <-ctx.Done():
				return nil
			}
		}
	}
	if submitErr != nil {
		lr.Reject(fmt.Sprintf("venue submission failed: %v", submitErr))
		metrics.LegsRejected.Inc()
		o.recalc(entry)
		return nil
	}

	if o.isTerminal(entry) {
		// 执行已被取消，迟到回报不再上账
		return nil
	}

	lr.BrokerOrderID = fill.BrokerOrderID
	if fill.Rejected {
		lr.Reject(fill.RejectReason)
		metrics.LegsRejected.Inc()
		o.recalc(entry)
		return nil
	}

	if err := lr.ApplyFill(fill.FilledQuantity, fill.FillPrice); err != nil {
		o.logger.Warn("fill not applied", "execution_id", entry.result.ID, "leg_id", lr.LegID, "error", err)
		o.recalc(entry)
		return nil
	}

	if config.AllowPartialFills && lr.GetStatus() == domain.LegStatusPartial &&
		lr.FillRatio().LessThan(config.MinFillPercentage) {
		// 低于最小成交比例：撤掉剩余并按拒绝处理
		if lr.BrokerOrderID != "" {
			_ = o.gateway.Cancel(ctx, lr.BrokerOrderID)
		}
		lr.Reject(fmt.Sprintf("fill ratio %s%% below minimum %s%%", lr.FillRatio().StringFixed(1), config.MinFillPercentage.StringFixed(1)))
		metrics.LegsRejected.Inc()
		o.recalc(entry)
		return nil
	}

	if lr.GetStatus() == domain.LegStatusFilled {
		metrics.LegsFilled.Inc()
	}
	o.recalc(entry)
	return nil
}

// HandlePartialFill 外部成交回报入口。未知执行或腿返回 false。
// 执行已终态时回报被忽略（返回 false），避免迟到成交改写终态。
func (o *MultiLegExecutionOrchestrator) HandlePartialFill(executionID, legID string, quantity, price decimal.Decimal) (*domain.MultiLegExecutionResult, bool) {
	entry := o.lookup(executionID)
	if entry == nil {
		return nil, false
	}

	entry.mu.Lock()
	if entry.result.Status.IsTerminal() {
		entry.mu.Unlock()
		return entry.result, false
	}
	lr := entry.result.FindLeg(legID)
	entry.mu.Unlock()
	if lr == nil {
		return nil, false
	}

	wasFilled := lr.GetStatus() == domain.LegStatusFilled
	if err := lr.ApplyFill(quantity, price); err != nil {
		o.logger.Warn("partial fill rejected", "execution_id", executionID, "leg_id", legID, "error", err)
		return entry.result, false
	}
	if !wasFilled && lr.GetStatus() == domain.LegStatusFilled {
		metrics.LegsFilled.Inc()
		o.publish(entry.result, domain.EventTypeLegFilled, legID)
	}

	o.recalc(entry)

	// 迟到成交改写了已落库的执行结果，重新持久化避免快照陈旧
	entry.mu.Lock()
	settled := !entry.result.EndTime.IsZero()
	entry.mu.Unlock()
	if settled && o.repo != nil {
		if err := o.repo.Save(context.Background(), entry.result); err != nil {
			o.logger.Error("failed to persist late fill", "execution_id", executionID, "error", err)
		}
	}
	return entry.result, true
}

// CancelExecution 取消执行：标记 CANCELLED 并尽力撤掉未终态的腿。
// 幂等；已终态时为空操作。未知 ID 返回 false。
func (o *MultiLegExecutionOrchestrator) CancelExecution(executionID string) bool {
	entry := o.lookup(executionID)
	if entry == nil {
		return false
	}
	o.cancelEntry(entry, "execution cancelled by request")
	return true
}

// GetExecutionStatus 查询执行结果，未知 ID 返回 nil
func (o *MultiLegExecutionOrchestrator) GetExecutionStatus(executionID string) *domain.MultiLegExecutionResult {
	entry := o.lookup(executionID)
	if entry == nil {
		return nil
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.result
}

// ListActiveExecutions 列出所有未终态执行
func (o *MultiLegExecutionOrchestrator) ListActiveExecutions() []*domain.MultiLegExecutionResult {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*domain.MultiLegExecutionResult, 0)
	for _, entry := range o.registry {
		entry.mu.Lock()
		if !entry.result.Status.IsTerminal() {
			out = append(out, entry.result)
		}
		entry.mu.Unlock()
	}
	return out
}

func (o *MultiLegExecutionOrchestrator) register(result *domain.MultiLegExecutionResult, cancel context.CancelFunc) *executionEntry {
	entry := &executionEntry{result: result, cancelCtx: cancel}
	o.mu.Lock()
	o.registry[result.ID] = entry
	o.mu.Unlock()
	return entry
}

func (o *MultiLegExecutionOrchestrator) lookup(executionID string) *executionEntry {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.registry[executionID]
}

func (o *MultiLegExecutionOrchestrator) appendLeg(entry *executionEntry, leg *strategydomain.StrategyLeg) *domain.LegExecutionResult {
	lr := domain.NewLegExecutionResult(leg)
	entry.mu.Lock()
	entry.result.LegResults = append(entry.result.LegResults, lr)
	entry.mu.Unlock()
	return lr
}

func (o *MultiLegExecutionOrchestrator) isTerminal(entry *executionEntry) bool {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.cancelled || entry.failed || entry.result.Status.IsTerminal()
}

func (o *MultiLegExecutionOrchestrator) recalc(entry *executionEntry) {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.result.Status.IsTerminal() {
		return
	}
	entry.result.Recalculate(entry.cancelled, entry.failed)
}

// cancelEntry 超时与显式取消共用的取消路径。
// 不等待在途腿；场所侧撤单失败一律吞掉，本地状态为准。
func (o *MultiLegExecutionOrchestrator) cancelEntry(entry *executionEntry, reason string) {
	entry.mu.Lock()
	if entry.result.Status.IsTerminal() {
		entry.mu.Unlock()
		return
	}
	entry.cancelled = true
	if entry.result.ErrorMessage == "" {
		entry.result.ErrorMessage = reason
	}
	legs := make([]*domain.LegExecutionResult, len(entry.result.LegResults))
	copy(legs, entry.result.LegResults)
	cancel := entry.cancelCtx
	entry.mu.Unlock()

	for _, lr := range legs {
		if lr.Cancel() && lr.BrokerOrderID != "" {
			ctx, done := context.WithTimeout(context.Background(), 2*time.Second)
			_ = o.gateway.Cancel(ctx, lr.BrokerOrderID)
			done()
		}
	}

	entry.mu.Lock()
	entry.result.Recalculate(true, entry.failed)
	if entry.result.EndTime.IsZero() {
		entry.result.EndTime = time.Now()
	}
	entry.mu.Unlock()

	// 清掉截止定时器，防止重复触发
	if cancel != nil {
		cancel()
	}
	o.publish(entry.result, domain.EventTypeExecutionCancelled, "")
}

// finish 终态落库、发事件、记指标
func (o *MultiLegExecutionOrchestrator) finish(ctx context.Context, result *domain.MultiLegExecutionResult) {
	metrics.ExecutionsFinished.WithLabelValues(string(result.Status)).Inc()
	if !result.StartTime.IsZero() && !result.EndTime.IsZero() {
		metrics.ExecutionDuration.Observe(result.EndTime.Sub(result.StartTime).Seconds())
	}

	switch result.Status {
	case domain.ExecutionStatusCompleted, domain.ExecutionStatusPartial:
		o.publish(result, domain.EventTypeExecutionCompleted, "")
	case domain.ExecutionStatusFailed:
		o.publish(result, domain.EventTypeExecutionFailed, "")
	}

	if o.repo != nil {
		if err := o.repo.Save(context.WithoutCancel(ctx), result); err != nil {
			o.logger.Error("failed to persist execution result", "execution_id", result.ID, "error", err)
		}
	}
}

func (o *MultiLegExecutionOrchestrator) publish(result *domain.MultiLegExecutionResult, eventType, legID string) {
	if o.events == nil {
		return
	}
	event := &domain.ExecutionEvent{
		EventID:     fmt.Sprintf("EVT-%d", idgen.GenID()),
		EventType:   eventType,
		ExecutionID: result.ID,
		StrategyID:  result.StrategyID,
		Status:      result.Status,
		LegID:       legID,
		FilledLegs:  result.FilledLegs,
		TotalLegs:   result.TotalLegs,
		NetPremium:  result.NetPremium,
		Message:     result.ErrorMessage,
		OccurredAt:  time.Now(),
	}
	if err := o.events.PublishExecutionEvent(event); err != nil {
		o.logger.Warn("failed to publish execution event", "execution_id", result.ID, "event_type", eventType, "error", err)
	}
}

func preflight(strategy *strategydomain.Strategy) []string {
	errs := make([]string, 0)
	if len(strategy.Legs) == 0 {
		errs = append(errs, "strategy has no legs")
	}
	for i, leg := range strategy.Legs {
		if leg.Symbol == "" {
			errs = append(errs, fmt.Sprintf("leg %d: symbol is required", i+1))
		}
		if !leg.Quantity.IsPositive() {
			errs = append(errs, fmt.Sprintf("leg %d: quantity must be positive", i+1))
		}
		if leg.OrderType == strategydomain.OrderTypeLimit {
			if !leg.LimitPrice.IsPositive() {
				errs = append(errs, fmt.Sprintf("leg %d: limit order requires a positive limit price", i+1))
			}
		} else if !leg.MarketPrice.IsPositive() {
			errs = append(errs, fmt.Sprintf("leg %d: market order requires a positive market price", i+1))
		}
	}
	return errs
}
