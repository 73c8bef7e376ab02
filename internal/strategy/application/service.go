// Package application 策略上下文的应用服务层。
package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/strategytrading/internal/strategy/domain"
)

// LegInput 新增或更新腿的入参
type LegInput struct {
	InstrumentType string          `json:"instrument_type"`
	Symbol         string          `json:"symbol"`
	Action         string          `json:"action"`
	Quantity       decimal.Decimal `json:"quantity"`
	StrikePrice    decimal.Decimal `json:"strike_price"`
	OptionType     string          `json:"option_type"`
	ExpiryDate     time.Time       `json:"expiry_date"`
	OrderType      string          `json:"order_type"`
	LimitPrice     decimal.Decimal `json:"limit_price"`
	MarketPrice    decimal.Decimal `json:"market_price"`
	Ratio          int             `json:"ratio"`
}

func (in *LegInput) toLeg(underlying string) *domain.StrategyLeg {
	leg := domain.NewStrategyLeg(
		domain.InstrumentType(in.InstrumentType),
		in.Symbol,
		underlying,
		domain.LegAction(in.Action),
		in.Quantity,
	)
	leg.StrikePrice = in.StrikePrice
	leg.OptionType = domain.OptionType(in.OptionType)
	leg.ExpiryDate = in.ExpiryDate
	if in.OrderType != "" {
		leg.OrderType = domain.OrderType(in.OrderType)
	}
	leg.LimitPrice = in.LimitPrice
	leg.MarketPrice = in.MarketPrice
	if in.Ratio > 0 {
		leg.Ratio = in.Ratio
	}
	return leg
}

// StrategyService 策略应用服务
type StrategyService struct {
	catalog   *domain.StrategyCatalog
	validator *domain.StrategyValidator
	repo      domain.StrategyRepository
	logger    *slog.Logger
}

func NewStrategyService(repo domain.StrategyRepository, logger *slog.Logger) *StrategyService {
	return &StrategyService{
		catalog:   domain.NewStrategyCatalog(),
		validator: domain.NewStrategyValidator(),
		repo:      repo,
		logger:    logger,
	}
}

// ListTemplates 列出可用策略模板
func (s *StrategyService) ListTemplates() []domain.StrategyTemplate {
	return s.catalog.Templates()
}

// CreateFromTemplate 按模板创建策略
func (s *StrategyService) CreateFromTemplate(ctx context.Context, strategyType domain.StrategyType, underlying string, atmPrice, strikeInterval decimal.Decimal) (*domain.Strategy, error) {
	strategy, err := s.catalog.BuildFromTemplate(strategyType, underlying, atmPrice, strikeInterval)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, strategy); err != nil {
		return nil, fmt.Errorf("failed to save strategy: %w", err)
	}
	s.logger.Info("strategy created from template", "strategy_id", strategy.ID, "type", strategyType, "underlying", underlying)
	return strategy, nil
}

// CreateCustom 创建自定义空策略
func (s *StrategyService) CreateCustom(ctx context.Context, name, underlying string) (*domain.Strategy, error) {
	strategy := s.catalog.BuildCustom(name, underlying)
	if err := s.repo.Save(ctx, strategy); err != nil {
		return nil, fmt.Errorf("failed to save strategy: %w", err)
	}
	return strategy, nil
}

// AddLeg 追加一条腿并持久化重算后的策略
func (s *StrategyService) AddLeg(ctx context.Context, strategyID string, input LegInput) (*domain.Strategy, error) {
	strategy, err := s.load(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	updated := strategy.AddLeg(input.toLeg(strategy.Underlying))
	if err := s.repo.Save(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to save strategy: %w", err)
	}
	return updated, nil
}

// RemoveLeg 删除一条腿并持久化重算后的策略
func (s *StrategyService) RemoveLeg(ctx context.Context, strategyID, legID string) (*domain.Strategy, error) {
	strategy, err := s.load(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	updated, err := strategy.RemoveLeg(legID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to save strategy: %w", err)
	}
	return updated, nil
}

// UpdateLeg 更新一条腿并持久化重算后的策略
func (s *StrategyService) UpdateLeg(ctx context.Context, strategyID, legID string, input LegInput) (*domain.Strategy, error) {
	strategy, err := s.load(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	updated, err := strategy.UpdateLeg(legID, input.toLeg(strategy.Underlying))
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to save strategy: %w", err)
	}
	return updated, nil
}

// Validate 校验策略；通过时推进到 VALIDATED 状态
func (s *StrategyService) Validate(ctx context.Context, strategyID string) (*domain.ValidationResult, error) {
	strategy, err := s.load(ctx, strategyID)
	if err != nil {
		return nil, err
	}

	result := s.validator.Validate(strategy)
	if result.IsValid && strategy.Status == domain.StrategyStatusDraft {
		if err := strategy.MarkValidated(); err != nil {
			return nil, err
		}
		if err := s.repo.Save(ctx, strategy); err != nil {
			return nil, fmt.Errorf("failed to save strategy: %w", err)
		}
	}
	return result, nil
}

// Get 查询策略，未找到返回 (nil, nil)
func (s *StrategyService) Get(ctx context.Context, strategyID string) (*domain.Strategy, error) {
	return s.repo.FindByID(ctx, strategyID)
}

// List 分页列出策略
func (s *StrategyService) List(ctx context.Context, limit, offset int) ([]*domain.Strategy, error) {
	return s.repo.FindAll(ctx, limit, offset)
}

// ListByUnderlying 按标的列出策略
func (s *StrategyService) ListByUnderlying(ctx context.Context, underlying string) ([]*domain.Strategy, error) {
	return s.repo.FindByUnderlying(ctx, underlying)
}

func (s *StrategyService) load(ctx context.Context, strategyID string) (*domain.Strategy, error) {
	strategy, err := s.repo.FindByID(ctx, strategyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load strategy: %w", err)
	}
	if strategy == nil {
		return nil, domain.ErrStrategyNotFound
	}
	return strategy, nil
}
