// Package mysql 提供策略仓储接口的 MySQL GORM 实现。
package mysql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/strategytrading/internal/strategy/domain"
	"github.com/wyfcoding/strategytrading/pkg/logger"
)

// StrategyModel 策略数据库模型，腿与派生指标以 JSON 存储
type StrategyModel struct {
	gorm.Model
	StrategyID     string    `gorm:"column:strategy_id;type:varchar(32);uniqueIndex;not null"`
	Name           string    `gorm:"column:name;type:varchar(128);not null"`
	Type           string    `gorm:"column:type;type:varchar(32);index;not null"`
	Underlying     string    `gorm:"column:underlying;type:varchar(20);index;not null"`
	Legs           string    `gorm:"column:legs;type:json"`
	NetPremium     string    `gorm:"column:net_premium;type:decimal(32,18);not null"`
	MarginRequired string    `gorm:"column:margin_required;type:decimal(32,18);not null"`
	Aggregates     string    `gorm:"column:aggregates;type:json"`
	Status         string    `gorm:"column:status;type:varchar(20);index;not null"`
	StrategyCreatedAt time.Time `gorm:"column:strategy_created_at;type:datetime;not null"`
}

// TableName 指定表名
func (StrategyModel) TableName() string {
	return "strategies"
}

// aggregateColumns 除净权利金和保证金外的派生指标打包结构
type aggregateColumns struct {
	MaxProfit           decimal.Decimal   `json:"max_profit"`
	MaxProfitUnlimited  bool              `json:"max_profit_unlimited"`
	MaxLoss             decimal.Decimal   `json:"max_loss"`
	MaxLossUnlimited    bool              `json:"max_loss_unlimited"`
	BreakevenPoints     []decimal.Decimal `json:"breakeven_points"`
	NetGreeks           *domain.Greeks    `json:"net_greeks"`
	RiskRewardRatio     decimal.Decimal   `json:"risk_reward_ratio"`
	ProbabilityOfProfit decimal.Decimal   `json:"probability_of_profit"`
	DaysToExpiry        int               `json:"days_to_expiry"`
}

type strategyRepositoryImpl struct {
	db *gorm.DB
}

// NewStrategyRepository 创建策略仓储实例
func NewStrategyRepository(db *gorm.DB) domain.StrategyRepository {
	return &strategyRepositoryImpl{db: db}
}

// Save 实现 domain.StrategyRepository.Save
func (r *strategyRepositoryImpl) Save(ctx context.Context, strategy *domain.Strategy) error {
	model, err := r.fromDomain(strategy)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "strategy_id"}},
		UpdateAll: true,
	}).Create(model).Error
	if err != nil {
		logger.Error(ctx, "strategy_repository.Save failed", "strategy_id", strategy.ID, "error", err)
		return fmt.Errorf("failed to save strategy: %w", err)
	}
	return nil
}

// FindByID 实现 domain.StrategyRepository.FindByID，未找到返回 (nil, nil)
func (r *strategyRepositoryImpl) FindByID(ctx context.Context, id string) (*domain.Strategy, error) {
	var model StrategyModel
	if err := r.db.WithContext(ctx).Where("strategy_id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.Error(ctx, "strategy_repository.FindByID failed", "strategy_id", id, "error", err)
		return nil, fmt.Errorf("failed to get strategy: %w", err)
	}
	return r.toDomain(&model)
}

// FindByUnderlying 实现 domain.StrategyRepository.FindByUnderlying
func (r *strategyRepositoryImpl) FindByUnderlying(ctx context.Context, underlying string) ([]*domain.Strategy, error) {
	var models []StrategyModel
	if err := r.db.WithContext(ctx).Where("underlying = ?", underlying).Order("created_at desc").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list strategies for %s: %w", underlying, err)
	}
	return r.toDomainList(models)
}

// FindAll 实现 domain.StrategyRepository.FindAll
func (r *strategyRepositoryImpl) FindAll(ctx context.Context, limit, offset int) ([]*domain.Strategy, error) {
	if limit <= 0 {
		limit = 20
	}
	var models []StrategyModel
	if err := r.db.WithContext(ctx).Order("created_at desc").Limit(limit).Offset(offset).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list strategies: %w", err)
	}
	return r.toDomainList(models)
}

// Delete 实现 domain.StrategyRepository.Delete
func (r *strategyRepositoryImpl) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("strategy_id = ?", id).Delete(&StrategyModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete strategy: %w", err)
	}
	return nil
}

func (r *strategyRepositoryImpl) fromDomain(strategy *domain.Strategy) (*StrategyModel, error) {
	legs, err := json.Marshal(strategy.Legs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal legs: %w", err)
	}
	aggregates, err := json.Marshal(aggregateColumns{
		MaxProfit:           strategy.MaxProfit,
		MaxProfitUnlimited:  strategy.MaxProfitUnlimited,
		MaxLoss:             strategy.MaxLoss,
		MaxLossUnlimited:    strategy.MaxLossUnlimited,
		BreakevenPoints:     strategy.BreakevenPoints,
		NetGreeks:           strategy.NetGreeks,
		RiskRewardRatio:     strategy.RiskRewardRatio,
		ProbabilityOfProfit: strategy.ProbabilityOfProfit,
		DaysToExpiry:        strategy.DaysToExpiry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal aggregates: %w", err)
	}

	return &StrategyModel{
		StrategyID:        strategy.ID,
		Name:              strategy.Name,
		Type:              string(strategy.Type),
		Underlying:        strategy.Underlying,
		Legs:              string(legs),
		NetPremium:        strategy.NetPremium.String(),
		MarginRequired:    strategy.MarginRequired.String(),
		Aggregates:        string(aggregates),
		Status:            string(strategy.Status),
		StrategyCreatedAt: strategy.CreatedAt,
	}, nil
}

func (r *strategyRepositoryImpl) toDomain(model *StrategyModel) (*domain.Strategy, error) {
	netPremium, err := decimal.NewFromString(model.NetPremium)
	if err != nil {
		return nil, fmt.Errorf("invalid net premium %q: %w", model.NetPremium, err)
	}
	marginRequired, err := decimal.NewFromString(model.MarginRequired)
	if err != nil {
		return nil, fmt.Errorf("invalid margin %q: %w", model.MarginRequired, err)
	}

	var legs []*domain.StrategyLeg
	if model.Legs != "" {
		if err := json.Unmarshal([]byte(model.Legs), &legs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal legs: %w", err)
		}
	}
	var aggregates aggregateColumns
	if model.Aggregates != "" {
		if err := json.Unmarshal([]byte(model.Aggregates), &aggregates); err != nil {
			return nil, fmt.Errorf("failed to unmarshal aggregates: %w", err)
		}
	}

	strategy := &domain.Strategy{
		ID:                  model.StrategyID,
		Name:                model.Name,
		Type:                domain.StrategyType(model.Type),
		Underlying:          model.Underlying,
		Legs:                legs,
		NetPremium:          netPremium,
		MaxProfit:           aggregates.MaxProfit,
		MaxProfitUnlimited:  aggregates.MaxProfitUnlimited,
		MaxLoss:             aggregates.MaxLoss,
		MaxLossUnlimited:    aggregates.MaxLossUnlimited,
		BreakevenPoints:     aggregates.BreakevenPoints,
		NetGreeks:           aggregates.NetGreeks,
		MarginRequired:      marginRequired,
		RiskRewardRatio:     aggregates.RiskRewardRatio,
		ProbabilityOfProfit: aggregates.ProbabilityOfProfit,
		DaysToExpiry:        aggregates.DaysToExpiry,
		Status:              domain.StrategyStatus(model.Status),
		CreatedAt:           model.StrategyCreatedAt,
		UpdatedAt:           model.UpdatedAt,
	}
	if strategy.NetGreeks == nil {
		strategy.NetGreeks = domain.NewGreeks()
	}
	return strategy, nil
}

func (r *strategyRepositoryImpl) toDomainList(models []StrategyModel) ([]*domain.Strategy, error) {
	out := make([]*domain.Strategy, 0, len(models))
	for i := range models {
		strategy, err := r.toDomain(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, strategy)
	}
	return out, nil
}
