// Package mysql 提供持仓仓储接口的 MySQL GORM 实现。
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

	"github.com/wyfcoding/strategytrading/internal/position/domain"
	strategydomain "github.com/wyfcoding/strategytrading/internal/strategy/domain"
	"github.com/wyfcoding/strategytrading/pkg/logger"
)

// PositionModel 持仓数据库模型，腿与绩效指标以 JSON 存储
type PositionModel struct {
	gorm.Model
	PositionID    string     `gorm:"column:position_id;type:varchar(32);uniqueIndex;not null"`
	StrategyID    string     `gorm:"column:strategy_id;type:varchar(32);index;not null"`
	StrategyName  string     `gorm:"column:strategy_name;type:varchar(128);not null"`
	StrategyType  string     `gorm:"column:strategy_type;type:varchar(32);not null"`
	Underlying    string     `gorm:"column:underlying;type:varchar(20);index;not null"`
	Legs          string     `gorm:"column:legs;type:json"`
	NetPremium    string     `gorm:"column:net_premium;type:decimal(32,18);not null"`
	CurrentValue  string     `gorm:"column:current_value;type:decimal(32,18);not null"`
	UnrealizedPnL string     `gorm:"column:unrealized_pnl;type:decimal(32,18);not null"`
	RealizedPnL   string     `gorm:"column:realized_pnl;type:decimal(32,18);not null"`
	MarginUsed    string     `gorm:"column:margin_used;type:decimal(32,18);not null"`
	Aggregates    string     `gorm:"column:aggregates;type:json"`
	Metrics       string     `gorm:"column:metrics;type:json"`
	EntryDate     time.Time  `gorm:"column:entry_date;type:datetime;not null"`
	ClosedAt      *time.Time `gorm:"column:closed_at;type:datetime"`
	Status        string     `gorm:"column:status;type:varchar(20);index;not null"`
}

// TableName 指定表名
func (PositionModel) TableName() string {
	return "strategy_positions"
}

// positionAggregates 盈亏结构之外的派生字段打包
type positionAggregates struct {
	TotalPnL        decimal.Decimal        `json:"total_pnl"`
	MaxProfit       decimal.Decimal        `json:"max_profit"`
	MaxLoss         decimal.Decimal        `json:"max_loss"`
	BreakevenPoints []decimal.Decimal      `json:"breakeven_points"`
	NetGreeks       *strategydomain.Greeks `json:"net_greeks"`
	DaysToExpiry    int                    `json:"days_to_expiry"`
}

type positionRepositoryImpl struct {
	db *gorm.DB
}

// NewPositionRepository 创建持仓仓储实例
func NewPositionRepository(db *gorm.DB) domain.PositionRepository {
	return &positionRepositoryImpl{db: db}
}

// Save 实现 domain.PositionRepository.Save
func (r *positionRepositoryImpl) Save(ctx context.Context, position *domain.StrategyPosition) error {
	model, err := r.fromDomain(position)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "position_id"}},
		UpdateAll: true,
	}).Create(model).Error
	if err != nil {
		logger.Error(ctx, "position_repository.Save failed", "position_id", position.ID, "error", err)
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

// FindByID 实现 domain.PositionRepository.FindByID，未找到返回 (nil, nil)
func (r *positionRepositoryImpl) FindByID(ctx context.Context, id string) (*domain.StrategyPosition, error) {
	var model PositionModel
	if err := r.db.WithContext(ctx).Where("position_id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.Error(ctx, "position_repository.FindByID failed", "position_id", id, "error", err)
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return r.toDomain(&model)
}

// FindByStatus 实现 domain.PositionRepository.FindByStatus
func (r *positionRepositoryImpl) FindByStatus(ctx context.Context, status domain.PositionStatus) ([]*domain.StrategyPosition, error) {
	var models []PositionModel
	if err := r.db.WithContext(ctx).Where("status = ?", string(status)).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list positions by status: %w", err)
	}
	return r.toDomainList(models)
}

// FindAll 实现 domain.PositionRepository.FindAll
func (r *positionRepositoryImpl) FindAll(ctx context.Context, limit, offset int) ([]*domain.StrategyPosition, error) {
	if limit <= 0 {
		limit = 20
	}
	var models []PositionModel
	if err := r.db.WithContext(ctx).Order("entry_date desc").Limit(limit).Offset(offset).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	return r.toDomainList(models)
}

func (r *positionRepositoryImpl) fromDomain(position *domain.StrategyPosition) (*PositionModel, error) {
	legs, err := json.Marshal(position.Legs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal legs: %w", err)
	}
	aggregates, err := json.Marshal(positionAggregates{
		TotalPnL:        position.TotalPnL,
		MaxProfit:       position.MaxProfit,
		MaxLoss:         position.MaxLoss,
		BreakevenPoints: position.BreakevenPoints,
		NetGreeks:       position.NetGreeks,
		DaysToExpiry:    position.DaysToExpiry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal aggregates: %w", err)
	}
	metricsJSON, err := json.Marshal(position.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metrics: %w", err)
	}

	return &PositionModel{
		PositionID:    position.ID,
		StrategyID:    position.StrategyID,
		StrategyName:  position.StrategyName,
		StrategyType:  string(position.StrategyType),
		Underlying:    position.Underlying,
		Legs:          string(legs),
		NetPremium:    position.NetPremium.String(),
		CurrentValue:  position.CurrentValue.String(),
		UnrealizedPnL: position.UnrealizedPnL.String(),
		RealizedPnL:   position.RealizedPnL.String(),
		MarginUsed:    position.MarginUsed.String(),
		Aggregates:    string(aggregates),
		Metrics:       string(metricsJSON),
		EntryDate:     position.EntryDate,
		ClosedAt:      position.ClosedAt,
		Status:        string(position.Status),
	}, nil
}

func (r *positionRepositoryImpl) toDomain(model *PositionModel) (*domain.StrategyPosition, error) {
	netPremium, err := decimal.NewFromString(model.NetPremium)
	if err != nil {
		return nil, fmt.Errorf("invalid net premium %q: %w", model.NetPremium, err)
	}
	currentValue, err := decimal.NewFromString(model.CurrentValue)
	if err != nil {
		return nil, fmt.Errorf("invalid current value %q: %w", model.CurrentValue, err)
	}
	unrealized, err := decimal.NewFromString(model.UnrealizedPnL)
	if err != nil {
		return nil, fmt.Errorf("invalid unrealized pnl %q: %w", model.UnrealizedPnL, err)
	}
	realized, err := decimal.NewFromString(model.RealizedPnL)
	if err != nil {
		return nil, fmt.Errorf("invalid realized pnl %q: %w", model.RealizedPnL, err)
	}
	marginUsed, err := decimal.NewFromString(model.MarginUsed)
	if err != nil {
		return nil, fmt.Errorf("invalid margin %q: %w", model.MarginUsed, err)
	}

	var legs []*domain.StrategyLegPosition
	if model.Legs != "" {
		if err := json.Unmarshal([]byte(model.Legs), &legs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal legs: %w", err)
		}
	}
	var aggregates positionAggregates
	if model.Aggregates != "" {
		if err := json.Unmarshal([]byte(model.Aggregates), &aggregates); err != nil {
			return nil, fmt.Errorf("failed to unmarshal aggregates: %w", err)
		}
	}
	var perfMetrics domain.PerformanceMetrics
	if model.Metrics != "" {
		if err := json.Unmarshal([]byte(model.Metrics), &perfMetrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
	}

	position := &domain.StrategyPosition{
		ID:              model.PositionID,
		StrategyID:      model.StrategyID,
		StrategyName:    model.StrategyName,
		StrategyType:    strategydomain.StrategyType(model.StrategyType),
		Underlying:      model.Underlying,
		Legs:            legs,
		NetPremium:      netPremium,
		CurrentValue:    currentValue,
		UnrealizedPnL:   unrealized,
		RealizedPnL:     realized,
		TotalPnL:        aggregates.TotalPnL,
		MaxProfit:       aggregates.MaxProfit,
		MaxLoss:         aggregates.MaxLoss,
		BreakevenPoints: aggregates.BreakevenPoints,
		NetGreeks:       aggregates.NetGreeks,
		DaysToExpiry:    aggregates.DaysToExpiry,
		MarginUsed:      marginUsed,
		EntryDate:       model.EntryDate,
		LastUpdated:     model.UpdatedAt,
		ClosedAt:        model.ClosedAt,
		Status:          domain.PositionStatus(model.Status),
		Metrics:         &perfMetrics,
	}
	if position.NetGreeks == nil {
		position.NetGreeks = strategydomain.NewGreeks()
	}
	return position, nil
}

func (r *positionRepositoryImpl) toDomainList(models []PositionModel) ([]*domain.StrategyPosition, error) {
	out := make([]*domain.StrategyPosition, 0, len(models))
	for i := range models {
		position, err := r.toDomain(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, position)
	}
	return out, nil
}
