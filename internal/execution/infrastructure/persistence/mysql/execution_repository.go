// Package mysql 提供执行结果审计仓储的 MySQL GORM 实现。
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

	"github.com/wyfcoding/strategytrading/internal/execution/domain"
	"github.com/wyfcoding/strategytrading/pkg/logger"
)

// ExecutionModel 执行结果数据库模型，腿明细以 JSON 存储
type ExecutionModel struct {
	gorm.Model
	ExecutionID  string     `gorm:"column:execution_id;type:varchar(32);uniqueIndex;not null"`
	StrategyID   string     `gorm:"column:strategy_id;type:varchar(32);index;not null"`
	Status       string     `gorm:"column:status;type:varchar(20);index;not null"`
	FilledLegs   int        `gorm:"column:filled_legs;not null"`
	TotalLegs    int        `gorm:"column:total_legs;not null"`
	NetPremium   string     `gorm:"column:net_premium;type:decimal(32,18);not null"`
	LegResults   string     `gorm:"column:leg_results;type:json"`
	StartTime    time.Time  `gorm:"column:start_time;type:datetime;not null"`
	EndTime      *time.Time `gorm:"column:end_time;type:datetime"`
	ErrorMessage string     `gorm:"column:error_message;type:varchar(512)"`
}

// TableName 指定表名
func (ExecutionModel) TableName() string {
	return "strategy_executions"
}

type executionRepositoryImpl struct {
	db *gorm.DB
}

// NewExecutionRepository 创建执行审计仓储实例
func NewExecutionRepository(db *gorm.DB) domain.ExecutionRepository {
	return &executionRepositoryImpl{db: db}
}

// Save 实现 domain.ExecutionRepository.Save
func (r *executionRepositoryImpl) Save(ctx context.Context, result *domain.MultiLegExecutionResult) error {
	model, err := r.fromDomain(result)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "execution_id"}},
		UpdateAll: true,
	}).Create(model).Error
	if err != nil {
		logger.Error(ctx, "execution_repository.Save failed", "execution_id", result.ID, "error", err)
		return fmt.Errorf("failed to save execution: %w", err)
	}
	return nil
}

// FindByID 实现 domain.ExecutionRepository.FindByID，未找到返回 (nil, nil)
func (r *executionRepositoryImpl) FindByID(ctx context.Context, id string) (*domain.MultiLegExecutionResult, error) {
	var model ExecutionModel
	if err := r.db.WithContext(ctx).Where("execution_id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.Error(ctx, "execution_repository.FindByID failed", "execution_id", id, "error", err)
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return r.toDomain(&model)
}

// FindByStrategyID 实现 domain.ExecutionRepository.FindByStrategyID
func (r *executionRepositoryImpl) FindByStrategyID(ctx context.Context, strategyID string) ([]*domain.MultiLegExecutionResult, error) {
	var models []ExecutionModel
	if err := r.db.WithContext(ctx).Where("strategy_id = ?", strategyID).Order("start_time desc").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list executions for strategy %s: %w", strategyID, err)
	}
	return r.toDomainList(models)
}

// FindRecent 实现 domain.ExecutionRepository.FindRecent
func (r *executionRepositoryImpl) FindRecent(ctx context.Context, limit int) ([]*domain.MultiLegExecutionResult, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []ExecutionModel
	if err := r.db.WithContext(ctx).Order("start_time desc").Limit(limit).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list recent executions: %w", err)
	}
	return r.toDomainList(models)
}

func (r *executionRepositoryImpl) fromDomain(result *domain.MultiLegExecutionResult) (*ExecutionModel, error) {
	legs, err := json.Marshal(result.LegResults)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal leg results: %w", err)
	}
	model := &ExecutionModel{
		ExecutionID:  result.ID,
		StrategyID:   result.StrategyID,
		Status:       string(result.Status),
		FilledLegs:   result.FilledLegs,
		TotalLegs:    result.TotalLegs,
		NetPremium:   result.NetPremium.String(),
		LegResults:   string(legs),
		StartTime:    result.StartTime,
		ErrorMessage: result.ErrorMessage,
	}
	if !result.EndTime.IsZero() {
		end := result.EndTime
		model.EndTime = &end
	}
	return model, nil
}

func (r *executionRepositoryImpl) toDomain(model *ExecutionModel) (*domain.MultiLegExecutionResult, error) {
	netPremium, err := decimal.NewFromString(model.NetPremium)
	if err != nil {
		return nil, fmt.Errorf("invalid net premium %q: %w", model.NetPremium, err)
	}

	var legs []*domain.LegExecutionResult
	if model.LegResults != "" {
		if err := json.Unmarshal([]byte(model.LegResults), &legs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal leg results: %w", err)
		}
	}

	result := &domain.MultiLegExecutionResult{
		ID:           model.ExecutionID,
		StrategyID:   model.StrategyID,
		Status:       domain.ExecutionStatus(model.Status),
		LegResults:   legs,
		FilledLegs:   model.FilledLegs,
		TotalLegs:    model.TotalLegs,
		NetPremium:   netPremium,
		StartTime:    model.StartTime,
		ErrorMessage: model.ErrorMessage,
	}
	if model.EndTime != nil {
		result.EndTime = *model.EndTime
	}
	return result, nil
}

func (r *executionRepositoryImpl) toDomainList(models []ExecutionModel) ([]*domain.MultiLegExecutionResult, error) {
	out := make([]*domain.MultiLegExecutionResult, 0, len(models))
	for i := range models {
		result, err := r.toDomain(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, result)
	}
	return out, nil
}
