package domain

import "context"

// ExecutionRepository 执行结果审计持久化接口
type ExecutionRepository interface {
	Save(ctx context.Context, result *MultiLegExecutionResult) error
	FindByID(ctx context.Context, id string) (*MultiLegExecutionResult, error)
	FindByStrategyID(ctx context.Context, strategyID string) ([]*MultiLegExecutionResult, error)
	FindRecent(ctx context.Context, limit int) ([]*MultiLegExecutionResult, error)
}
