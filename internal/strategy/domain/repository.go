package domain

import "context"

// StrategyRepository 策略持久化接口
type StrategyRepository interface {
	Save(ctx context.Context, strategy *Strategy) error
	FindByID(ctx context.Context, id string) (*Strategy, error)
	FindByUnderlying(ctx context.Context, underlying string) ([]*Strategy, error)
	FindAll(ctx context.Context, limit, offset int) ([]*Strategy, error)
	Delete(ctx context.Context, id string) error
}
