package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	strategydomain "github.com/wyfcoding/strategytrading/internal/strategy/domain"
)

// PricingService 外部定价边界接口。希腊字母仅对期权腿有意义。
type PricingService interface {
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	OptionGreeks(ctx context.Context, underlying string, strike decimal.Decimal, optionType strategydomain.OptionType, expiry time.Time, underlyingPrice decimal.Decimal) (*strategydomain.Greeks, error)
}
