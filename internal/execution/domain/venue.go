package domain

import (
	"context"

	"github.com/shopspring/decimal"

	strategydomain "github.com/wyfcoding/strategytrading/internal/strategy/domain"
)

// ExecutionVenue 单腿单次执行时的候选场所报价，临时对象不落库
type ExecutionVenue struct {
	ID                   string          `json:"id"`
	Name                 string          `json:"name"`
	AvailableLiquidity   decimal.Decimal `json:"available_liquidity"`
	BidPrice             decimal.Decimal `json:"bid_price"`
	AskPrice             decimal.Decimal `json:"ask_price"`
	Spread               decimal.Decimal `json:"spread"`
	ExecutionProbability decimal.Decimal `json:"execution_probability"`
	EstimatedCost        decimal.Decimal `json:"estimated_cost"`
}

// QuotePrice 按买卖方向取对手价
func (v *ExecutionVenue) QuotePrice(action strategydomain.LegAction) decimal.Decimal {
	if action == strategydomain.LegActionBuy {
		return v.AskPrice
	}
	return v.BidPrice
}

// SelectBestVenue 选取成交概率最高的场所，概率相同时取价差最小者。
// 候选为空返回 nil。
func SelectBestVenue(venues []*ExecutionVenue) *ExecutionVenue {
	var best *ExecutionVenue
	for _, v := range venues {
		if best == nil {
			best = v
			continue
		}
		if v.ExecutionProbability.GreaterThan(best.ExecutionProbability) {
			best = v
			continue
		}
		if v.ExecutionProbability.Equal(best.ExecutionProbability) && v.Spread.LessThan(best.Spread) {
			best = v
		}
	}
	return best
}

// FilterByPriceTolerance 过滤对手价偏离参考价超过容忍度的场所。
// 参考价为零或容忍度为零时不过滤。
func FilterByPriceTolerance(venues []*ExecutionVenue, leg *strategydomain.StrategyLeg, tolerance decimal.Decimal) []*ExecutionVenue {
	reference := leg.MarketPrice
	if leg.OrderType == strategydomain.OrderTypeLimit && leg.LimitPrice.IsPositive() {
		reference = leg.LimitPrice
	}
	if !reference.IsPositive() || !tolerance.IsPositive() {
		return venues
	}

	maxDeviation := reference.Mul(tolerance)
	out := make([]*ExecutionVenue, 0, len(venues))
	for _, v := range venues {
		if v.QuotePrice(leg.Action).Sub(reference).Abs().LessThanOrEqual(maxDeviation) {
			out = append(out, v)
		}
	}
	return out
}

// FillResult 场所回报的下单结果
type FillResult struct {
	BrokerOrderID  string
	FilledQuantity decimal.Decimal
	FillPrice      decimal.Decimal
	Rejected       bool
	RejectReason   string
}

// VenueQuoteProvider 场所报价边界接口
type VenueQuoteProvider interface {
	Quote(ctx context.Context, leg *strategydomain.StrategyLeg) ([]*ExecutionVenue, error)
}

// VenueOrderGateway 场所下单边界接口。Cancel 为尽力而为，失败由调用方吞掉。
type VenueOrderGateway interface {
	Submit(ctx context.Context, leg *strategydomain.StrategyLeg, venue *ExecutionVenue, allowPartial bool) (*FillResult, error)
	Cancel(ctx context.Context, brokerOrderID string) error
}
