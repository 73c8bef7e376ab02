// Package venue 提供模拟场所适配器，用于开发与演示环境。
// 生产环境应替换为具体券商的接入实现。
package venue

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/idgen"

	"github.com/wyfcoding/strategytrading/internal/execution/domain"
	strategydomain "github.com/wyfcoding/strategytrading/internal/strategy/domain"
)

var venueNames = []string{"Alpha Exchange", "Beta Markets", "Gamma Securities", "Delta Trading", "Epsilon Broker"}

// SimulatedQuoteProvider 围绕腿的参考价生成随机场所报价
type SimulatedQuoteProvider struct {
	mu         sync.Mutex
	rng        *rand.Rand
	venueCount int
}

func NewSimulatedQuoteProvider(venueCount int, seed int64) *SimulatedQuoteProvider {
	if venueCount <= 0 {
		venueCount = 3
	}
	return &SimulatedQuoteProvider{
		rng:        rand.New(rand.NewSource(seed)),
		venueCount: venueCount,
	}
}

func (p *SimulatedQuoteProvider) Quote(_ context.Context, leg *strategydomain.StrategyLeg) ([]*domain.ExecutionVenue, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	reference := leg.MarketPrice
	if !reference.IsPositive() {
		reference = decimal.NewFromInt(1)
	}

	venues := make([]*domain.ExecutionVenue, 0, p.venueCount)
	for i := 0; i < p.venueCount; i++ {
		// 报价围绕参考价 ±1% 波动，价差 0.1%-0.6%
		drift := decimal.NewFromFloat((p.rng.Float64() - 0.5) * 0.02)
		mid := reference.Mul(decimal.NewFromInt(1).Add(drift))
		halfSpread := reference.Mul(decimal.NewFromFloat(0.0005 + p.rng.Float64()*0.0025))

		venues = append(venues, &domain.ExecutionVenue{
			ID:                   fmt.Sprintf("SIM-V%d", i+1),
			Name:                 venueNames[i%len(venueNames)],
			AvailableLiquidity:   decimal.NewFromInt(int64(100 + p.rng.Intn(10000))),
			BidPrice:             mid.Sub(halfSpread),
			AskPrice:             mid.Add(halfSpread),
			Spread:               halfSpread.Mul(decimal.NewFromInt(2)),
			ExecutionProbability: decimal.NewFromFloat(0.6 + p.rng.Float64()*0.39),
			EstimatedCost:        mid.Mul(leg.Quantity),
		})
	}
	return venues, nil
}

// SimulatedOrderGateway 以可配置成功率模拟下单回报
type SimulatedOrderGateway struct {
	mu          sync.Mutex
	rng         *rand.Rand
	successRate float64
}

func NewSimulatedOrderGateway(successRate float64, seed int64) *SimulatedOrderGateway {
	if successRate <= 0 || successRate > 1 {
		successRate = 0.9
	}
	return &SimulatedOrderGateway{
		rng:         rand.New(rand.NewSource(seed)),
		successRate: successRate,
	}
}

func (g *SimulatedOrderGateway) Submit(ctx context.Context, leg *strategydomain.StrategyLeg, venue *domain.ExecutionVenue, allowPartial bool) (*domain.FillResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.rng.Float64() > g.successRate {
		return &domain.FillResult{
			Rejected:     true,
			RejectReason: "venue rejected order: insufficient liquidity",
		}, nil
	}

	quantity := leg.Quantity
	if allowPartial && g.rng.Float64() < 0.3 {
		// 模拟 50%-99% 的部分成交
		ratio := decimal.NewFromFloat(0.5 + g.rng.Float64()*0.49)
		quantity = leg.Quantity.Mul(ratio).Floor()
		if !quantity.IsPositive() {
			quantity = decimal.NewFromInt(1)
		}
	}

	return &domain.FillResult{
		BrokerOrderID:  fmt.Sprintf("SIMORD-%d", idgen.GenID()),
		FilledQuantity: quantity,
		FillPrice:      venue.QuotePrice(leg.Action),
	}, nil
}

func (g *SimulatedOrderGateway) Cancel(_ context.Context, _ string) error {
	return nil
}
