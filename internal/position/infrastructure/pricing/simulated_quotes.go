package pricing

import (
	"context"
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"
)

// SimulatedQuoteSource 随机游走的模拟报价源，用于开发与演示环境
type SimulatedQuoteSource struct {
	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]decimal.Decimal
	base   decimal.Decimal
}

func NewSimulatedQuoteSource(seed int64) *SimulatedQuoteSource {
	return &SimulatedQuoteSource{
		rng:    rand.New(rand.NewSource(seed)),
		prices: make(map[string]decimal.Decimal),
		base:   decimal.NewFromInt(100),
	}
}

// SetPrice 预置某个符号的价格
func (s *SimulatedQuoteSource) SetPrice(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

// GetPrice 取价并施加 ±0.5% 随机游走
func (s *SimulatedQuoteSource) GetPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.prices[symbol]
	if !ok {
		last = s.base
	}
	drift := decimal.NewFromFloat(1 + (s.rng.Float64()-0.5)*0.01)
	next := last.Mul(drift)
	s.prices[symbol] = next
	return next, nil
}
