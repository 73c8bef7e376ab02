// Package pricing 提供基于 Black-Scholes 的定价适配器。
package pricing

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/strategytrading/internal/position/domain"
	strategydomain "github.com/wyfcoding/strategytrading/internal/strategy/domain"
)

// QuoteSource 现货报价来源
type QuoteSource interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// BlackScholesPricingService 以 Black-Scholes 模型实现定价边界接口。
// 现货价来自注入的 QuoteSource，期权价与希腊字母由模型推算。
type BlackScholesPricingService struct {
	quotes       QuoteSource
	riskFreeRate float64
	volatility   float64
}

func NewBlackScholesPricingService(quotes QuoteSource, riskFreeRate, volatility float64) *BlackScholesPricingService {
	if volatility <= 0 {
		volatility = 0.3
	}
	return &BlackScholesPricingService{
		quotes:       quotes,
		riskFreeRate: riskFreeRate,
		volatility:   volatility,
	}
}

// CurrentPrice 实现 domain.PricingService.CurrentPrice。
// 期权符号（UND-YYYYMMDD-<strike>C|P）按模型推算理论价，其余符号透传报价源。
func (s *BlackScholesPricingService) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if opt, ok := parseOptionSymbol(symbol); ok {
		spot, err := s.quotes.GetPrice(ctx, opt.underlying)
		if err != nil {
			return decimal.Zero, fmt.Errorf("quote source failed for %s: %w", opt.underlying, err)
		}
		if theoretical := s.OptionPrice(opt.optionType, spot, opt.strike, opt.expiry); theoretical.IsPositive() {
			return theoretical, nil
		}
		// 已到期只剩内在价值
		return intrinsicValue(opt.optionType, spot, opt.strike), nil
	}

	price, err := s.quotes.GetPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("quote source failed for %s: %w", symbol, err)
	}
	return price, nil
}

type optionSymbol struct {
	underlying string
	optionType strategydomain.OptionType
	strike     decimal.Decimal
	expiry     time.Time
}

// parseOptionSymbol 解析目录生成的期权符号，无法解析时按普通符号处理
func parseOptionSymbol(symbol string) (optionSymbol, bool) {
	parts := strings.Split(symbol, "-")
	if len(parts) < 3 {
		return optionSymbol{}, false
	}

	expiry, err := time.Parse("20060102", parts[len(parts)-2])
	if err != nil {
		return optionSymbol{}, false
	}

	last := parts[len(parts)-1]
	if len(last) < 2 {
		return optionSymbol{}, false
	}
	var optionType strategydomain.OptionType
	switch last[len(last)-1] {
	case 'C':
		optionType = strategydomain.OptionTypeCall
	case 'P':
		optionType = strategydomain.OptionTypePut
	default:
		return optionSymbol{}, false
	}
	strike, err := decimal.NewFromString(last[:len(last)-1])
	if err != nil || !strike.IsPositive() {
		return optionSymbol{}, false
	}

	return optionSymbol{
		underlying: strings.Join(parts[:len(parts)-2], "-"),
		optionType: optionType,
		strike:     strike,
		expiry:     expiry,
	}, true
}

func intrinsicValue(optionType strategydomain.OptionType, spot, strike decimal.Decimal) decimal.Decimal {
	var value decimal.Decimal
	if optionType == strategydomain.OptionTypeCall {
		value = spot.Sub(strike)
	} else {
		value = strike.Sub(spot)
	}
	if value.IsNegative() {
		return decimal.Zero
	}
	return value
}

// OptionGreeks 实现 domain.PricingService.OptionGreeks
func (s *BlackScholesPricingService) OptionGreeks(_ context.Context, _ string, strike decimal.Decimal, optionType strategydomain.OptionType, expiry time.Time, underlyingPrice decimal.Decimal) (*strategydomain.Greeks, error) {
	spot, _ := underlyingPrice.Float64()
	k, _ := strike.Float64()
	if spot <= 0 || k <= 0 {
		return strategydomain.NewGreeks(), nil
	}

	yearsToExpiry := time.Until(expiry).Hours() / 24 / 365
	if yearsToExpiry <= 0 {
		// 已到期：只剩内在价值的方向敞口
		greeks := strategydomain.NewGreeks()
		if optionType == strategydomain.OptionTypeCall && spot > k {
			greeks.Delta = decimal.NewFromInt(1)
		}
		if optionType == strategydomain.OptionTypePut && spot < k {
			greeks.Delta = decimal.NewFromInt(-1)
		}
		return greeks, nil
	}

	result := calculate(optionType, spot, k, yearsToExpiry, s.riskFreeRate, s.volatility)
	return result, nil
}

// OptionPrice 按模型推算期权理论价
func (s *BlackScholesPricingService) OptionPrice(optionType strategydomain.OptionType, spot, strike decimal.Decimal, expiry time.Time) decimal.Decimal {
	sf, _ := spot.Float64()
	kf, _ := strike.Float64()
	yearsToExpiry := time.Until(expiry).Hours() / 24 / 365
	if sf <= 0 || kf <= 0 || yearsToExpiry <= 0 {
		return decimal.Zero
	}
	return price(optionType, sf, kf, yearsToExpiry, s.riskFreeRate, s.volatility)
}

func calculate(optionType strategydomain.OptionType, spot, strike, t, r, v float64) *strategydomain.Greeks {
	d1 := (math.Log(spot/strike) + (r+0.5*v*v)*t) / (v * math.Sqrt(t))
	d2 := d1 - v*math.Sqrt(t)

	gamma := normPdf(d1) / (spot * v * math.Sqrt(t))
	vega := spot * math.Sqrt(t) * normPdf(d1) / 100

	var delta, theta, rho float64
	if optionType == strategydomain.OptionTypeCall {
		delta = normCdf(d1)
		theta = (-spot*normPdf(d1)*v/(2*math.Sqrt(t)) - r*strike*math.Exp(-r*t)*normCdf(d2)) / 365
		rho = strike * t * math.Exp(-r*t) * normCdf(d2) / 100
	} else {
		delta = normCdf(d1) - 1
		theta = (-spot*normPdf(d1)*v/(2*math.Sqrt(t)) + r*strike*math.Exp(-r*t)*normCdf(-d2)) / 365
		rho = -strike * t * math.Exp(-r*t) * normCdf(-d2) / 100
	}

	return &strategydomain.Greeks{
		Delta: decimal.NewFromFloat(delta),
		Gamma: decimal.NewFromFloat(gamma),
		Theta: decimal.NewFromFloat(theta),
		Vega:  decimal.NewFromFloat(vega),
		Rho:   decimal.NewFromFloat(rho),
	}
}

func price(optionType strategydomain.OptionType, spot, strike, t, r, v float64) decimal.Decimal {
	d1 := (math.Log(spot/strike) + (r+0.5*v*v)*t) / (v * math.Sqrt(t))
	d2 := d1 - v*math.Sqrt(t)

	var p float64
	if optionType == strategydomain.OptionTypeCall {
		p = spot*normCdf(d1) - strike*math.Exp(-r*t)*normCdf(d2)
	} else {
		p = strike*math.Exp(-r*t)*normCdf(-d2) - spot*normCdf(-d1)
	}
	return decimal.NewFromFloat(p)
}

// normCdf 标准正态分布累积分布函数
func normCdf(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// normPdf 标准正态分布概率密度函数
func normPdf(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

var _ domain.PricingService = (*BlackScholesPricingService)(nil)
