package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RiskLevel 风险等级
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelMedium   RiskLevel = "MEDIUM"
	RiskLevelHigh     RiskLevel = "HIGH"
	RiskLevelCritical RiskLevel = "CRITICAL"
)

// RiskAssessment 策略风险评估
type RiskAssessment struct {
	RiskLevel         RiskLevel       `json:"risk_level"`
	MarginRequirement decimal.Decimal `json:"margin_requirement"`
	LiquidityRisk     RiskLevel       `json:"liquidity_risk"`
	TimeDecayRisk     RiskLevel       `json:"time_decay_risk"`
	VolatilityRisk    RiskLevel       `json:"volatility_risk"`
}

// ValidationResult 策略校验结果
type ValidationResult struct {
	IsValid        bool            `json:"is_valid"`
	Errors         []string        `json:"errors"`
	Warnings       []string        `json:"warnings"`
	RiskAssessment *RiskAssessment `json:"risk_assessment"`
}

// 风险等级的最大亏损阈值
var (
	maxLossLowThreshold    = decimal.NewFromInt(1000)
	maxLossMediumThreshold = decimal.NewFromInt(5000)
	maxLossHighThreshold   = decimal.NewFromInt(20000)
	marginMultiplier       = decimal.NewFromFloat(1.2)
)

// StrategyValidator 策略结构与风险校验，纯函数，不修改策略
type StrategyValidator struct{}

func NewStrategyValidator() *StrategyValidator {
	return &StrategyValidator{}
}

// Validate 结构校验加风险评估。调用方需保证聚合指标已重算。
func (v *StrategyValidator) Validate(strategy *Strategy) *ValidationResult {
	result := &ValidationResult{
		Errors:   make([]string, 0),
		Warnings: make([]string, 0),
	}

	if strategy.Underlying == "" {
		result.Errors = append(result.Errors, "underlying is required")
	}
	if len(strategy.Legs) == 0 {
		result.Errors = append(result.Errors, "strategy must have at least one leg")
	}

	for i, leg := range strategy.Legs {
		if leg.Symbol == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("leg %d: symbol is required", i+1))
		}
		if !leg.Quantity.IsPositive() {
			result.Errors = append(result.Errors, fmt.Sprintf("leg %d: quantity must be positive", i+1))
		}
		if leg.IsOption() && !leg.HasOptionFields() {
			result.Errors = append(result.Errors, fmt.Sprintf("leg %d: option leg requires strike price, option type and expiry date", i+1))
		}
		if leg.OrderType == OrderTypeLimit && !leg.LimitPrice.IsPositive() {
			result.Errors = append(result.Errors, fmt.Sprintf("leg %d: limit order requires a positive limit price", i+1))
		}
		if leg.MarketPrice.IsZero() {
			result.Warnings = append(result.Warnings, fmt.Sprintf("leg %d: no market price, aggregates may be stale", i+1))
		}
	}

	if strategy.MaxLossUnlimited {
		result.Warnings = append(result.Warnings, "strategy carries unlimited downside risk")
	}
	if strategy.DaysToExpiry > 0 && strategy.DaysToExpiry <= 7 {
		result.Warnings = append(result.Warnings, "nearest leg expires within 7 days")
	}

	result.RiskAssessment = v.assessRisk(strategy)
	result.IsValid = len(result.Errors) == 0
	return result
}

func (v *StrategyValidator) assessRisk(strategy *Strategy) *RiskAssessment {
	assessment := &RiskAssessment{
		RiskLevel:      RiskLevelLow,
		LiquidityRisk:  RiskLevelLow,
		TimeDecayRisk:  RiskLevelLow,
		VolatilityRisk: RiskLevelLow,
	}

	switch {
	case strategy.MaxLossUnlimited:
		assessment.RiskLevel = RiskLevelCritical
	case strategy.MaxLoss.GreaterThan(maxLossHighThreshold):
		assessment.RiskLevel = RiskLevelCritical
	case strategy.MaxLoss.GreaterThan(maxLossMediumThreshold):
		assessment.RiskLevel = RiskLevelHigh
	case strategy.MaxLoss.GreaterThan(maxLossLowThreshold):
		assessment.RiskLevel = RiskLevelMedium
	}

	if !strategy.MaxLossUnlimited {
		assessment.MarginRequirement = strategy.MaxLoss.Mul(marginMultiplier)
	}

	if strategy.NetGreeks != nil {
		theta := strategy.NetGreeks.Theta.Abs()
		switch {
		case theta.GreaterThan(decimal.NewFromInt(50)):
			assessment.TimeDecayRisk = RiskLevelHigh
		case theta.GreaterThan(decimal.NewFromInt(10)):
			assessment.TimeDecayRisk = RiskLevelMedium
		}

		vega := strategy.NetGreeks.Vega.Abs()
		switch {
		case vega.GreaterThan(decimal.NewFromInt(100)):
			assessment.VolatilityRisk = RiskLevelHigh
		case vega.GreaterThan(decimal.NewFromInt(20)):
			assessment.VolatilityRisk = RiskLevelMedium
		}
	}

	// 腿数越多，逐腿成交的流动性风险越高
	switch {
	case len(strategy.Legs) >= 4:
		assessment.LiquidityRisk = RiskLevelHigh
	case len(strategy.Legs) >= 3:
		assessment.LiquidityRisk = RiskLevelMedium
	}

	return assessment
}
