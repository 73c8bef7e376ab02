package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// StrikePolicy 模板腿的行权价选取方式
type StrikePolicy string

const (
	StrikePolicyATM StrikePolicy = "ATM"
	StrikePolicyITM StrikePolicy = "ITM"
	StrikePolicyOTM StrikePolicy = "OTM"
)

// LegTemplate 策略模板中的一条腿
type LegTemplate struct {
	InstrumentType InstrumentType
	Action         LegAction
	OptionType     OptionType
	StrikePolicy   StrikePolicy
	StrikeOffset   int
	Ratio          int
}

// StrategyTemplate 预置策略模板
type StrategyTemplate struct {
	Type        StrategyType
	Name        string
	Description string
	Legs        []LegTemplate
}

// StrategyCatalog 预置策略目录，负责把模板实例化为具体策略
type StrategyCatalog struct {
	templates map[StrategyType]StrategyTemplate
}

// DefaultExpiryDays 模板腿的默认到期天数
const DefaultExpiryDays = 30

func NewStrategyCatalog() *StrategyCatalog {
	c := &StrategyCatalog{templates: make(map[StrategyType]StrategyTemplate)}
	for _, t := range builtinTemplates() {
		c.templates[t.Type] = t
	}
	return c
}

// Templates 返回全部可用模板
func (c *StrategyCatalog) Templates() []StrategyTemplate {
	out := make([]StrategyTemplate, 0, len(c.templates))
	for _, t := range c.templates {
		out = append(out, t)
	}
	return out
}

// GetTemplate 按类型查找模板
func (c *StrategyCatalog) GetTemplate(strategyType StrategyType) (StrategyTemplate, bool) {
	t, ok := c.templates[strategyType]
	return t, ok
}

// BuildFromTemplate 按模板构建具体策略。
// 行权价按 ATM 价格对齐到行权价间隔，ITM/OTM 按偏移档位加减；
// 到期日为 30 天后，市价单，每腿一手。
func (c *StrategyCatalog) BuildFromTemplate(strategyType StrategyType, underlying string, atmPrice, strikeInterval decimal.Decimal) (*Strategy, error) {
	template, ok := c.templates[strategyType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, strategyType)
	}

	strategy := NewStrategy(template.Name, strategyType, underlying)
	expiry := time.Now().AddDate(0, 0, DefaultExpiryDays)

	for _, lt := range template.Legs {
		strike := ResolveStrike(lt, atmPrice, strikeInterval)
		leg := NewStrategyLeg(lt.InstrumentType, optionSymbol(underlying, lt.OptionType, strike, expiry), underlying, lt.Action, decimal.NewFromInt(1))
		leg.Ratio = lt.Ratio
		if lt.InstrumentType == InstrumentTypeOption {
			leg.StrikePrice = strike
			leg.OptionType = lt.OptionType
			leg.ExpiryDate = expiry
		} else {
			leg.Symbol = underlying
			leg.MarketPrice = atmPrice
		}
		strategy.Legs = append(strategy.Legs, leg)
	}

	strategy.Recompute()
	return strategy, nil
}

// BuildCustom 创建自定义空策略
func (c *StrategyCatalog) BuildCustom(name, underlying string) *Strategy {
	if name == "" {
		name = "Custom Strategy"
	}
	return NewStrategy(name, StrategyTypeCustom, underlying)
}

// ResolveStrike 解析模板腿的行权价。
// ATM 对齐到最近的行权价间隔；OTM 看涨向上偏移、看跌向下偏移，ITM 方向相反。
func ResolveStrike(lt LegTemplate, atmPrice, strikeInterval decimal.Decimal) decimal.Decimal {
	if strikeInterval.IsZero() {
		strikeInterval = decimal.NewFromInt(1)
	}
	atm := atmPrice.Div(strikeInterval).Round(0).Mul(strikeInterval)
	if lt.StrikePolicy == StrikePolicyATM || lt.StrikeOffset == 0 {
		return atm
	}

	offset := strikeInterval.Mul(decimal.NewFromInt(int64(lt.StrikeOffset)))
	outward := lt.OptionType == OptionTypeCall
	if lt.StrikePolicy == StrikePolicyITM {
		outward = !outward
	}
	if outward {
		return atm.Add(offset)
	}
	return atm.Sub(offset)
}

func optionSymbol(underlying string, optionType OptionType, strike decimal.Decimal, expiry time.Time) string {
	suffix := "C"
	if optionType == OptionTypePut {
		suffix = "P"
	}
	return fmt.Sprintf("%s-%s-%s%s", underlying, expiry.Format("20060102"), strike.StringFixed(0), suffix)
}

func builtinTemplates() []StrategyTemplate {
	return []StrategyTemplate{
		{
			Type:        StrategyTypeBullCallSpread,
			Name:        "Bull Call Spread",
			Description: "买入低行权价看涨，卖出高行权价看涨，看温和上涨",
			Legs: []LegTemplate{
				{InstrumentType: InstrumentTypeOption, Action: LegActionBuy, OptionType: OptionTypeCall, StrikePolicy: StrikePolicyATM, Ratio: 1},
				{InstrumentType: InstrumentTypeOption, Action: LegActionSell, OptionType: OptionTypeCall, StrikePolicy: StrikePolicyOTM, StrikeOffset: 2, Ratio: 1},
			},
		},
		{
			Type:        StrategyTypeBearPutSpread,
			Name:        "Bear Put Spread",
			Description: "买入高行权价看跌，卖出低行权价看跌，看温和下跌",
			Legs: []LegTemplate{
				{InstrumentType: InstrumentTypeOption, Action: LegActionBuy, OptionType: OptionTypePut, StrikePolicy: StrikePolicyATM, Ratio: 1},
				{InstrumentType: InstrumentTypeOption, Action: LegActionSell, OptionType: OptionTypePut, StrikePolicy: StrikePolicyOTM, StrikeOffset: 2, Ratio: 1},
			},
		},
		{
			Type:        StrategyTypeStraddle,
			Name:        "Long Straddle",
			Description: "同行权价同时买入看涨和看跌，押注大幅波动",
			Legs: []LegTemplate{
				{InstrumentType: InstrumentTypeOption, Action: LegActionBuy, OptionType: OptionTypeCall, StrikePolicy: StrikePolicyATM, Ratio: 1},
				{InstrumentType: InstrumentTypeOption, Action: LegActionBuy, OptionType: OptionTypePut, StrikePolicy: StrikePolicyATM, Ratio: 1},
			},
		},
		{
			Type:        StrategyTypeStrangle,
			Name:        "Long Strangle",
			Description: "买入虚值看涨和虚值看跌，低成本押注大幅波动",
			Legs: []LegTemplate{
				{InstrumentType: InstrumentTypeOption, Action: LegActionBuy, OptionType: OptionTypeCall, StrikePolicy: StrikePolicyOTM, StrikeOffset: 2, Ratio: 1},
				{InstrumentType: InstrumentTypeOption, Action: LegActionBuy, OptionType: OptionTypePut, StrikePolicy: StrikePolicyOTM, StrikeOffset: 2, Ratio: 1},
			},
		},
		{
			Type:        StrategyTypeIronCondor,
			Name:        "Iron Condor",
			Description: "卖出虚值宽跨式并买入更虚值的保护腿，收取权利金",
			Legs: []LegTemplate{
				{InstrumentType: InstrumentTypeOption, Action: LegActionSell, OptionType: OptionTypePut, StrikePolicy: StrikePolicyOTM, StrikeOffset: 2, Ratio: 1},
				{InstrumentType: InstrumentTypeOption, Action: LegActionBuy, OptionType: OptionTypePut, StrikePolicy: StrikePolicyOTM, StrikeOffset: 4, Ratio: 1},
				{InstrumentType: InstrumentTypeOption, Action: LegActionSell, OptionType: OptionTypeCall, StrikePolicy: StrikePolicyOTM, StrikeOffset: 2, Ratio: 1},
				{InstrumentType: InstrumentTypeOption, Action: LegActionBuy, OptionType: OptionTypeCall, StrikePolicy: StrikePolicyOTM, StrikeOffset: 4, Ratio: 1},
			},
		},
		{
			Type:        StrategyTypeIronButterfly,
			Name:        "Iron Butterfly",
			Description: "平值卖出跨式并买入两侧保护腿",
			Legs: []LegTemplate{
				{InstrumentType: InstrumentTypeOption, Action: LegActionSell, OptionType: OptionTypeCall, StrikePolicy: StrikePolicyATM, Ratio: 1},
				{InstrumentType: InstrumentTypeOption, Action: LegActionSell, OptionType: OptionTypePut, StrikePolicy: StrikePolicyATM, Ratio: 1},
				{InstrumentType: InstrumentTypeOption, Action: LegActionBuy, OptionType: OptionTypeCall, StrikePolicy: StrikePolicyOTM, StrikeOffset: 2, Ratio: 1},
				{InstrumentType: InstrumentTypeOption, Action: LegActionBuy, OptionType: OptionTypePut, StrikePolicy: StrikePolicyOTM, StrikeOffset: 2, Ratio: 1},
			},
		},
		{
			Type:        StrategyTypeCoveredCall,
			Name:        "Covered Call",
			Description: "持有标的并卖出虚值看涨增强收益",
			Legs: []LegTemplate{
				{InstrumentType: InstrumentTypeStock, Action: LegActionBuy, Ratio: 1},
				{InstrumentType: InstrumentTypeOption, Action: LegActionSell, OptionType: OptionTypeCall, StrikePolicy: StrikePolicyOTM, StrikeOffset: 2, Ratio: 1},
			},
		},
		{
			Type:        StrategyTypeProtectivePut,
			Name:        "Protective Put",
			Description: "持有标的并买入虚值看跌对冲下行",
			Legs: []LegTemplate{
				{InstrumentType: InstrumentTypeStock, Action: LegActionBuy, Ratio: 1},
				{InstrumentType: InstrumentTypeOption, Action: LegActionBuy, OptionType: OptionTypePut, StrikePolicy: StrikePolicyOTM, StrikeOffset: 2, Ratio: 1},
			},
		},
		{
			Type:        StrategyTypeButterfly,
			Name:        "Long Call Butterfly",
			Description: "买入两翼看涨并双倍卖出中间行权价看涨",
			Legs: []LegTemplate{
				{InstrumentType: InstrumentTypeOption, Action: LegActionBuy, OptionType: OptionTypeCall, StrikePolicy: StrikePolicyITM, StrikeOffset: 2, Ratio: 1},
				{InstrumentType: InstrumentTypeOption, Action: LegActionSell, OptionType: OptionTypeCall, StrikePolicy: StrikePolicyATM, Ratio: 2},
				{InstrumentType: InstrumentTypeOption, Action: LegActionBuy, OptionType: OptionTypeCall, StrikePolicy: StrikePolicyOTM, StrikeOffset: 2, Ratio: 1},
			},
		},
		{
			Type:        StrategyTypeCollar,
			Name:        "Collar",
			Description: "持有标的，买入看跌保护并卖出看涨抵消成本",
			Legs: []LegTemplate{
				{InstrumentType: InstrumentTypeStock, Action: LegActionBuy, Ratio: 1},
				{InstrumentType: InstrumentTypeOption, Action: LegActionBuy, OptionType: OptionTypePut, StrikePolicy: StrikePolicyOTM, StrikeOffset: 2, Ratio: 1},
				{InstrumentType: InstrumentTypeOption, Action: LegActionSell, OptionType: OptionTypeCall, StrikePolicy: StrikePolicyOTM, StrikeOffset: 2, Ratio: 1},
			},
		},
	}
}
