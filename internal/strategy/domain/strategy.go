package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/idgen"
)

var (
	ErrTemplateNotFound   = errors.New("strategy template not found")
	ErrStrategyNotFound   = errors.New("strategy not found")
	ErrLegNotFound        = errors.New("strategy leg not found")
	ErrEmptyStrategy      = errors.New("strategy has no legs")
	ErrInvalidQuantity    = errors.New("leg quantity must be positive")
	ErrInvalidTransition  = errors.New("invalid strategy status transition")
	ErrMissingOptionField = errors.New("option leg missing strike, option type or expiry")
)

type InstrumentType string

const (
	InstrumentTypeOption InstrumentType = "OPTION"
	InstrumentTypeFuture InstrumentType = "FUTURE"
	InstrumentTypeStock  InstrumentType = "STOCK"
)

type LegAction string

const (
	LegActionBuy  LegAction = "BUY"
	LegActionSell LegAction = "SELL"
)

type OptionType string

const (
	OptionTypeCall OptionType = "CALL"
	OptionTypePut  OptionType = "PUT"
)

type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

type StrategyType string

const (
	StrategyTypeBullCallSpread StrategyType = "BULL_CALL_SPREAD"
	StrategyTypeBearPutSpread  StrategyType = "BEAR_PUT_SPREAD"
	StrategyTypeStraddle       StrategyType = "STRADDLE"
	StrategyTypeStrangle       StrategyType = "STRANGLE"
	StrategyTypeIronCondor     StrategyType = "IRON_CONDOR"
	StrategyTypeIronButterfly  StrategyType = "IRON_BUTTERFLY"
	StrategyTypeCoveredCall    StrategyType = "COVERED_CALL"
	StrategyTypeProtectivePut  StrategyType = "PROTECTIVE_PUT"
	StrategyTypeButterfly      StrategyType = "BUTTERFLY"
	StrategyTypeCollar         StrategyType = "COLLAR"
	StrategyTypeCustom         StrategyType = "CUSTOM"
)

type StrategyStatus string

const (
	StrategyStatusDraft     StrategyStatus = "DRAFT"
	StrategyStatusValidated StrategyStatus = "VALIDATED"
	StrategyStatusExecuted  StrategyStatus = "EXECUTED"
	StrategyStatusClosed    StrategyStatus = "CLOSED"
)

// Greeks 期权敏感度指标
type Greeks struct {
	Delta decimal.Decimal `json:"delta"`
	Gamma decimal.Decimal `json:"gamma"`
	Theta decimal.Decimal `json:"theta"`
	Vega  decimal.Decimal `json:"vega"`
	Rho   decimal.Decimal `json:"rho"`
}

func NewGreeks() *Greeks {
	return &Greeks{
		Delta: decimal.Zero,
		Gamma: decimal.Zero,
		Theta: decimal.Zero,
		Vega:  decimal.Zero,
		Rho:   decimal.Zero,
	}
}

func (g *Greeks) Add(other *Greeks) *Greeks {
	return &Greeks{
		Delta: g.Delta.Add(other.Delta),
		Gamma: g.Gamma.Add(other.Gamma),
		Theta: g.Theta.Add(other.Theta),
		Vega:  g.Vega.Add(other.Vega),
		Rho:   g.Rho.Add(other.Rho),
	}
}

func (g *Greeks) Multiply(factor decimal.Decimal) *Greeks {
	return &Greeks{
		Delta: g.Delta.Mul(factor),
		Gamma: g.Gamma.Mul(factor),
		Theta: g.Theta.Mul(factor),
		Vega:  g.Vega.Mul(factor),
		Rho:   g.Rho.Mul(factor),
	}
}

// StrategyLeg 策略中的单条腿
type StrategyLeg struct {
	ID             string          `json:"id"`
	InstrumentType InstrumentType  `json:"instrument_type"`
	Symbol         string          `json:"symbol"`
	Underlying     string          `json:"underlying"`
	Action         LegAction       `json:"action"`
	Quantity       decimal.Decimal `json:"quantity"`
	StrikePrice    decimal.Decimal `json:"strike_price,omitempty"`
	OptionType     OptionType      `json:"option_type,omitempty"`
	ExpiryDate     time.Time       `json:"expiry_date,omitempty"`
	OrderType      OrderType       `json:"order_type"`
	LimitPrice     decimal.Decimal `json:"limit_price,omitempty"`
	MarketPrice    decimal.Decimal `json:"market_price"`
	Ratio          int             `json:"ratio"`
	Greeks         *Greeks         `json:"greeks,omitempty"`
}

func NewStrategyLeg(instrumentType InstrumentType, symbol, underlying string, action LegAction, quantity decimal.Decimal) *StrategyLeg {
	return &StrategyLeg{
		ID:             fmt.Sprintf("LEG-%d", idgen.GenID()),
		InstrumentType: instrumentType,
		Symbol:         symbol,
		Underlying:     underlying,
		Action:         action,
		Quantity:       quantity,
		OrderType:      OrderTypeMarket,
		Ratio:          1,
	}
}

// SignFactor 买入为 +1，卖出为 -1
func (l *StrategyLeg) SignFactor() decimal.Decimal {
	if l.Action == LegActionBuy {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(-1)
}

// IsOption 是否为期权腿
func (l *StrategyLeg) IsOption() bool {
	return l.InstrumentType == InstrumentTypeOption
}

// HasOptionFields 期权腿必填字段是否完整
func (l *StrategyLeg) HasOptionFields() bool {
	return l.StrikePrice.IsPositive() && (l.OptionType == OptionTypeCall || l.OptionType == OptionTypePut) && !l.ExpiryDate.IsZero()
}

// IntrinsicValue 期权到期内在价值
func (l *StrategyLeg) IntrinsicValue(spotPrice decimal.Decimal) decimal.Decimal {
	if !l.IsOption() {
		return spotPrice
	}
	var intrinsic decimal.Decimal
	if l.OptionType == OptionTypeCall {
		intrinsic = spotPrice.Sub(l.StrikePrice)
	} else {
		intrinsic = l.StrikePrice.Sub(spotPrice)
	}
	if intrinsic.IsNegative() {
		return decimal.Zero
	}
	return intrinsic
}

// Moneyness 期权虚实程度：正值为实值，负值为虚值
func (l *StrategyLeg) Moneyness(spotPrice decimal.Decimal) decimal.Decimal {
	if !l.IsOption() || l.StrikePrice.IsZero() {
		return decimal.Zero
	}
	if l.OptionType == OptionTypeCall {
		return spotPrice.Sub(l.StrikePrice).Div(l.StrikePrice)
	}
	return l.StrikePrice.Sub(spotPrice).Div(l.StrikePrice)
}

// ExpiryPayoff 该腿到期时的盈亏（相对建仓权利金）
func (l *StrategyLeg) ExpiryPayoff(spotPrice decimal.Decimal) decimal.Decimal {
	entry := l.MarketPrice
	value := l.IntrinsicValue(spotPrice)
	if !l.IsOption() {
		value = spotPrice
	}
	perUnit := value.Sub(entry)
	return perUnit.Mul(l.Quantity).Mul(decimal.NewFromInt(int64(l.Ratio))).Mul(l.SignFactor())
}

func (l *StrategyLeg) clone() *StrategyLeg {
	c := *l
	if l.Greeks != nil {
		g := *l.Greeks
		c.Greeks = &g
	}
	return &c
}

// Strategy 多腿策略聚合根。聚合指标由 Recompute 从腿列表推导，腿变更后必须重算。
type Strategy struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Type                StrategyType    `json:"type"`
	Underlying          string          `json:"underlying"`
	Legs                []*StrategyLeg  `json:"legs"`
	NetPremium          decimal.Decimal `json:"net_premium"`
	MaxProfit           decimal.Decimal `json:"max_profit"`
	MaxProfitUnlimited  bool            `json:"max_profit_unlimited"`
	MaxLoss             decimal.Decimal `json:"max_loss"`
	MaxLossUnlimited    bool            `json:"max_loss_unlimited"`
	BreakevenPoints     []decimal.Decimal `json:"breakeven_points"`
	NetGreeks           *Greeks         `json:"net_greeks"`
	MarginRequired      decimal.Decimal `json:"margin_required"`
	RiskRewardRatio     decimal.Decimal `json:"risk_reward_ratio"`
	ProbabilityOfProfit decimal.Decimal `json:"probability_of_profit"`
	DaysToExpiry        int             `json:"days_to_expiry"`
	Status              StrategyStatus  `json:"status"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func NewStrategy(name string, strategyType StrategyType, underlying string) *Strategy {
	return &Strategy{
		ID:         fmt.Sprintf("STRAT-%d", idgen.GenID()),
		Name:       name,
		Type:       strategyType,
		Underlying: underlying,
		Legs:       make([]*StrategyLeg, 0),
		NetGreeks:  NewGreeks(),
		Status:     StrategyStatusDraft,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

func (s *Strategy) clone() *Strategy {
	c := *s
	c.Legs = make([]*StrategyLeg, 0, len(s.Legs))
	for _, leg := range s.Legs {
		c.Legs = append(c.Legs, leg.clone())
	}
	c.BreakevenPoints = append([]decimal.Decimal(nil), s.BreakevenPoints...)
	if s.NetGreeks != nil {
		g := *s.NetGreeks
		c.NetGreeks = &g
	}
	return &c
}

// AddLeg 返回追加一条腿并重算聚合指标后的新策略
func (s *Strategy) AddLeg(leg *StrategyLeg) *Strategy {
	c := s.clone()
	c.Legs = append(c.Legs, leg.clone())
	c.Recompute()
	return c
}

// RemoveLeg 返回删除指定腿并重算聚合指标后的新策略
func (s *Strategy) RemoveLeg(legID string) (*Strategy, error) {
	c := s.clone()
	idx := -1
	for i, leg := range c.Legs {
		if leg.ID == legID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrLegNotFound
	}
	c.Legs = append(c.Legs[:idx], c.Legs[idx+1:]...)
	c.Recompute()
	return c, nil
}

// UpdateLeg 返回替换指定腿并重算聚合指标后的新策略
func (s *Strategy) UpdateLeg(legID string, updated *StrategyLeg) (*Strategy, error) {
	c := s.clone()
	for i, leg := range c.Legs {
		if leg.ID == legID {
			replacement := updated.clone()
			replacement.ID = legID
			c.Legs[i] = replacement
			c.Recompute()
			return c, nil
		}
	}
	return nil, ErrLegNotFound
}

// GetLeg 按 ID 查找腿，未找到返回 nil
func (s *Strategy) GetLeg(legID string) *StrategyLeg {
	for _, leg := range s.Legs {
		if leg.ID == legID {
			return leg
		}
	}
	return nil
}

// MarkValidated 空腿策略不允许离开草稿状态
func (s *Strategy) MarkValidated() error {
	if len(s.Legs) == 0 {
		return ErrEmptyStrategy
	}
	if s.Status != StrategyStatusDraft && s.Status != StrategyStatusValidated {
		return ErrInvalidTransition
	}
	s.Status = StrategyStatusValidated
	s.UpdatedAt = time.Now()
	return nil
}

func (s *Strategy) MarkExecuted() error {
	if s.Status != StrategyStatusValidated {
		return ErrInvalidTransition
	}
	s.Status = StrategyStatusExecuted
	s.UpdatedAt = time.Now()
	return nil
}

func (s *Strategy) MarkClosed() error {
	if s.Status != StrategyStatusExecuted {
		return ErrInvalidTransition
	}
	s.Status = StrategyStatusClosed
	s.UpdatedAt = time.Now()
	return nil
}

// Recompute 重算全部派生聚合指标
func (s *Strategy) Recompute() {
	s.NetPremium = decimal.Zero
	netGreeks := NewGreeks()
	nearestExpiry := time.Time{}

	for _, leg := range s.Legs {
		// 买入付出权利金为负，卖出收取为正
		premium := leg.MarketPrice.Mul(leg.Quantity).Mul(decimal.NewFromInt(int64(leg.Ratio)))
		s.NetPremium = s.NetPremium.Add(premium.Mul(leg.SignFactor().Neg()))

		if leg.Greeks != nil {
			scaled := leg.Greeks.Multiply(leg.Quantity.Mul(leg.SignFactor()))
			netGreeks = netGreeks.Add(scaled)
		}
		if leg.IsOption() && !leg.ExpiryDate.IsZero() {
			if nearestExpiry.IsZero() || leg.ExpiryDate.Before(nearestExpiry) {
				nearestExpiry = leg.ExpiryDate
			}
		}
	}
	s.NetGreeks = netGreeks

	if nearestExpiry.IsZero() {
		s.DaysToExpiry = 0
	} else {
		days := int(time.Until(nearestExpiry).Hours() / 24)
		if days < 0 {
			days = 0
		}
		s.DaysToExpiry = days
	}

	s.recomputePayoffProfile()

	s.MarginRequired = decimal.Zero
	if !s.MaxLossUnlimited && s.MaxLoss.IsPositive() {
		s.MarginRequired = s.MaxLoss.Mul(decimal.NewFromFloat(1.2))
	}

	s.RiskRewardRatio = decimal.Zero
	if !s.MaxProfitUnlimited && !s.MaxLossUnlimited && s.MaxLoss.IsPositive() {
		s.RiskRewardRatio = s.MaxProfit.Div(s.MaxLoss)
	}

	// 简化的风险中性估计：以盈亏幅度占比近似盈利概率
	s.ProbabilityOfProfit = decimal.NewFromFloat(0.5)
	if !s.MaxProfitUnlimited && !s.MaxLossUnlimited {
		total := s.MaxProfit.Add(s.MaxLoss)
		if total.IsPositive() {
			s.ProbabilityOfProfit = s.MaxLoss.Div(total)
		}
	}

	s.UpdatedAt = time.Now()
}

// recomputePayoffProfile 基于到期收益的分段线性结构求最大盈亏与盈亏平衡点。
// 采样点取 0、各行权价与 2 倍最高行权价；超出最高采样点后的斜率决定是否无界。
func (s *Strategy) recomputePayoffProfile() {
	s.MaxProfit = decimal.Zero
	s.MaxProfitUnlimited = false
	s.MaxLoss = decimal.Zero
	s.MaxLossUnlimited = false
	s.BreakevenPoints = nil

	if len(s.Legs) == 0 {
		return
	}

	grid := s.payoffGrid()
	if len(grid) < 2 {
		return
	}

	payoffAt := func(price decimal.Decimal) decimal.Decimal {
		total := decimal.Zero
		for _, leg := range s.Legs {
			total = total.Add(leg.ExpiryPayoff(price))
		}
		return total
	}

	payoffs := make([]decimal.Decimal, len(grid))
	for i, p := range grid {
		payoffs[i] = payoffAt(p)
	}

	maxP := payoffs[0]
	minP := payoffs[0]
	for _, p := range payoffs[1:] {
		if p.GreaterThan(maxP) {
			maxP = p
		}
		if p.LessThan(minP) {
			minP = p
		}
	}

	// 最高采样点之后的走势
	last := grid[len(grid)-1]
	step := last.Mul(decimal.NewFromFloat(0.01))
	if step.IsZero() {
		step = decimal.NewFromInt(1)
	}
	tailSlope := payoffAt(last.Add(step)).Sub(payoffs[len(payoffs)-1])
	if tailSlope.IsPositive() {
		s.MaxProfitUnlimited = true
	} else if tailSlope.IsNegative() {
		s.MaxLossUnlimited = true
	}

	if !s.MaxProfitUnlimited {
		s.MaxProfit = maxP
		if s.MaxProfit.IsNegative() {
			s.MaxProfit = decimal.Zero
		}
	}
	if !s.MaxLossUnlimited {
		s.MaxLoss = minP.Neg()
		if s.MaxLoss.IsNegative() {
			s.MaxLoss = decimal.Zero
		}
	}

	// 相邻采样点之间的符号翻转即为盈亏平衡点
	for i := 1; i < len(grid); i++ {
		p1, p2 := payoffs[i-1], payoffs[i]
		if p1.IsZero() {
			s.BreakevenPoints = append(s.BreakevenPoints, grid[i-1])
			continue
		}
		if p1.Sign() != p2.Sign() && !p2.IsZero() {
			// 线性插值
			x1, x2 := grid[i-1], grid[i]
			dx := x2.Sub(x1)
			dp := p2.Sub(p1)
			be := x1.Sub(p1.Mul(dx).Div(dp))
			s.BreakevenPoints = append(s.BreakevenPoints, be)
		}
	}
	if len(payoffs) > 0 && payoffs[len(payoffs)-1].IsZero() {
		s.BreakevenPoints = append(s.BreakevenPoints, grid[len(grid)-1])
	}
}

func (s *Strategy) payoffGrid() []decimal.Decimal {
	maxStrike := decimal.Zero
	strikes := make([]decimal.Decimal, 0, len(s.Legs))
	for _, leg := range s.Legs {
		ref := leg.StrikePrice
		if !leg.IsOption() {
			ref = leg.MarketPrice
		}
		if ref.IsPositive() {
			strikes = append(strikes, ref)
			if ref.GreaterThan(maxStrike) {
				maxStrike = ref
			}
		}
	}
	if maxStrike.IsZero() {
		return nil
	}

	grid := []decimal.Decimal{decimal.Zero}
	grid = append(grid, strikes...)
	grid = append(grid, maxStrike.Mul(decimal.NewFromInt(2)))

	// 升序去重
	for i := 1; i < len(grid); i++ {
		for j := i; j > 0 && grid[j].LessThan(grid[j-1]); j-- {
			grid[j], grid[j-1] = grid[j-1], grid[j]
		}
	}
	dedup := grid[:1]
	for _, p := range grid[1:] {
		if !p.Equal(dedup[len(dedup)-1]) {
			dedup = append(dedup, p)
		}
	}
	return dedup
}
