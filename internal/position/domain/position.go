package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/idgen"

	executiondomain "github.com/wyfcoding/strategytrading/internal/execution/domain"
	strategydomain "github.com/wyfcoding/strategytrading/internal/strategy/domain"
)

var (
	ErrPositionNotFound    = errors.New("position not found")
	ErrIncompleteExecution = errors.New("cannot create position from incomplete execution")
	ErrNoFilledLegs        = errors.New("execution has no filled legs")
	ErrPositionClosed      = errors.New("position already closed")
)

type PositionStatus string

const (
	PositionStatusActive   PositionStatus = "ACTIVE"
	PositionStatusClosed   PositionStatus = "CLOSED"
	PositionStatusExpired  PositionStatus = "EXPIRED"
	PositionStatusAssigned PositionStatus = "ASSIGNED"
)

// StrategyLegPosition 持仓中的单腿
type StrategyLegPosition struct {
	LegID          string                        `json:"leg_id"`
	InstrumentType strategydomain.InstrumentType `json:"instrument_type"`
	Symbol         string                        `json:"symbol"`
	Action         strategydomain.LegAction      `json:"action"`
	Quantity       decimal.Decimal               `json:"quantity"`
	EntryPrice     decimal.Decimal               `json:"entry_price"`
	CurrentPrice   decimal.Decimal               `json:"current_price"`
	PnL            decimal.Decimal               `json:"pnl"`
	Greeks         *strategydomain.Greeks        `json:"greeks,omitempty"`
	StrikePrice    decimal.Decimal               `json:"strike_price,omitempty"`
	OptionType     strategydomain.OptionType     `json:"option_type,omitempty"`
	ExpiryDate     time.Time                     `json:"expiry_date,omitempty"`
	VenueID        string                        `json:"venue_id,omitempty"`
	VenueOrderID   string                        `json:"venue_order_id,omitempty"`
}

// SignFactor 买入为 +1，卖出为 -1
func (lp *StrategyLegPosition) SignFactor() decimal.Decimal {
	if lp.Action == strategydomain.LegActionBuy {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(-1)
}

// IsOption 是否为期权腿
func (lp *StrategyLegPosition) IsOption() bool {
	return lp.InstrumentType == strategydomain.InstrumentTypeOption
}

// PerformanceMetrics 持仓绩效指标快照，每次刷新重算
type PerformanceMetrics struct {
	ROI                   decimal.Decimal `json:"roi"`
	AnnualizedReturn      decimal.Decimal `json:"annualized_return"`
	DaysHeld              int             `json:"days_held"`
	MaxFavorableExcursion decimal.Decimal `json:"max_favorable_excursion"`
	MaxAdverseExcursion   decimal.Decimal `json:"max_adverse_excursion"`
	CurrentReturn         decimal.Decimal `json:"current_return"`
	ThetaDecayToDate      decimal.Decimal `json:"theta_decay_to_date"`
	VolatilityImpact      decimal.Decimal `json:"volatility_impact"`
	NetDeltaExposure      decimal.Decimal `json:"net_delta_exposure"`
}

// StrategyPosition 策略持仓聚合根。
// 不变式：TotalPnL = UnrealizedPnL + RealizedPnL；平仓后 UnrealizedPnL 恒为零。
type StrategyPosition struct {
	ID              string                 `json:"id"`
	StrategyID      string                 `json:"strategy_id"`
	StrategyName    string                 `json:"strategy_name"`
	StrategyType    strategydomain.StrategyType `json:"strategy_type"`
	Underlying      string                 `json:"underlying"`
	Legs            []*StrategyLegPosition `json:"legs"`
	NetPremium      decimal.Decimal        `json:"net_premium"`
	CurrentValue    decimal.Decimal        `json:"current_value"`
	UnrealizedPnL   decimal.Decimal        `json:"unrealized_pnl"`
	RealizedPnL     decimal.Decimal        `json:"realized_pnl"`
	TotalPnL        decimal.Decimal        `json:"total_pnl"`
	MaxProfit       decimal.Decimal        `json:"max_profit"`
	MaxLoss         decimal.Decimal        `json:"max_loss"`
	BreakevenPoints []decimal.Decimal      `json:"breakeven_points"`
	NetGreeks       *strategydomain.Greeks `json:"net_greeks"`
	DaysToExpiry    int                    `json:"days_to_expiry"`
	MarginUsed      decimal.Decimal        `json:"margin_used"`
	EntryDate       time.Time              `json:"entry_date"`
	LastUpdated     time.Time              `json:"last_updated"`
	ClosedAt        *time.Time             `json:"closed_at,omitempty"`
	Status          PositionStatus         `json:"status"`
	Metrics         *PerformanceMetrics    `json:"metrics"`
}

// NewPositionFromExecution 从已完成或部分成交的执行结果建仓。
// 仅成交数量大于零的腿进入持仓；建仓价为该腿成交均价。
func NewPositionFromExecution(strategy *strategydomain.Strategy, result *executiondomain.MultiLegExecutionResult) (*StrategyPosition, error) {
	if result.Status != executiondomain.ExecutionStatusCompleted && result.Status != executiondomain.ExecutionStatusPartial {
		return nil, fmt.Errorf("%w: execution %s is %s", ErrIncompleteExecution, result.ID, result.Status)
	}

	legs := make([]*StrategyLegPosition, 0, len(result.LegResults))
	for _, lr := range result.LegResults {
		if !lr.FilledQuantity.IsPositive() || lr.Leg == nil {
			continue
		}
		legs = append(legs, &StrategyLegPosition{
			LegID:          lr.LegID,
			InstrumentType: lr.Leg.InstrumentType,
			Symbol:         lr.Leg.Symbol,
			Action:         lr.Leg.Action,
			Quantity:       lr.FilledQuantity,
			EntryPrice:     lr.AvgFillPrice,
			CurrentPrice:   lr.AvgFillPrice,
			PnL:            decimal.Zero,
			StrikePrice:    lr.Leg.StrikePrice,
			OptionType:     lr.Leg.OptionType,
			ExpiryDate:     lr.Leg.ExpiryDate,
			VenueID:        lr.VenueID,
			VenueOrderID:   lr.BrokerOrderID,
		})
	}
	if len(legs) == 0 {
		return nil, ErrNoFilledLegs
	}

	now := time.Now()
	position := &StrategyPosition{
		ID:              fmt.Sprintf("POS-%d", idgen.GenID()),
		StrategyID:      strategy.ID,
		StrategyName:    strategy.Name,
		StrategyType:    strategy.Type,
		Underlying:      strategy.Underlying,
		Legs:            legs,
		NetPremium:      result.NetPremium,
		UnrealizedPnL:   decimal.Zero,
		RealizedPnL:     decimal.Zero,
		TotalPnL:        decimal.Zero,
		MaxProfit:       strategy.MaxProfit,
		MaxLoss:         strategy.MaxLoss,
		BreakevenPoints: append([]decimal.Decimal(nil), strategy.BreakevenPoints...),
		NetGreeks:       strategydomain.NewGreeks(),
		MarginUsed:      strategy.MarginRequired,
		EntryDate:       now,
		LastUpdated:     now,
		Status:          PositionStatusActive,
		Metrics:         &PerformanceMetrics{DaysHeld: 1},
	}
	position.refreshCurrentValue()
	return position, nil
}

// LegValuation 单腿的最新估值输入
type LegValuation struct {
	CurrentPrice decimal.Decimal
	Greeks       *strategydomain.Greeks
}

// ApplyValuation 用最新价格与希腊字母重估持仓。
// 平仓后的持仓不再重估，UnrealizedPnL 与 RealizedPnL 保持不变。
func (p *StrategyPosition) ApplyValuation(valuations map[string]LegValuation) {
	if p.Status == PositionStatusClosed {
		return
	}

	netGreeks := strategydomain.NewGreeks()
	for _, leg := range p.Legs {
		if v, ok := valuations[leg.LegID]; ok {
			if v.CurrentPrice.IsPositive() {
				leg.CurrentPrice = v.CurrentPrice
			}
			leg.Greeks = v.Greeks
		}
		// 买入腿涨则盈，卖出腿涨则亏
		leg.PnL = leg.CurrentPrice.Sub(leg.EntryPrice).Mul(leg.Quantity).Mul(leg.SignFactor())
		if leg.Greeks != nil {
			netGreeks = netGreeks.Add(leg.Greeks.Multiply(leg.Quantity.Mul(leg.SignFactor())))
		}
	}
	p.NetGreeks = netGreeks

	p.refreshCurrentValue()
	p.refreshExpiry()
	p.refreshMetrics()
	p.LastUpdated = time.Now()
}

// Close 平仓：未实现盈亏转入已实现，不变式 TotalPnL = Unrealized + Realized 保持成立
func (p *StrategyPosition) Close() error {
	if p.Status == PositionStatusClosed {
		return ErrPositionClosed
	}
	p.RealizedPnL = p.RealizedPnL.Add(p.UnrealizedPnL)
	p.UnrealizedPnL = decimal.Zero
	p.TotalPnL = p.RealizedPnL
	p.Status = PositionStatusClosed
	now := time.Now()
	p.ClosedAt = &now
	p.LastUpdated = now
	return nil
}

// MarkAssigned 期权被行权指派
func (p *StrategyPosition) MarkAssigned() {
	if p.Status == PositionStatusClosed {
		return
	}
	p.Status = PositionStatusAssigned
	p.LastUpdated = time.Now()
}

// IsActive 是否参与批量刷新
func (p *StrategyPosition) IsActive() bool {
	return p.Status == PositionStatusActive
}

func (p *StrategyPosition) refreshCurrentValue() {
	value := decimal.Zero
	unrealized := decimal.Zero
	for _, leg := range p.Legs {
		value = value.Add(leg.CurrentPrice.Mul(leg.Quantity).Mul(leg.SignFactor()))
		unrealized = unrealized.Add(leg.PnL)
	}
	p.CurrentValue = value
	p.UnrealizedPnL = unrealized
	p.TotalPnL = p.UnrealizedPnL.Add(p.RealizedPnL)
}

// refreshExpiry 取最近的腿到期日，无到期腿为 0，到期后转 EXPIRED
func (p *StrategyPosition) refreshExpiry() {
	nearest := time.Time{}
	for _, leg := range p.Legs {
		if leg.IsOption() && !leg.ExpiryDate.IsZero() {
			if nearest.IsZero() || leg.ExpiryDate.Before(nearest) {
				nearest = leg.ExpiryDate
			}
		}
	}
	if nearest.IsZero() {
		p.DaysToExpiry = 0
		return
	}

	days := int(time.Until(nearest).Hours() / 24)
	if days <= 0 {
		p.DaysToExpiry = 0
		if p.Status == PositionStatusActive && !time.Now().Before(nearest) {
			p.Status = PositionStatusExpired
		}
		return
	}
	p.DaysToExpiry = days
}

func (p *StrategyPosition) refreshMetrics() {
	if p.Metrics == nil {
		p.Metrics = &PerformanceMetrics{}
	}
	m := p.Metrics

	daysHeld := int(time.Since(p.EntryDate).Hours() / 24)
	if daysHeld < 1 {
		daysHeld = 1
	}
	m.DaysHeld = daysHeld

	basis := p.NetPremium.Abs()
	if basis.IsPositive() {
		hundred := decimal.NewFromInt(100)
		m.ROI = p.TotalPnL.Div(basis).Mul(hundred)
		m.CurrentReturn = p.UnrealizedPnL.Div(basis).Mul(hundred)
		m.AnnualizedReturn = m.ROI.Mul(decimal.NewFromInt(365)).Div(decimal.NewFromInt(int64(daysHeld)))
	} else {
		m.ROI = decimal.Zero
		m.CurrentReturn = decimal.Zero
		m.AnnualizedReturn = decimal.Zero
	}

	if p.UnrealizedPnL.GreaterThan(m.MaxFavorableExcursion) {
		m.MaxFavorableExcursion = p.UnrealizedPnL
	}
	if p.UnrealizedPnL.LessThan(m.MaxAdverseExcursion) {
		m.MaxAdverseExcursion = p.UnrealizedPnL
	}

	if p.NetGreeks != nil {
		m.ThetaDecayToDate = p.NetGreeks.Theta.Mul(decimal.NewFromInt(int64(daysHeld)))
		m.VolatilityImpact = p.NetGreeks.Vega
		m.NetDeltaExposure = p.NetGreeks.Delta
	}
}
