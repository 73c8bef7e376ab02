package domain

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/idgen"

	strategydomain "github.com/wyfcoding/strategytrading/internal/strategy/domain"
)

var (
	ErrExecutionNotFound = errors.New("execution not found")
	ErrLegResultNotFound = errors.New("leg execution result not found")
	ErrExecutionTerminal = errors.New("execution already in terminal state")
	ErrInvalidFill       = errors.New("fill quantity must be positive")
	ErrNoVenuesAvailable = errors.New("no execution venues available")
	ErrStrategyNotViable = errors.New("strategy failed pre-execution validation")
)

type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "PENDING"
	ExecutionStatusPartial   ExecutionStatus = "PARTIAL"
	ExecutionStatusCompleted ExecutionStatus = "COMPLETED"
	ExecutionStatusFailed    ExecutionStatus = "FAILED"
	ExecutionStatusCancelled ExecutionStatus = "CANCELLED"
)

// IsTerminal 是否为终态
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	}
	return false
}

type LegStatus string

const (
	LegStatusPending   LegStatus = "PENDING"
	LegStatusPartial   LegStatus = "PARTIAL"
	LegStatusFilled    LegStatus = "FILLED"
	LegStatusRejected  LegStatus = "REJECTED"
	LegStatusCancelled LegStatus = "CANCELLED"
)

type ExecutionType string

const (
	ExecutionTypeSimultaneous ExecutionType = "SIMULTANEOUS"
	ExecutionTypeSequential   ExecutionType = "SEQUENTIAL"
	ExecutionTypeConditional  ExecutionType = "CONDITIONAL"
)

// ExecutionConfig 多腿执行参数
type ExecutionConfig struct {
	ExecutionType      ExecutionType   `json:"execution_type"`
	MaxExecutionTime   time.Duration   `json:"max_execution_time"`
	AllowPartialFills  bool            `json:"allow_partial_fills"`
	MinFillPercentage  decimal.Decimal `json:"min_fill_percentage"`
	PriceTolerance     decimal.Decimal `json:"price_tolerance"`
	RetryAttempts      int             `json:"retry_attempts"`
	RetryDelay         time.Duration   `json:"retry_delay"`
	CancelAllOnFailure bool            `json:"cancel_all_on_failure"`
}

// DefaultExecutionConfig 默认执行参数
func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{
		ExecutionType:      ExecutionTypeSimultaneous,
		MaxExecutionTime:   30 * time.Second,
		AllowPartialFills:  true,
		MinFillPercentage:  decimal.NewFromInt(50),
		PriceTolerance:     decimal.NewFromFloat(0.05),
		RetryAttempts:      2,
		RetryDelay:         200 * time.Millisecond,
		CancelAllOnFailure: true,
	}
}

// PartialFill 单次成交记录
type PartialFill struct {
	FillID    string          `json:"fill_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Value     decimal.Decimal `json:"value"`
	Timestamp time.Time       `json:"timestamp"`
}

// LegExecutionResult 单腿执行状态。并发成交回报通过内部锁保证读改写原子性。
type LegExecutionResult struct {
	mu sync.Mutex

	LegID             string                      `json:"leg_id"`
	Leg               *strategydomain.StrategyLeg `json:"leg,omitempty"`
	BrokerOrderID     string                      `json:"broker_order_id,omitempty"`
	VenueID           string                      `json:"venue_id,omitempty"`
	Status            LegStatus                   `json:"status"`
	RequestedQuantity decimal.Decimal             `json:"requested_quantity"`
	FilledQuantity    decimal.Decimal             `json:"filled_quantity"`
	AvgFillPrice      decimal.Decimal             `json:"avg_fill_price"`
	FillValue         decimal.Decimal             `json:"fill_value"`
	Fills             []*PartialFill              `json:"fills"`
	ErrorMessage      string                      `json:"error_message,omitempty"`
	UpdatedAt         time.Time                   `json:"updated_at"`
}

func NewLegExecutionResult(leg *strategydomain.StrategyLeg) *LegExecutionResult {
	return &LegExecutionResult{
		LegID:             leg.ID,
		Leg:               leg,
		Status:            LegStatusPending,
		RequestedQuantity: leg.Quantity,
		FilledQuantity:    decimal.Zero,
		AvgFillPrice:      decimal.Zero,
		FillValue:         decimal.Zero,
		Fills:             make([]*PartialFill, 0),
		UpdatedAt:         time.Now(),
	}
}

// ApplyFill 记录一次成交并重算均价。超出剩余数量的部分截断；
// 累计成交达到申报数量时腿状态转为 FILLED，否则为 PARTIAL。
func (lr *LegExecutionResult) ApplyFill(quantity, price decimal.Decimal) error {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	if !quantity.IsPositive() {
		return ErrInvalidFill
	}
	if lr.Status == LegStatusRejected || lr.Status == LegStatusCancelled || lr.Status == LegStatusFilled {
		return fmt.Errorf("%w: leg %s is %s", ErrExecutionTerminal, lr.LegID, lr.Status)
	}

	remaining := lr.RequestedQuantity.Sub(lr.FilledQuantity)
	if quantity.GreaterThan(remaining) {
		quantity = remaining
	}

	value := quantity.Mul(price)
	fill := &PartialFill{
		FillID:    fmt.Sprintf("FILL-%d", idgen.GenID()),
		Quantity:  quantity,
		Price:     price,
		Value:     value,
		Timestamp: time.Now(),
	}
	lr.Fills = append(lr.Fills, fill)
	lr.FilledQuantity = lr.FilledQuantity.Add(quantity)
	lr.FillValue = lr.FillValue.Add(value)
	lr.AvgFillPrice = lr.FillValue.Div(lr.FilledQuantity)

	if lr.FilledQuantity.GreaterThanOrEqual(lr.RequestedQuantity) {
		lr.Status = LegStatusFilled
	} else {
		lr.Status = LegStatusPartial
	}
	lr.UpdatedAt = time.Now()
	return nil
}

// Reject 将腿标记为拒绝
func (lr *LegExecutionResult) Reject(reason string) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.Status == LegStatusFilled || lr.Status == LegStatusCancelled {
		return
	}
	lr.Status = LegStatusRejected
	lr.ErrorMessage = reason
	lr.UpdatedAt = time.Now()
}

// Cancel 将未终态的腿标记为取消，返回是否发生状态变更
func (lr *LegExecutionResult) Cancel() bool {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.Status != LegStatusPending && lr.Status != LegStatusPartial {
		return false
	}
	lr.Status = LegStatusCancelled
	lr.UpdatedAt = time.Now()
	return true
}

// GetStatus 并发安全读取腿状态
func (lr *LegExecutionResult) GetStatus() LegStatus {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	return lr.Status
}

// FillRatio 成交比例 (0-100)
func (lr *LegExecutionResult) FillRatio() decimal.Decimal {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if !lr.RequestedQuantity.IsPositive() {
		return decimal.Zero
	}
	return lr.FilledQuantity.Div(lr.RequestedQuantity).Mul(decimal.NewFromInt(100))
}

// SignedFillValue 买入为负、卖出为正的成交金额
func (lr *LegExecutionResult) SignedFillValue() decimal.Decimal {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.Leg == nil {
		return decimal.Zero
	}
	if lr.Leg.Action == strategydomain.LegActionBuy {
		return lr.FillValue.Neg()
	}
	return lr.FillValue
}

// MultiLegExecutionResult 一次多腿执行的聚合结果
type MultiLegExecutionResult struct {
	ID           string                `json:"id"`
	StrategyID   string                `json:"strategy_id"`
	Status       ExecutionStatus       `json:"status"`
	LegResults   []*LegExecutionResult `json:"leg_results"`
	FilledLegs   int                   `json:"filled_legs"`
	TotalLegs    int                   `json:"total_legs"`
	NetPremium   decimal.Decimal       `json:"net_premium"`
	StartTime    time.Time             `json:"start_time"`
	EndTime      time.Time             `json:"end_time"`
	ErrorMessage string                `json:"error_message,omitempty"`
}

func NewMultiLegExecutionResult(strategyID string, totalLegs int) *MultiLegExecutionResult {
	return &MultiLegExecutionResult{
		ID:         fmt.Sprintf("EXEC-%d", idgen.GenID()),
		StrategyID: strategyID,
		Status:     ExecutionStatusPending,
		LegResults: make([]*LegExecutionResult, 0, totalLegs),
		TotalLegs:  totalLegs,
		NetPremium: decimal.Zero,
		StartTime:  time.Now(),
	}
}

// FindLeg 按腿 ID 查找结果，未找到返回 nil
func (r *MultiLegExecutionResult) FindLeg(legID string) *LegExecutionResult {
	for _, lr := range r.LegResults {
		if lr.LegID == legID {
			return lr
		}
	}
	return nil
}

// Recalculate 由腿状态重推聚合字段：成交腿数、净权利金与整体状态
func (r *MultiLegExecutionResult) Recalculate(cancelled, failed bool) {
	filled := 0
	net := decimal.Zero
	statuses := make([]LegStatus, 0, len(r.LegResults))
	for _, lr := range r.LegResults {
		st := lr.GetStatus()
		statuses = append(statuses, st)
		if st == LegStatusFilled {
			filled++
		}
		net = net.Add(lr.SignedFillValue())
	}
	r.FilledLegs = filled
	r.NetPremium = net
	r.Status = DeriveOverallStatus(statuses, cancelled, failed)
}

// DeriveOverallStatus 由腿状态集合推导整体状态的纯函数。
// 优先级：CANCELLED > FAILED > COMPLETED > PARTIAL > PENDING。
func DeriveOverallStatus(legs []LegStatus, cancelled, failed bool) ExecutionStatus {
	if cancelled {
		return ExecutionStatusCancelled
	}
	if failed {
		return ExecutionStatusFailed
	}
	if len(legs) == 0 {
		return ExecutionStatusPending
	}

	allFilled := true
	anyProgress := false
	for _, st := range legs {
		switch st {
		case LegStatusFilled:
			anyProgress = true
		case LegStatusPartial:
			anyProgress = true
			allFilled = false
		default:
			allFilled = false
		}
	}
	if allFilled {
		return ExecutionStatusCompleted
	}
	if anyProgress {
		return ExecutionStatusPartial
	}
	return ExecutionStatusPending
}
