package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/response"

	"github.com/wyfcoding/strategytrading/internal/execution/application"
	"github.com/wyfcoding/strategytrading/internal/execution/domain"
	strategydomain "github.com/wyfcoding/strategytrading/internal/strategy/domain"
	"github.com/wyfcoding/strategytrading/pkg/logger"
)

// HTTP 处理器
// 负责处理多腿执行相关的 HTTP 请求
type ExecutionHandler struct {
	orchestrator *application.MultiLegExecutionOrchestrator
	strategies   strategydomain.StrategyRepository
	defaults     domain.ExecutionConfig
}

// 创建 HTTP 处理器，defaults 为服务级执行默认参数，请求字段可逐项覆盖
func NewExecutionHandler(
	orchestrator *application.MultiLegExecutionOrchestrator,
	strategies strategydomain.StrategyRepository,
	defaults domain.ExecutionConfig,
) *ExecutionHandler {
	return &ExecutionHandler{
		orchestrator: orchestrator,
		strategies:   strategies,
		defaults:     defaults,
	}
}

// 注册路由
func (h *ExecutionHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1/executions")
	{
		api.POST("", h.Execute)
		api.GET("/active", h.ListActive)
		api.GET("/:id", h.GetExecution)
		api.POST("/:id/cancel", h.CancelExecution)
		api.POST("/:id/legs/:legId/fills", h.HandlePartialFill)
	}
}

// ExecuteRequest 执行请求
type ExecuteRequest struct {
	StrategyID         string  `json:"strategy_id" binding:"required"`
	ExecutionType      string  `json:"execution_type"`
	MaxExecutionTime   int     `json:"max_execution_time"`
	AllowPartialFills  *bool   `json:"allow_partial_fills"`
	MinFillPercentage  float64 `json:"min_fill_percentage"`
	PriceTolerance     float64 `json:"price_tolerance"`
	RetryAttempts      *int    `json:"retry_attempts"`
	RetryDelayMs       int     `json:"retry_delay_ms"`
	CancelAllOnFailure *bool   `json:"cancel_all_on_failure"`
}

func (req *ExecuteRequest) toConfig(defaults domain.ExecutionConfig) domain.ExecutionConfig {
	cfg := defaults
	if req.ExecutionType != "" {
		cfg.ExecutionType = domain.ExecutionType(req.ExecutionType)
	}
	if req.MaxExecutionTime > 0 {
		cfg.MaxExecutionTime = time.Duration(req.MaxExecutionTime) * time.Second
	}
	if req.AllowPartialFills != nil {
		cfg.AllowPartialFills = *req.AllowPartialFills
	}
	if req.MinFillPercentage > 0 {
		cfg.MinFillPercentage = decimal.NewFromFloat(req.MinFillPercentage)
	}
	if req.PriceTolerance > 0 {
		cfg.PriceTolerance = decimal.NewFromFloat(req.PriceTolerance)
	}
	if req.RetryAttempts != nil {
		cfg.RetryAttempts = *req.RetryAttempts
	}
	if req.RetryDelayMs > 0 {
		cfg.RetryDelay = time.Duration(req.RetryDelayMs) * time.Millisecond
	}
	if req.CancelAllOnFailure != nil {
		cfg.CancelAllOnFailure = *req.CancelAllOnFailure
	}
	return cfg
}

// Execute 执行策略
func (h *ExecutionHandler) Execute(c *gin.Context) {
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	strategy, err := h.strategies.FindByID(c.Request.Context(), req.StrategyID)
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to load strategy", "strategy_id", req.StrategyID, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	if strategy == nil {
		response.ErrorWithStatus(c, http.StatusNotFound, "strategy not found", "")
		return
	}

	result := h.orchestrator.Execute(c.Request.Context(), strategy, req.toConfig(h.defaults))
	response.Success(c, result)
}

// GetExecution 查询执行状态
func (h *ExecutionHandler) GetExecution(c *gin.Context) {
	result := h.orchestrator.GetExecutionStatus(c.Param("id"))
	if result == nil {
		response.ErrorWithStatus(c, http.StatusNotFound, "execution not found", "")
		return
	}
	response.Success(c, result)
}

// ListActive 列出未终态执行
func (h *ExecutionHandler) ListActive(c *gin.Context) {
	response.Success(c, h.orchestrator.ListActiveExecutions())
}

// CancelExecution 取消执行
func (h *ExecutionHandler) CancelExecution(c *gin.Context) {
	executionID := c.Param("id")
	if !h.orchestrator.CancelExecution(executionID) {
		response.ErrorWithStatus(c, http.StatusNotFound, "execution not found", "")
		return
	}
	response.Success(c, h.orchestrator.GetExecutionStatus(executionID))
}

// PartialFillRequest 外部成交回报
type PartialFillRequest struct {
	Quantity float64 `json:"quantity" binding:"required"`
	Price    float64 `json:"price" binding:"required"`
}

// HandlePartialFill 外部成交回报入口
func (h *ExecutionHandler) HandlePartialFill(c *gin.Context) {
	var req PartialFillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	result, ok := h.orchestrator.HandlePartialFill(
		c.Param("id"), c.Param("legId"),
		decimal.NewFromFloat(req.Quantity), decimal.NewFromFloat(req.Price),
	)
	if !ok {
		response.ErrorWithStatus(c, http.StatusNotFound, "execution or leg not found, or execution already terminal", "")
		return
	}
	response.Success(c, result)
}
