package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/pkg/response"

	executionapp "github.com/wyfcoding/strategytrading/internal/execution/application"
	"github.com/wyfcoding/strategytrading/internal/position/application"
	"github.com/wyfcoding/strategytrading/internal/position/domain"
	strategydomain "github.com/wyfcoding/strategytrading/internal/strategy/domain"
	"github.com/wyfcoding/strategytrading/pkg/logger"
)

// HTTP 处理器
// 负责处理策略持仓相关的 HTTP 请求
type PositionHandler struct {
	tracker      *application.PositionLifecycleTracker
	orchestrator *executionapp.MultiLegExecutionOrchestrator
	strategies   strategydomain.StrategyRepository
}

// 创建 HTTP 处理器
func NewPositionHandler(
	tracker *application.PositionLifecycleTracker,
	orchestrator *executionapp.MultiLegExecutionOrchestrator,
	strategies strategydomain.StrategyRepository,
) *PositionHandler {
	return &PositionHandler{
		tracker:      tracker,
		orchestrator: orchestrator,
		strategies:   strategies,
	}
}

// 注册路由
func (h *PositionHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1/positions")
	{
		api.POST("", h.CreatePosition)
		api.GET("", h.ListPositions)
		api.GET("/:id", h.GetPosition)
		api.POST("/:id/refresh", h.RefreshPosition)
		api.POST("/:id/close", h.ClosePosition)
	}
}

// CreatePositionRequest 建仓请求
type CreatePositionRequest struct {
	ExecutionID string `json:"execution_id" binding:"required"`
}

// CreatePosition 基于执行结果建仓
func (h *PositionHandler) CreatePosition(c *gin.Context) {
	var req CreatePositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request: "+err.Error(), "")
		return
	}

	result := h.orchestrator.GetExecutionStatus(req.ExecutionID)
	if result == nil {
		response.ErrorWithStatus(c, http.StatusNotFound, "execution not found", "")
		return
	}

	strategy, err := h.strategies.FindByID(c.Request.Context(), result.StrategyID)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to load strategy for position", "strategy_id", result.StrategyID, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, "failed to load strategy", "")
		return
	}
	if strategy == nil {
		response.ErrorWithStatus(c, http.StatusNotFound, "strategy not found", "")
		return
	}

	position, err := h.tracker.CreatePosition(c.Request.Context(), strategy, result)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrIncompleteExecution), errors.Is(err, domain.ErrNoFilledLegs):
			response.ErrorWithStatus(c, http.StatusUnprocessableEntity, err.Error(), "")
		default:
			response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		}
		return
	}
	response.Success(c, position)
}

// ListPositions 列出持仓，支持 underlying 与 active 过滤
func (h *PositionHandler) ListPositions(c *gin.Context) {
	if underlying := c.Query("underlying"); underlying != "" {
		response.Success(c, h.tracker.GetByUnderlying(underlying))
		return
	}
	if c.Query("active") == "true" {
		response.Success(c, h.tracker.GetActive())
		return
	}
	response.Success(c, h.tracker.GetAll())
}

// GetPosition 查询单个持仓
func (h *PositionHandler) GetPosition(c *gin.Context) {
	position := h.tracker.Get(c.Param("id"))
	if position == nil {
		response.ErrorWithStatus(c, http.StatusNotFound, domain.ErrPositionNotFound.Error(), "")
		return
	}
	response.Success(c, position)
}

// RefreshPosition 按当前市场价重估持仓
func (h *PositionHandler) RefreshPosition(c *gin.Context) {
	position, err := h.tracker.Refresh(c.Request.Context(), c.Param("id"))
	if err != nil {
		logger.Error(c.Request.Context(), "failed to refresh position", "position_id", c.Param("id"), "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	if position == nil {
		response.ErrorWithStatus(c, http.StatusNotFound, domain.ErrPositionNotFound.Error(), "")
		return
	}
	response.Success(c, position)
}

// ClosePosition 平仓，已平仓位重复平仓为幂等成功
func (h *PositionHandler) ClosePosition(c *gin.Context) {
	positionID := c.Param("id")
	if !h.tracker.Close(c.Request.Context(), positionID) {
		response.ErrorWithStatus(c, http.StatusNotFound, domain.ErrPositionNotFound.Error(), "")
		return
	}
	response.Success(c, h.tracker.Get(positionID))
}
