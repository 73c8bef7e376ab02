package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/response"

	"github.com/wyfcoding/strategytrading/internal/strategy/application"
	"github.com/wyfcoding/strategytrading/internal/strategy/domain"
	"github.com/wyfcoding/strategytrading/pkg/logger"
)

// HTTP 处理器
// 负责处理策略定义与校验相关的 HTTP 请求
type StrategyHandler struct {
	strategyService *application.StrategyService
}

// 创建 HTTP 处理器
func NewStrategyHandler(strategyService *application.StrategyService) *StrategyHandler {
	return &StrategyHandler{
		strategyService: strategyService,
	}
}

// 注册路由
func (h *StrategyHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1/strategies")
	{
		api.GET("/templates", h.ListTemplates)
		api.POST("/from-template", h.CreateFromTemplate)
		api.POST("", h.CreateCustom)
		api.GET("", h.ListStrategies)
		api.GET("/:id", h.GetStrategy)
		api.POST("/:id/validate", h.ValidateStrategy)
		api.POST("/:id/legs", h.AddLeg)
		api.PUT("/:id/legs/:legId", h.UpdateLeg)
		api.DELETE("/:id/legs/:legId", h.RemoveLeg)
	}
}

// ListTemplates 列出策略模板
func (h *StrategyHandler) ListTemplates(c *gin.Context) {
	response.Success(c, h.strategyService.ListTemplates())
}

// CreateFromTemplateRequest 模板建仓请求
type CreateFromTemplateRequest struct {
	Type           string  `json:"type" binding:"required"`
	Underlying     string  `json:"underlying" binding:"required"`
	ATMPrice       float64 `json:"atm_price" binding:"required"`
	StrikeInterval float64 `json:"strike_interval" binding:"required"`
}

// CreateFromTemplate 按模板创建策略
func (h *StrategyHandler) CreateFromTemplate(c *gin.Context) {
	var req CreateFromTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	strategy, err := h.strategyService.CreateFromTemplate(
		c.Request.Context(),
		domain.StrategyType(req.Type),
		req.Underlying,
		decimal.NewFromFloat(req.ATMPrice),
		decimal.NewFromFloat(req.StrikeInterval),
	)
	if err != nil {
		if errors.Is(err, domain.ErrTemplateNotFound) {
			response.ErrorWithStatus(c, http.StatusNotFound, err.Error(), "")
			return
		}
		logger.Error(c.Request.Context(), "Failed to create strategy from template", "type", req.Type, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, strategy)
}

// CreateCustomRequest 自定义策略请求
type CreateCustomRequest struct {
	Name       string `json:"name"`
	Underlying string `json:"underlying" binding:"required"`
}

// CreateCustom 创建自定义空策略
func (h *StrategyHandler) CreateCustom(c *gin.Context) {
	var req CreateCustomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	strategy, err := h.strategyService.CreateCustom(c.Request.Context(), req.Name, req.Underlying)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, strategy)
}

// GetStrategy 查询策略详情
func (h *StrategyHandler) GetStrategy(c *gin.Context) {
	strategy, err := h.strategyService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	if strategy == nil {
		response.ErrorWithStatus(c, http.StatusNotFound, "strategy not found", "")
		return
	}
	response.Success(c, strategy)
}

// ListStrategies 列出策略，可按标的过滤
func (h *StrategyHandler) ListStrategies(c *gin.Context) {
	if underlying := c.Query("underlying"); underlying != "" {
		strategies, err := h.strategyService.ListByUnderlying(c.Request.Context(), underlying)
		if err != nil {
			response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
			return
		}
		response.Success(c, strategies)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	strategies, err := h.strategyService.List(c.Request.Context(), limit, offset)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, strategies)
}

// ValidateStrategy 校验策略
func (h *StrategyHandler) ValidateStrategy(c *gin.Context) {
	result, err := h.strategyService.Validate(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrStrategyNotFound) {
			response.ErrorWithStatus(c, http.StatusNotFound, err.Error(), "")
			return
		}
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, result)
}

// AddLeg 追加腿
func (h *StrategyHandler) AddLeg(c *gin.Context) {
	var input application.LegInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	strategy, err := h.strategyService.AddLeg(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		h.writeMutationError(c, err)
		return
	}
	response.Success(c, strategy)
}

// UpdateLeg 更新腿
func (h *StrategyHandler) UpdateLeg(c *gin.Context) {
	var input application.LegInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	strategy, err := h.strategyService.UpdateLeg(c.Request.Context(), c.Param("id"), c.Param("legId"), input)
	if err != nil {
		h.writeMutationError(c, err)
		return
	}
	response.Success(c, strategy)
}

// RemoveLeg 删除腿
func (h *StrategyHandler) RemoveLeg(c *gin.Context) {
	strategy, err := h.strategyService.RemoveLeg(c.Request.Context(), c.Param("id"), c.Param("legId"))
	if err != nil {
		h.writeMutationError(c, err)
		return
	}
	response.Success(c, strategy)
}

func (h *StrategyHandler) writeMutationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrStrategyNotFound), errors.Is(err, domain.ErrLegNotFound):
		response.ErrorWithStatus(c, http.StatusNotFound, err.Error(), "")
	default:
		logger.Error(c.Request.Context(), "strategy mutation failed", "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
	}
}
