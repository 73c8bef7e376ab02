// Package metrics 提供 Prometheus 业务指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPRequestsTotal HTTP 请求总数
var HTTPRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	},
	[]string{"method", "path", "status"},
)

// HTTPRequestDuration HTTP 请求耗时
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"method", "path"},
)

// ExecutionsStarted 发起的多腿执行总数
var ExecutionsStarted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "strategy_executions_started_total",
		Help: "Total number of multi-leg executions started",
	},
	[]string{"execution_type"},
)

// ExecutionsFinished 已结束的执行总数，按终态分类
var ExecutionsFinished = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "strategy_executions_finished_total",
		Help: "Total number of multi-leg executions finished, by final status",
	},
	[]string{"status"},
)

// ExecutionDuration 执行耗时
var ExecutionDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "strategy_execution_duration_seconds",
		Help:    "Multi-leg execution duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	},
)

// LegsFilled 成交的腿总数
var LegsFilled = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "strategy_legs_filled_total",
		Help: "Total number of legs fully filled",
	},
)

// LegsRejected 被拒绝的腿总数
var LegsRejected = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "strategy_legs_rejected_total",
		Help: "Total number of legs rejected",
	},
)

// PositionsActive 当前活跃持仓数量
var PositionsActive = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "strategy_positions_active",
		Help: "Current number of active strategy positions",
	},
)

// PositionRefreshDuration 持仓刷新耗时
var PositionRefreshDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "strategy_position_refresh_duration_seconds",
		Help:    "Position refresh duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	},
)

// PositionRefreshErrors 持仓刷新失败总数
var PositionRefreshErrors = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "strategy_position_refresh_errors_total",
		Help: "Total number of position refresh failures",
	},
)
