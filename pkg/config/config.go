// Package config 提供 TOML 配置加载与环境变量覆盖
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/wyfcoding/strategytrading/pkg/logger"
)

// Config 服务配置
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 服务版本
	Version string `mapstructure:"version"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`
	// HTTP 服务配置
	HTTP HTTPConfig `mapstructure:"http"`
	// 数据库配置
	Database DatabaseConfig `mapstructure:"database"`
	// Redis 配置
	Redis RedisConfig `mapstructure:"redis"`
	// Kafka 配置
	Kafka KafkaConfig `mapstructure:"kafka"`
	// 日志配置
	Logger logger.Config `mapstructure:"logger"`
	// 指标配置
	Metrics MetricsConfig `mapstructure:"metrics"`
	// 多腿执行默认配置
	Execution ExecutionConfig `mapstructure:"execution"`
	// 持仓刷新配置
	Position PositionConfig `mapstructure:"position"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	// 单客户端每秒请求上限，0 表示不限流
	RateLimit int `mapstructure:"rate_limit"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	DSN             string `mapstructure:"dsn"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	LogEnabled      bool   `mapstructure:"log_enabled"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	MaxPoolSize  int    `mapstructure:"max_pool_size"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Brokers      []string `mapstructure:"brokers"`
	GroupID      string   `mapstructure:"group_id"`
	MaxRetries   int      `mapstructure:"max_retries"`
	RetryBackoff int      `mapstructure:"retry_backoff"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// ExecutionConfig 多腿执行编排器的默认参数
type ExecutionConfig struct {
	// 执行方式：SIMULTANEOUS, SEQUENTIAL, CONDITIONAL
	DefaultType string `mapstructure:"default_type"`
	// 最大执行时间（秒）
	MaxExecutionTime int `mapstructure:"max_execution_time"`
	// 是否允许部分成交
	AllowPartialFills bool `mapstructure:"allow_partial_fills"`
	// 最小成交百分比 (0-100)
	MinFillPercentage float64 `mapstructure:"min_fill_percentage"`
	// 价格容忍度（比例，如 0.05 表示 5%）
	PriceTolerance float64 `mapstructure:"price_tolerance"`
	// 单腿重试次数
	RetryAttempts int `mapstructure:"retry_attempts"`
	// 重试间隔（毫秒）
	RetryDelay int `mapstructure:"retry_delay"`
	// 失败时是否取消剩余腿
	CancelAllOnFailure bool `mapstructure:"cancel_all_on_failure"`
	// 每条腿模拟的报价场所数量
	SimulatedVenues int `mapstructure:"simulated_venues"`
}

// PositionConfig 持仓跟踪配置
type PositionConfig struct {
	// 自动刷新间隔（秒），0 表示关闭
	RefreshInterval int `mapstructure:"refresh_interval"`
	// 快照缓存过期时间（秒）
	SnapshotTTL int `mapstructure:"snapshot_ttl"`
}

// Load 从文件加载配置，环境变量可覆盖（前缀 STRATEGY，点号转下划线）
func Load(path string, cfg *Config) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("STRATEGY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "strategyengine")
	v.SetDefault("environment", "dev")
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)
	v.SetDefault("http.rate_limit", 100)
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.max_pool_size", 10)
	v.SetDefault("redis.read_timeout", 3)
	v.SetDefault("redis.write_timeout", 3)
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("execution.default_type", "SIMULTANEOUS")
	v.SetDefault("execution.max_execution_time", 30)
	v.SetDefault("execution.allow_partial_fills", true)
	v.SetDefault("execution.min_fill_percentage", 50)
	v.SetDefault("execution.price_tolerance", 0.05)
	v.SetDefault("execution.retry_attempts", 2)
	v.SetDefault("execution.retry_delay", 200)
	v.SetDefault("execution.cancel_all_on_failure", true)
	v.SetDefault("execution.simulated_venues", 3)
	v.SetDefault("position.refresh_interval", 15)
	v.SetDefault("position.snapshot_ttl", 60)
}
