package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	executionapp "github.com/wyfcoding/strategytrading/internal/execution/application"
	executiondomain "github.com/wyfcoding/strategytrading/internal/execution/domain"
	executioninfra "github.com/wyfcoding/strategytrading/internal/execution/infrastructure"
	executionmysql "github.com/wyfcoding/strategytrading/internal/execution/infrastructure/persistence/mysql"
	executionredis "github.com/wyfcoding/strategytrading/internal/execution/infrastructure/persistence/redis"
	"github.com/wyfcoding/strategytrading/internal/execution/infrastructure/venue"
	executionhttp "github.com/wyfcoding/strategytrading/internal/execution/interfaces/http"
	positionapp "github.com/wyfcoding/strategytrading/internal/position/application"
	positioninfra "github.com/wyfcoding/strategytrading/internal/position/infrastructure"
	positionmysql "github.com/wyfcoding/strategytrading/internal/position/infrastructure/persistence/mysql"
	positionredis "github.com/wyfcoding/strategytrading/internal/position/infrastructure/persistence/redis"
	"github.com/wyfcoding/strategytrading/internal/position/infrastructure/pricing"
	positionhttp "github.com/wyfcoding/strategytrading/internal/position/interfaces/http"
	strategyapp "github.com/wyfcoding/strategytrading/internal/strategy/application"
	strategymysql "github.com/wyfcoding/strategytrading/internal/strategy/infrastructure/persistence/mysql"
	strategyhttp "github.com/wyfcoding/strategytrading/internal/strategy/interfaces/http"
	"github.com/wyfcoding/strategytrading/pkg/cache"
	"github.com/wyfcoding/strategytrading/pkg/config"
	"github.com/wyfcoding/strategytrading/pkg/db"
	"github.com/wyfcoding/strategytrading/pkg/logger"
	"github.com/wyfcoding/strategytrading/pkg/middleware"
	"github.com/wyfcoding/strategytrading/pkg/mq"
	"github.com/wyfcoding/strategytrading/pkg/ratelimit"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "configs/strategyengine/config.toml", "path to config file")
	flag.Parse()

	// 1. Config
	var cfg config.Config
	if err := config.Load(configPath, &cfg); err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// 2. Logger
	if err := logger.Init(cfg.Logger); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	slogger := logger.Get()
	slogger.Info("starting service", "service", cfg.ServiceName, "version", cfg.Version, "env", cfg.Environment)

	// 3. Database
	gormDB, err := db.New(cfg.Database)
	if err != nil {
		log.Fatalf("connect database failed: %v", err)
	}
	defer db.Close(gormDB)

	if cfg.Environment == "dev" {
		if err := gormDB.AutoMigrate(
			&strategymysql.StrategyModel{},
			&executionmysql.ExecutionModel{},
			&positionmysql.PositionModel{},
		); err != nil {
			log.Fatalf("migrate database failed: %v", err)
		}
	}

	// 4. Redis & Kafka
	redisCache, err := cache.New(cfg.Redis)
	if err != nil {
		log.Fatalf("connect redis failed: %v", err)
	}
	defer redisCache.Close()

	producer := mq.NewProducer(cfg.Kafka)
	defer producer.Close()

	// 5. Repositories
	snapshotTTL := time.Duration(cfg.Position.SnapshotTTL) * time.Second
	strategyRepo := strategymysql.NewStrategyRepository(gormDB)
	executionRepo := executionredis.NewCachedExecutionRepository(
		executionmysql.NewExecutionRepository(gormDB),
		redisCache,
		snapshotTTL,
	)
	positionRepo := positionredis.NewCachedPositionRepository(
		positionmysql.NewPositionRepository(gormDB),
		redisCache,
		snapshotTTL,
	)

	// 6. Application services
	strategyService := strategyapp.NewStrategyService(strategyRepo, slogger)

	seed := time.Now().UnixNano()
	quotes := venue.NewSimulatedQuoteProvider(cfg.Execution.SimulatedVenues, seed)
	gateway := venue.NewSimulatedOrderGateway(0.9, seed)
	orchestrator := executionapp.NewMultiLegExecutionOrchestrator(
		quotes,
		gateway,
		executionRepo,
		executioninfra.NewKafkaEventPublisher(producer),
		slogger,
	)

	quoteSource := pricing.NewSimulatedQuoteSource(seed)
	pricingService := pricing.NewBlackScholesPricingService(quoteSource, 0.03, 0.3)
	tracker := positionapp.NewPositionLifecycleTracker(
		pricingService,
		positionRepo,
		positioninfra.NewKafkaEventPublisher(producer),
		slogger,
	)

	// 7. HTTP router
	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.TraceID(), middleware.Logging(), middleware.Metrics(), middleware.Recovery())
	if cfg.HTTP.RateLimit > 0 {
		limiter := ratelimit.NewRedisRateLimiter(redisCache.Client())
		router.Use(middleware.RateLimit(limiter, ratelimit.PerSecond(cfg.HTTP.RateLimit)))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP", "service": cfg.ServiceName})
	})

	root := router.Group("")
	strategyhttp.NewStrategyHandler(strategyService).RegisterRoutes(root)
	executionhttp.NewExecutionHandler(orchestrator, strategyRepo, executionDefaults(cfg.Execution)).RegisterRoutes(root)
	positionhttp.NewPositionHandler(tracker, orchestrator, strategyRepo).RegisterRoutes(root)

	// 8. Start
	// 信号直接取消根 ctx，后台刷新循环随之退出，g.Wait 才能返回
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(rootCtx)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}
	g.Go(func() error {
		slogger.Info("http server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: mux,
		}
		g.Go(func() error {
			slogger.Info("metrics server starting", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	fillConsumer := executioninfra.NewFillNotificationConsumer(cfg.Kafka, orchestrator)
	defer fillConsumer.Close()
	g.Go(func() error {
		slogger.Info("fill notification consumer starting", "topic", executiondomain.TopicFillNotifications)
		return fillConsumer.Start(ctx)
	})

	if cfg.Position.RefreshInterval > 0 {
		g.Go(func() error {
			tracker.StartRefreshLoop(ctx, time.Duration(cfg.Position.RefreshInterval)*time.Second)
			return nil
		})
	}

	// 9. Graceful shutdown
	g.Go(func() error {
		<-ctx.Done()
		slogger.Info("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slogger.Error("http server shutdown failed", "error", err)
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slogger.Error("metrics server shutdown failed", "error", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slogger.Error("service exited with error", "error", err)
		os.Exit(1)
	}
	slogger.Info("service stopped")
}

// executionDefaults 把文件配置转换为编排器默认执行参数
func executionDefaults(cfg config.ExecutionConfig) executiondomain.ExecutionConfig {
	defaults := executiondomain.DefaultExecutionConfig()
	if cfg.DefaultType != "" {
		defaults.ExecutionType = executiondomain.ExecutionType(cfg.DefaultType)
	}
	if cfg.MaxExecutionTime > 0 {
		defaults.MaxExecutionTime = time.Duration(cfg.MaxExecutionTime) * time.Second
	}
	defaults.AllowPartialFills = cfg.AllowPartialFills
	if cfg.MinFillPercentage > 0 {
		defaults.MinFillPercentage = decimal.NewFromFloat(cfg.MinFillPercentage)
	}
	if cfg.PriceTolerance > 0 {
		defaults.PriceTolerance = decimal.NewFromFloat(cfg.PriceTolerance)
	}
	if cfg.RetryAttempts > 0 {
		defaults.RetryAttempts = cfg.RetryAttempts
	}
	if cfg.RetryDelay > 0 {
		defaults.RetryDelay = time.Duration(cfg.RetryDelay) * time.Millisecond
	}
	defaults.CancelAllOnFailure = cfg.CancelAllOnFailure
	return defaults
}
