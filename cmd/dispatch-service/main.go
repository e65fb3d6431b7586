package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"judgehub/internal/common/cache"
	"judgehub/internal/common/db"
	commonmw "judgehub/internal/common/http/middleware"
	"judgehub/internal/common/mq"
	"judgehub/internal/dispatch/judgeclient"
	"judgehub/internal/dispatch/repository"
	"judgehub/internal/dispatch/selector"
	"judgehub/internal/dispatch/service"
	"judgehub/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/dispatch_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	postgres, err := db.NewPostgres(&appCfg.Database)
	if err != nil {
		logger.Error(context.Background(), "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = postgres.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(context.Background(), "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	mqClient, err := mq.NewKafkaQueue(appCfg.Kafka.KafkaConfig)
	if err != nil {
		logger.Error(context.Background(), "init kafka failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mqClient.Close()
	}()

	roundRobin, err := selector.NewRoundRobin(appCfg.Dispatch.Nodes)
	if err != nil {
		logger.Error(context.Background(), "init node selector failed", zap.Error(err))
		return
	}

	submissionStore := repository.NewSubmissionStore(postgres, redisCache, appCfg.Dispatch.StatusCacheTTL)
	resultPublisher := repository.NewMQResultPublisher(mqClient, appCfg.Topics.Results)
	execClient := judgeclient.NewHTTPClient(appCfg.Dispatch.ExecutionTimeout)

	dispatchSvc, err := service.NewService(service.Config{
		Store:          submissionStore,
		Selector:       roundRobin,
		Client:         execClient,
		Results:        resultPublisher,
		WorkerPoolSize: appCfg.Dispatch.WorkerPoolSize,
		ConsumerGroup:  appCfg.Kafka.ConsumerGroup,
		StoreTimeout:   appCfg.Dispatch.StoreTimeout,
		PublishTimeout: appCfg.Dispatch.PublishTimeout,
	})
	if err != nil {
		logger.Error(context.Background(), "init dispatch service failed", zap.Error(err))
		return
	}

	opts := dispatchSvc.SubscribeOptions()
	opts.SetDefaults()
	if err := mqClient.SubscribeWithOptions(context.Background(), appCfg.Topics.Jobs, dispatchSvc.HandleJobMessage, opts); err != nil {
		logger.Error(context.Background(), "subscribe jobs topic failed", zap.Error(err))
		return
	}
	if err := mqClient.Start(); err != nil {
		logger.Error(context.Background(), "start kafka consumer failed", zap.Error(err))
		return
	}
	logger.Info(context.Background(), "dispatch worker pool started",
		zap.Int("workers", opts.Concurrency),
		zap.Int("nodes", roundRobin.Len()),
		zap.String("topic", appCfg.Topics.Jobs))

	httpServer := buildHTTPServer(appCfg.Server, postgres, redisCache, mqClient)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "dispatch http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
	_ = mqClient.Stop()
}

func buildHTTPServer(cfg ServerConfig, postgres *db.Postgres, redisCache *cache.RedisCache, mqClient *mq.KafkaQueue) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContext())

	router.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		checks := gin.H{"database": "ok", "cache": "ok", "queue": "ok"}
		healthy := true
		if err := postgres.Ping(ctx); err != nil {
			checks["database"] = err.Error()
			healthy = false
		}
		if err := redisCache.Ping(ctx); err != nil {
			checks["cache"] = err.Error()
			healthy = false
		}
		if err := mqClient.Ping(ctx); err != nil {
			checks["queue"] = err.Error()
			healthy = false
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, checks)
	})

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
