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
	"judgehub/internal/dispatch/repository"
	"judgehub/internal/gateway/controller"
	"judgehub/internal/gateway/service"
	"judgehub/internal/notify"
	"judgehub/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/submit_service.yaml"

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

	mqClient, err := mq.NewKafkaQueue(appCfg.Kafka)
	if err != nil {
		logger.Error(context.Background(), "init kafka failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mqClient.Close()
	}()

	submissionStore := repository.NewSubmissionStore(postgres, redisCache, appCfg.Gateway.StatusCacheTTL)

	submitService, err := service.NewSubmitService(service.Config{
		Submissions:  submissionStore,
		Queue:        mqClient,
		Cache:        redisCache,
		JobTopic:     appCfg.Topics.Jobs,
		MaxCodeBytes: appCfg.Gateway.MaxCodeBytes,
		RateLimit:    appCfg.Gateway.RateLimit,
		Timeouts:     appCfg.Gateway.Timeouts,
	})
	if err != nil {
		logger.Error(context.Background(), "init submit service failed", zap.Error(err))
		return
	}

	hub := notify.NewHub()
	resultConsumer, err := service.NewResultConsumer(hub)
	if err != nil {
		logger.Error(context.Background(), "init result consumer failed", zap.Error(err))
		return
	}

	resultOpts := appCfg.Gateway.ResultConsumer.toSubscribeOptions()
	resultOpts.SetDefaults()
	if err := mqClient.SubscribeWithOptions(context.Background(), appCfg.Topics.Results, resultConsumer.HandleResultMessage, &resultOpts); err != nil {
		logger.Error(context.Background(), "subscribe results topic failed", zap.Error(err))
		return
	}
	if err := mqClient.Start(); err != nil {
		logger.Error(context.Background(), "start kafka consumer failed", zap.Error(err))
		return
	}

	httpServer := buildHTTPServer(appCfg.Server, submitService, hub)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "gateway http server started", zap.String("addr", appCfg.Server.Addr))
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

func buildHTTPServer(cfg ServerConfig, submitService *service.SubmitService, hub *notify.Hub) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContext())
	router.Use(requestLogger())

	api := router.Group("/api/v1/submissions")
	submitController := controller.NewSubmitController(submitService)
	api.POST("", submitController.Create)
	api.GET("/:id", submitController.GetStatus)

	wsHandler := controller.NewWSHandler(hub)
	router.GET("/ws", wsHandler.Serve)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
