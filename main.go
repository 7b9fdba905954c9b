package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"market-chat/internal/cache"
	"market-chat/internal/chat"
	"market-chat/internal/config"
	"market-chat/internal/db"
	"market-chat/internal/directory"
	"market-chat/internal/grpcserver"
	"market-chat/internal/handlers"
	"market-chat/internal/logger"
	"market-chat/internal/middleware"
	"market-chat/internal/observability"
	"market-chat/internal/rabbitmq"
	"market-chat/internal/repositories"
	"market-chat/internal/support"
	"market-chat/internal/telemetry"
	"market-chat/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("production")
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.ServiceName, cfg.OTELEndpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init tracing")
	}

	database, err := db.Connect(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("failed to connect to db")
	}
	defer database.Close()

	var identityCache cache.Cache = cache.Noop{}
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, identity cache disabled")
		} else {
			identityCache = redisCache
			defer redisCache.Close()
		}
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	logger.Info().
		Str("mode", rabbitmq.PublisherMode(publisher)).
		Str("reason", rabbitmq.PublisherNoopReason(publisher)).
		Msg("event publisher ready")
	audit := telemetry.NewAuditEmitter(publisher, "audit_log", cfg.ServiceName, cfg.Env)

	users := directory.New(repositories.NewDirectoryRepo(database), identityCache)
	hub := ws.NewHub()

	conversations := chat.NewService(repositories.NewConversationRepo(database), users, hub)
	supportService, err := support.NewService(repositories.NewSupportRepo(database), users, hub, cfg.Support)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid support configuration")
	}

	sendLimiter := middleware.NewUserRateLimiter(cfg.SendRatePerMinute, 5)
	go sendLimiter.RunPruner(ctx.Done())

	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		otelgin.Middleware(cfg.ServiceName),
		observability.HTTPMetricsMiddleware(),
		middleware.LoggingMiddleware(),
	)

	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, audit, hub, cfg.DebugRoutes)

	handlers.RegisterRoutes(router, handlers.Routes{
		Conversations: handlers.NewConversationHandler(conversations, audit),
		Support:       handlers.NewSupportHandler(supportService, audit),
		WS:            ws.NewHandler(hub, cfg.JWTSecret, conversations),
		SendLimiter:   sendLimiter,
		JWTSecret:     cfg.JWTSecret,
	})

	health := grpcserver.New(cfg.ServiceName, database)
	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Fatal().Err(err).Str("port", cfg.GRPCPort).Msg("failed to listen for grpc")
	}
	go func() {
		if err := health.Serve(grpcLis); err != nil {
			logger.Error().Err(err).Msg("grpc server stopped")
		}
	}()
	go health.Watch(ctx, 15*time.Second)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
	health.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("tracing shutdown failed")
	}
}
