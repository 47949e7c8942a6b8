package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	grpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"tutor-chat-service/internal/analysis"
	"tutor-chat-service/internal/auth"
	"tutor-chat-service/internal/config"
	"tutor-chat-service/internal/db"
	grpcclient "tutor-chat-service/internal/grpc"
	"tutor-chat-service/internal/handlers"
	applogger "tutor-chat-service/internal/logger"
	"tutor-chat-service/internal/middleware"
	"tutor-chat-service/internal/observability"
	"tutor-chat-service/internal/rabbitmq"
	"tutor-chat-service/internal/repositories"
	"tutor-chat-service/internal/telemetry"
	"tutor-chat-service/internal/ws"
)

const auditRoutingKey = "audit.events"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := applogger.New(cfg.Log.Level, cfg.Environment)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing.Endpoint, cfg.Tracing.ServiceName)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}

	database, err := db.Connect(ctx, cfg.Database.DSN, logger)
	if err != nil {
		logger.Fatal("failed to connect to db", zap.Error(err))
	}
	defer database.Close()

	classifierConn, err := grpc.NewClient(cfg.Classifier.Addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithUnaryInterceptor(observability.GRPCClientMetricsUnaryInterceptor()),
	)
	if err != nil {
		logger.Fatal("failed to connect to classifier grpc", zap.Error(err))
	}
	defer classifierConn.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	logger.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)),
	)
	auditEmitter := telemetry.NewAuditEmitter(publisher, auditRoutingKey, cfg.Tracing.ServiceName, cfg.Environment, logger)

	classifier := grpcclient.NewClassifierClient(classifierConn, cfg.Classifier.Timeout)
	analyzer := analysis.NewAnalyzer(classifier, classifier, logger.Named("analysis"))

	sessionRepo := repositories.NewSessionRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	registry := ws.NewRegistry(sessionRepo,
		ws.WithIdleTimeout(cfg.WebSocket.IdleTimeout),
		ws.WithSweepInterval(cfg.WebSocket.SweepInterval),
		ws.WithLogger(logger.Named("registry")),
	)
	go registry.Run(ctx)

	jwtValidator := auth.NewJWTValidator(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	dispatcher := ws.NewDispatcher(registry, sessionRepo, messageRepo, analyzer, auditEmitter, logger.Named("dispatcher"))
	wsHandler := ws.NewHandler(registry, dispatcher, sessionRepo, jwtValidator, ws.HandlerConfig{
		Development:    cfg.IsDevelopment(),
		DevUserID:      cfg.Auth.DevUserID,
		ReadTimeout:    cfg.WebSocket.ReadTimeout,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		MaxMissedPings: cfg.WebSocket.MaxMissedPings,
		ReadLimit:      cfg.WebSocket.ReadLimit,
	}, logger.Named("ws"))
	statsHandler := handlers.NewStatsHandler(registry)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authMiddleware := middleware.AuthMiddleware(jwtValidator)

	router.GET("/ws/stats", authMiddleware, statsHandler.Stats)
	router.GET("/ws/connected-users", authMiddleware, statsHandler.ConnectedUsers)
	router.GET("/ws/sessions/:session_id/typing", authMiddleware, statsHandler.TypingUsers)

	router.GET("/ws/:user_id", wsHandler.HandleGeneral)
	router.GET("/ws/tutor-chat/:session_id", wsHandler.HandleSession)

	handlers.RegisterDebugRoutes(router, auditEmitter, jwtValidator, cfg.IsDevelopment())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()
	logger.Info("tutor chat service started",
		zap.Int("port", cfg.Server.Port),
		zap.String("environment", cfg.Environment),
	)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// hijacked websocket connections are not tracked by http.Server
	registry.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown", zap.Error(err))
	}
}
