// internal/app/server.go
package app

import (
	"context"
	"fmt"
	"log"

	"sessiongate-service/internal/config"
	"sessiongate-service/internal/db"
	deviceHandler "sessiongate-service/internal/handlers/device"
	sessionHandler "sessiongate-service/internal/handlers/session"
	wsHandler "sessiongate-service/internal/handlers/websocket"
	"sessiongate-service/internal/middleware"
	"sessiongate-service/internal/pkg/jwt"
	"sessiongate-service/internal/pkg/session"
	"sessiongate-service/internal/repository/postgres"
	deviceUsecase "sessiongate-service/internal/service/device"
	sessionUsecase "sessiongate-service/internal/service/session"
	"sessiongate-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
}

func NewServer() *Server {
	cfg := config.Load()
	engine := gin.New()
	return &Server{cfg: cfg, engine: engine}
}

func (s *Server) Start() error {
	ctx := context.Background()

	// ----- Logger -----
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()
	s.logger = logger

	// ----- PostgreSQL -----
	if err := db.Migrate(s.cfg.DatabaseURL); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	pool, err := db.ConnectDB()
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	// ----- Redis -----
	redisCfg := db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
		DB:       0,
		PoolSize: 10,
	}

	redisClient, err := db.NewRedisClient(redisCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Println("[REDIS] ✅ Connected successfully")

	// ----- JWT Verifier -----
	verifier, err := jwt.LoadVerifier(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT verifier: %w", err)
	}

	// ----- Status Cache & Rate Limiter -----
	statusCache := session.NewStatusCache(redisClient, s.cfg.StatusActiveTTL, s.cfg.StatusEndedTTL)
	rateLimiter := session.NewRateLimiter(redisClient)

	// ----- Repositories -----
	sessionRepo := postgres.NewSessionRepository(pool)
	deviceRepo := postgres.NewDeviceRepository(pool)

	// ----- WebSocket Hub -----
	hub := websocket.NewHub()
	go hub.Run(context.Background())

	// ----- Services (Usecases) -----
	registry := deviceUsecase.NewRegistry(deviceRepo, logger)
	sessionService := sessionUsecase.NewService(
		sessionRepo,
		registry,
		statusCache,
		hub,
		sessionUsecase.StudentsOnly,
		logger,
	)

	// ----- Handlers -----
	sessionHandlerInst := sessionHandler.NewSessionHandler(sessionService, rateLimiter, logger)
	deviceHandlerInst := deviceHandler.NewDeviceHandler(registry, logger)
	wsHandlerInst := wsHandler.NewWebSocketHandler(hub, logger)

	// ----- Middlewares -----
	s.engine.Use(
		middleware.Recovery(logger),
		middleware.Logging(logger),
		middleware.CORS(s.cfg.AllowedOrigins),
	)

	// ----- Router -----
	handlers := &Handlers{
		SessionHandler: sessionHandlerInst,
		DeviceHandler:  deviceHandlerInst,
		WSHandler:      wsHandlerInst,
		Auth:           middleware.Auth(verifier),
	}
	SetupRouter(s.engine, logger, handlers)

	// ----- Start HTTP -----
	log.Printf("🚀 Server running on %s", s.cfg.HTTPAddr)
	return s.engine.Run(s.cfg.HTTPAddr)
}
