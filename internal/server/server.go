package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"teamsync-backend/internal/auth"
	"teamsync-backend/internal/config"
	"teamsync-backend/internal/handler"
	"teamsync-backend/internal/middleware"
	"teamsync-backend/internal/relay"
	"teamsync-backend/internal/store"
)

// Server Fiber 서버 래퍼
type Server struct {
	app           *fiber.App
	cfg           *config.Config
	log           zerolog.Logger
	healthHandler *handler.HealthHandler
	relayWS       *handler.RelayWSHandler
	roomHandler   *handler.RoomHandler
	chatHandler   *handler.ChatHandler
	jwtManager    *auth.JWTManager
}

// New 새 서버 인스턴스 생성. redis 는 presence 미러가 없으면 nil.
func New(cfg *config.Config, db *gorm.DB, rl *relay.Relay, redis handler.Pinger, log zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "TeamSync Relay",
		StrictRouting:         true,
		CaseSensitive:         true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		Prefork:               false, // WebSocket 연결 상태가 프로세스에 묶임
		BodyLimit:             1 * 1024 * 1024,
		DisableStartupMessage: true,
		ErrorHandler:          handler.ErrorHandler,
	})

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	return &Server{
		app:           app,
		cfg:           cfg,
		log:           log,
		healthHandler: handler.NewHealthHandler(db, redis, rl),
		relayWS:       handler.NewRelayWSHandler(rl, jwtManager, cfg.WebSocket, cfg.Auth.AllowAnonymous, log),
		roomHandler:   handler.NewRoomHandler(rl),
		chatHandler:   handler.NewChatHandler(store.NewChatStore(db), rl, log),
		jwtManager:    jwtManager,
	}
}

// App 내부 fiber 앱 (테스트용)
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) SetupMiddleware() {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: s.cfg.Server.IsDevelopment(),
	}))

	s.app.Use(middleware.Logger(s.log))
	s.app.Use(middleware.Metrics())

	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     s.cfg.CORS.AllowHeaders,
		AllowMethods:     "GET, POST, OPTIONS",
		AllowCredentials: s.cfg.CORS.AllowOrigins != "*",
	}))
}

func (s *Server) SetupRoutes() {
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// 협업 릴레이 WebSocket
	s.app.Get("/ws", s.relayWS.Upgrade, s.relayWS.Handler())

	roomGroup := s.app.Group("/api/rooms")
	roomGroup.Get("", s.roomHandler.ListRooms)
	roomGroup.Get("/:roomId/members", s.roomHandler.GetMembers)

	chatLimiter := limiter.New(limiter.Config{
		Max:        s.cfg.RateLimit.ChatMax,
		Expiration: s.cfg.RateLimit.ChatWindow,
		KeyGenerator: func(c *fiber.Ctx) string {
			if claims := auth.ClaimsFrom(c); claims != nil {
				return "user:" + claims.UserID
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	chatGroup := s.app.Group("/api/chat", auth.AuthMiddleware(s.jwtManager))
	chatGroup.Get("", s.chatHandler.ListMessages)
	chatGroup.Post("", chatLimiter, s.chatHandler.SendMessage)
}

// Listen 서버 시작. Shutdown 이 불리면 nil 로 반환된다.
func (s *Server) Listen() error {
	s.log.Info().
		Str("addr", s.cfg.Server.Port).
		Str("ws", "/ws").
		Msg("teamsync relay listening")
	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown 진행 중 요청을 마무리하고 서버 종료
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
