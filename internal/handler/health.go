package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"teamsync-backend/internal/database"
)

// Pinger 선택적 의존성 상태 확인 (presence 미러)
type Pinger interface {
	Health(ctx context.Context) error
}

// RelayStats 릴레이 현황
type RelayStats interface {
	ConnectionCount() int
	RoomCount() int
}

// HealthHandler 헬스체크 핸들러
type HealthHandler struct {
	db    *gorm.DB
	redis Pinger
	relay RelayStats
}

// NewHealthHandler HealthHandler 생성. redis 는 nil 이면 not_configured.
func NewHealthHandler(db *gorm.DB, redis Pinger, relay RelayStats) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, relay: relay}
}

// ComponentCheck 컴포넌트 상태
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse 헬스체크 응답
type HealthResponse struct {
	Status    string                    `json:"status"`
	Timestamp string                    `json:"timestamp"`
	Checks    map[string]ComponentCheck `json:"checks"`
	Relay     RelaySummary              `json:"relay"`
}

// RelaySummary 릴레이 연결/방 수
type RelaySummary struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

// Check 전체 상태 확인 (DB + Redis + 릴레이)
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    make(map[string]ComponentCheck),
		Relay: RelaySummary{
			Connections: h.relay.ConnectionCount(),
			Rooms:       h.relay.RoomCount(),
		},
	}

	// 1. Database 체크
	dbStart := time.Now()
	if err := database.Ping(h.db); err != nil {
		response.Status = "unhealthy"
		response.Checks["database"] = ComponentCheck{
			Status: "unhealthy",
			Error:  "database ping failed",
		}
	} else {
		response.Checks["database"] = ComponentCheck{
			Status:  "healthy",
			Latency: time.Since(dbStart).String(),
		}
	}

	// 2. Redis 체크 (미러는 선택이라 실패해도 degraded)
	if h.redis != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		redisStart := time.Now()
		if err := h.redis.Health(ctx); err != nil {
			if response.Status == "healthy" {
				response.Status = "degraded"
			}
			response.Checks["redis"] = ComponentCheck{
				Status: "degraded",
				Error:  "redis unreachable",
			}
		} else {
			response.Checks["redis"] = ComponentCheck{
				Status:  "healthy",
				Latency: time.Since(redisStart).String(),
			}
		}
	} else {
		response.Checks["redis"] = ComponentCheck{
			Status: "not_configured",
		}
	}

	statusCode := fiber.StatusOK
	if response.Status == "unhealthy" {
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(response)
}

// Liveness K8s liveness 체크용 (단순 체크)
func (h *HealthHandler) Liveness(c *fiber.Ctx) error {
	return c.SendString("OK")
}

// Readiness K8s readiness 체크용 (DB 연결 체크)
func (h *HealthHandler) Readiness(c *fiber.Ctx) error {
	if err := database.Ping(h.db); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).SendString("NOT READY")
	}
	return c.SendString("READY")
}
