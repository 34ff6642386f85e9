package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"teamsync-backend/internal/metrics"
)

// Metrics 요청 수와 처리 시간 기록. 경로는 라우트 패턴으로 묶는다.
func Metrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}

		path := routePath(c)
		metrics.HTTPRequestsTotal.WithLabelValues(c.Method(), path, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Method(), path).Observe(time.Since(start).Seconds())

		return err
	}
}

// routePath 카디널리티를 막기 위해 매칭된 라우트 패턴을 쓴다
func routePath(c *fiber.Ctx) string {
	if r := c.Route(); r != nil && r.Path != "" && r.Path != "/" {
		return r.Path
	}
	if c.Path() == "/" {
		return "/"
	}
	return "unmatched"
}
