package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Locals 키
const (
	LocalUserID = "userID"
	LocalName   = "name"
	LocalClaims = "claims"
)

// TokenFromRequest Authorization 헤더, access_token 쿠키, token 쿼리 순으로 토큰을 찾는다.
// 브라우저는 WebSocket 업그레이드에 헤더를 붙일 수 없어서 쿼리도 받는다.
func TokenFromRequest(c *fiber.Ctx) string {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if cookie := c.Cookies("access_token"); cookie != "" {
		return cookie
	}
	return c.Query("token")
}

// AuthMiddleware JWT 인증 미들웨어
func AuthMiddleware(jwtManager *JWTManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := TokenFromRequest(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing authorization token",
			})
		}

		claims, err := jwtManager.ValidateAccessToken(token)
		if err != nil {
			if errors.Is(err, ErrExpiredToken) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "token expired",
					"code":  "TOKEN_EXPIRED",
				})
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid token",
			})
		}

		setClaims(c, claims)
		return c.Next()
	}
}

// OptionalAuthMiddleware 선택적 인증 미들웨어 (인증 실패해도 계속 진행)
func OptionalAuthMiddleware(jwtManager *JWTManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token := TokenFromRequest(c); token != "" {
			if claims, err := jwtManager.ValidateAccessToken(token); err == nil {
				setClaims(c, claims)
			}
		}
		return c.Next()
	}
}

// ClaimsFrom 미들웨어가 저장한 클레임. 없으면 nil.
func ClaimsFrom(c *fiber.Ctx) *Claims {
	claims, _ := c.Locals(LocalClaims).(*Claims)
	return claims
}

func setClaims(c *fiber.Ctx, claims *Claims) {
	c.Locals(LocalUserID, claims.UserID)
	c.Locals(LocalName, claims.Name)
	c.Locals(LocalClaims, claims)
}
