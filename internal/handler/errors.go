package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler fiber 전역 에러 핸들러. {"error": msg} 형태로 응답한다.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal server error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": message,
	})
}
