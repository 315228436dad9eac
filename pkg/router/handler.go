package router

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// HttpErrorHandler renders errors that escaped the handlers in the standard
// JSON envelope. Fiber routing errors keep their status code; anything else
// is a 500.
func HttpErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}
	return failure(c, code, err.Error())
}
