package router

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/tambongslade/pos-whatsapp-gateway/pkg/log"
)

type Response struct {
	Status  bool        `json:"status"`
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func logSuccess(c *fiber.Ctx, code int, message string) {
	statusMessage := http.StatusText(code)

	if statusMessage == message || c.OriginalURL() == BaseURL {
		log.Print(c).Info(fmt.Sprintf("%d %v", code, statusMessage))
	} else {
		log.Print(c).Info(fmt.Sprintf("%d %v", code, message))
	}
}

func logError(c *fiber.Ctx, code int, message string) {
	statusMessage := http.StatusText(code)

	if statusMessage == message {
		log.Print(c).Error(fmt.Sprintf("%d %v", code, statusMessage))
	} else {
		log.Print(c).Error(fmt.Sprintf("%d %v", code, message))
	}
}

func success(c *fiber.Ctx, code int, message string, data interface{}) error {
	response := Response{
		Status: true,
		Code:   code,
		Data:   data,
	}

	if strings.TrimSpace(message) == "" {
		message = http.StatusText(code)
	}
	response.Message = message

	logSuccess(c, response.Code, response.Message)
	return c.Status(response.Code).JSON(response)
}

func failure(c *fiber.Ctx, code int, message string) error {
	response := Response{
		Status: false,
		Code:   code,
	}

	if strings.TrimSpace(message) == "" {
		message = http.StatusText(code)
	}
	response.Message = message
	response.Error = message

	logError(c, response.Code, response.Message)
	return c.Status(response.Code).JSON(response)
}

func ResponseSuccess(c *fiber.Ctx, message string) error {
	return success(c, http.StatusOK, message, nil)
}

func ResponseSuccessWithData(c *fiber.Ctx, message string, data interface{}) error {
	return success(c, http.StatusOK, message, data)
}

func ResponseCreated(c *fiber.Ctx, message string) error {
	return success(c, http.StatusCreated, message, nil)
}

func ResponseCreatedWithData(c *fiber.Ctx, message string, data interface{}) error {
	return success(c, http.StatusCreated, message, data)
}

// ResponseSuccessWithPNG serves raw PNG bytes, bypassing the JSON envelope.
func ResponseSuccessWithPNG(c *fiber.Ctx, png []byte) error {
	logSuccess(c, http.StatusOK, http.StatusText(http.StatusOK))
	c.Type("png")
	return c.Status(http.StatusOK).Send(png)
}

func ResponseNoContent(c *fiber.Ctx) error {
	return c.SendStatus(http.StatusNoContent)
}

func ResponseNotFound(c *fiber.Ctx, message string) error {
	return failure(c, http.StatusNotFound, message)
}

func ResponseUnauthorized(c *fiber.Ctx, message string) error {
	return failure(c, http.StatusUnauthorized, message)
}

func ResponseForbidden(c *fiber.Ctx, message string) error {
	return failure(c, http.StatusForbidden, message)
}

func ResponseBadRequest(c *fiber.Ctx, message string) error {
	return failure(c, http.StatusBadRequest, message)
}

func ResponseInternalError(c *fiber.Ctx, message string) error {
	return failure(c, http.StatusInternalServerError, message)
}

func ResponseServiceUnavailable(c *fiber.Ctx, message string) error {
	return failure(c, http.StatusServiceUnavailable, message)
}
