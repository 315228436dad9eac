package router

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEnvelope(t *testing.T, res *http.Response) Response {
	t.Helper()
	defer res.Body.Close()
	var envelope Response
	require.NoError(t, json.NewDecoder(res.Body).Decode(&envelope))
	return envelope
}

func TestHttpErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: HttpErrorHandler})
	app.Get("/plain", func(c *fiber.Ctx) error {
		return errors.New("datastore unavailable")
	})
	app.Get("/fiber", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "order id must be numeric")
	})

	t.Run("plain errors map to 500", func(t *testing.T) {
		res, err := app.Test(httptest.NewRequest(http.MethodGet, "/plain", nil))
		require.NoError(t, err)

		envelope := decodeEnvelope(t, res)
		assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
		assert.False(t, envelope.Status)
		assert.Equal(t, http.StatusInternalServerError, envelope.Code)
		assert.Equal(t, "datastore unavailable", envelope.Message)
		assert.Equal(t, "datastore unavailable", envelope.Error)
	})

	t.Run("fiber errors keep their status code", func(t *testing.T) {
		res, err := app.Test(httptest.NewRequest(http.MethodGet, "/fiber", nil))
		require.NoError(t, err)

		envelope := decodeEnvelope(t, res)
		assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
		assert.False(t, envelope.Status)
		assert.Equal(t, "order id must be numeric", envelope.Message)
	})

	t.Run("unknown routes use fiber's 404", func(t *testing.T) {
		res, err := app.Test(httptest.NewRequest(http.MethodGet, "/missing", nil))
		require.NoError(t, err)

		envelope := decodeEnvelope(t, res)
		assert.Equal(t, http.StatusNotFound, res.StatusCode)
		assert.Equal(t, http.StatusNotFound, envelope.Code)
	})
}
