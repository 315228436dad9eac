package session

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/tambongslade/pos-whatsapp-gateway/pkg/log"
	"github.com/tambongslade/pos-whatsapp-gateway/pkg/router"
	"github.com/tambongslade/pos-whatsapp-gateway/pkg/whatsapp"
)

var gateway *whatsapp.Manager

func Init(m *whatsapp.Manager) {
	gateway = m
}

func Status(c *fiber.Ctx) error {
	return router.ResponseSuccessWithData(c, "Session status", gateway.Status())
}

// QRCode returns the current pairing code as text. The code rotates every
// ~20 seconds while pairing is active; outside pairing there is nothing to
// return and the client gets an explicit not-found.
func QRCode(c *fiber.Ctx) error {
	code, err := gateway.QRCode()
	if err != nil {
		if errors.Is(err, whatsapp.ErrQRNotAvailable) {
			return router.ResponseNotFound(c, "No pairing QR code is currently available")
		}
		return router.ResponseInternalError(c, err.Error())
	}
	return router.ResponseSuccessWithData(c, "Pairing QR code", fiber.Map{
		"code": code,
	})
}

func QRCodeImage(c *fiber.Ctx) error {
	png, err := gateway.QRCodeImage()
	if err != nil {
		if errors.Is(err, whatsapp.ErrQRNotAvailable) {
			return router.ResponseNotFound(c, "No pairing QR code is currently available")
		}
		return router.ResponseInternalError(c, err.Error())
	}
	return router.ResponseSuccessWithPNG(c, png)
}

func Restart(c *fiber.Ctx) error {
	log.Print(c).Info("Session restart requested over HTTP")
	if err := gateway.Restart(c.UserContext()); err != nil {
		return router.ResponseInternalError(c, err.Error())
	}
	return router.ResponseSuccess(c, "Session restart initiated")
}

// Logout wipes the stored credentials and begins a fresh pairing.
func Logout(c *fiber.Ctx) error {
	log.Print(c).Warn("Session logout requested over HTTP")
	if err := gateway.Logout(c.UserContext()); err != nil {
		return router.ResponseInternalError(c, err.Error())
	}
	return router.ResponseSuccess(c, "Session wiped, new pairing started")
}
