package index

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tambongslade/pos-whatsapp-gateway/pkg/router"
)

func Index(c *fiber.Ctx) error {
	return router.ResponseSuccess(c, "POS WhatsApp Gateway is running")
}
