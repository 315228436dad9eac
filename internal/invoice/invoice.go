package invoice

import (
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"

	typGateway "github.com/tambongslade/pos-whatsapp-gateway/internal/types"
	"github.com/tambongslade/pos-whatsapp-gateway/pkg/catalog"
	"github.com/tambongslade/pos-whatsapp-gateway/pkg/log"
	"github.com/tambongslade/pos-whatsapp-gateway/pkg/router"
	"github.com/tambongslade/pos-whatsapp-gateway/pkg/validation"
	"github.com/tambongslade/pos-whatsapp-gateway/pkg/whatsapp"
)

var (
	gateway  *whatsapp.Manager
	products *catalog.Store
)

func Init(m *whatsapp.Manager, cat *catalog.Store) {
	gateway = m
	products = cat
}

// Send formats and delivers an invoice. Accepts plain JSON, or multipart
// form data with a "payload" JSON field plus an optional "pdf" file that is
// forwarded as an attachment named after the sale.
func Send(c *fiber.Ctx) error {
	var req typGateway.RequestInvoice
	var pdfBytes []byte

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		payload := c.FormValue("payload")
		if payload == "" {
			return router.ResponseBadRequest(c, "Missing payload field")
		}
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			return router.ResponseBadRequest(c, "Failed to parse payload JSON")
		}
		if fileHeader, err := c.FormFile("pdf"); err == nil {
			file, err := fileHeader.Open()
			if err != nil {
				return router.ResponseInternalError(c, "Failed to open uploaded PDF")
			}
			defer file.Close()
			pdfBytes, err = io.ReadAll(file)
			if err != nil {
				return router.ResponseInternalError(c, "Failed to read uploaded PDF")
			}
		}
	} else if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed to parse body request")
	}

	if err := validation.ValidatePhone(req.Phone); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	if len(req.Invoice.Items) == 0 {
		return router.ResponseBadRequest(c, "Invoice has no items")
	}

	msgID, err := gateway.SendInvoice(c.UserContext(), req.Phone, req.Invoice, pdfBytes)
	if err != nil {
		return mapSendError(c, err)
	}
	return router.ResponseSuccessWithData(c, "Invoice sent", fiber.Map{
		"message_id": msgID,
	})
}

// SendLowStockReport delivers a low-stock report. When the request omits the
// product list the catalog is queried live; an explicit list bypasses the
// database entirely.
func SendLowStockReport(c *fiber.Ctx) error {
	var req typGateway.RequestLowStockReport
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed to parse body request")
	}
	if err := validation.ValidatePhone(req.Phone); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	reportProducts := req.Products
	if len(reportProducts) == 0 {
		if products == nil {
			return router.ResponseBadRequest(c, "No products given and no catalog is configured")
		}
		lowStock, err := products.LowStock(c.UserContext())
		if err != nil {
			log.Print(c).WithError(err).Error("Failed to query low stock products")
			return router.ResponseInternalError(c, "Failed to query low stock products")
		}
		for _, p := range lowStock {
			reportProducts = append(reportProducts, whatsapp.LowStockProduct{
				ID:        p.ID,
				Name:      p.Name,
				StoreName: p.StoreName,
				Stock:     p.Stock,
				Threshold: p.LowStockThreshold,
			})
		}
	}
	if len(reportProducts) == 0 {
		return router.ResponseSuccess(c, "No products are low on stock")
	}

	msgID, err := gateway.SendLowStockReport(c.UserContext(), req.Phone, reportProducts)
	if err != nil {
		return mapSendError(c, err)
	}
	return router.ResponseSuccessWithData(c, "Low stock report sent", fiber.Map{
		"message_id":    msgID,
		"product_count": len(reportProducts),
	})
}

func mapSendError(c *fiber.Ctx, err error) error {
	if errors.Is(err, whatsapp.ErrNotConnected) {
		return router.ResponseServiceUnavailable(c, "WhatsApp session is not connected")
	}
	return router.ResponseInternalError(c, err.Error())
}
