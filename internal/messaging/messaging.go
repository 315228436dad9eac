package messaging

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"

	typGateway "github.com/tambongslade/pos-whatsapp-gateway/internal/types"
	"github.com/tambongslade/pos-whatsapp-gateway/pkg/log"
	"github.com/tambongslade/pos-whatsapp-gateway/pkg/router"
	"github.com/tambongslade/pos-whatsapp-gateway/pkg/validation"
	"github.com/tambongslade/pos-whatsapp-gateway/pkg/whatsapp"
)

var gateway *whatsapp.Manager

func Init(m *whatsapp.Manager) {
	gateway = m
}

func convertFileToBytes(file multipart.File) ([]byte, error) {
	buffer := bytes.NewBuffer(nil)
	if _, err := io.Copy(buffer, file); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func mapSendError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, whatsapp.ErrNotConnected):
		return router.ResponseServiceUnavailable(c, "WhatsApp session is not connected")
	case errors.Is(err, whatsapp.ErrInvalidDestination):
		return router.ResponseBadRequest(c, "Destination is not a valid phone number or JID")
	case errors.Is(err, whatsapp.ErrEmptyMessage):
		return router.ResponseBadRequest(c, "Message content is empty")
	default:
		return router.ResponseInternalError(c, err.Error())
	}
}

func SendText(c *fiber.Ctx) error {
	var req typGateway.RequestSendText
	if err := c.BodyParser(&req); err != nil {
		log.Print(c).Warn("Failed to parse body request")
		return router.ResponseBadRequest(c, "Failed to parse body request")
	}
	if err := validation.ValidatePhone(req.Phone); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	msgID, err := gateway.SendText(c.UserContext(), req.Phone, req.Message)
	if err != nil {
		return mapSendError(c, err)
	}
	return router.ResponseSuccessWithData(c, "Text message sent", fiber.Map{
		"message_id": msgID,
	})
}

func SendDocument(c *fiber.Ctx) error {
	var req typGateway.RequestSendMedia
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed to parse form request")
	}
	if err := validation.ValidatePhone(req.Phone); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	fileHeader, err := c.FormFile("document")
	if err != nil {
		return router.ResponseBadRequest(c, "Missing document file")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return router.ResponseInternalError(c, "Failed to open uploaded document")
	}
	defer file.Close()

	fileBytes, err := convertFileToBytes(file)
	if err != nil {
		return router.ResponseInternalError(c, "Failed to read uploaded document")
	}

	doc := whatsapp.Document{
		Bytes:    fileBytes,
		MimeType: fileHeader.Header.Get("Content-Type"),
		FileName: fileHeader.Filename,
	}
	msgID, err := gateway.SendDocument(c.UserContext(), req.Phone, doc, req.Caption)
	if err != nil {
		return mapSendError(c, err)
	}
	return router.ResponseSuccessWithData(c, "Document sent", fiber.Map{
		"message_id": msgID,
	})
}

func SendImage(c *fiber.Ctx) error {
	var req typGateway.RequestSendMedia
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed to parse form request")
	}
	if err := validation.ValidatePhone(req.Phone); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		return router.ResponseBadRequest(c, "Missing image file")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return router.ResponseInternalError(c, "Failed to open uploaded image")
	}
	defer file.Close()

	fileBytes, err := convertFileToBytes(file)
	if err != nil {
		return router.ResponseInternalError(c, "Failed to read uploaded image")
	}

	msgID, err := gateway.SendImage(c.UserContext(), req.Phone, fileBytes, fileHeader.Header.Get("Content-Type"), req.Caption)
	if err != nil {
		return mapSendError(c, err)
	}
	return router.ResponseSuccessWithData(c, "Image sent", fiber.Map{
		"message_id": msgID,
	})
}
