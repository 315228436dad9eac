package whatsapp

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/sunshineplan/imgconv"
	"google.golang.org/protobuf/proto"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"

	"github.com/tambongslade/pos-whatsapp-gateway/pkg/log"
)

var (
	ErrNotConnected       = errors.New("whatsapp client is not connected")
	ErrInvalidDestination = errors.New("destination is not a valid phone number or jid")
	ErrEmptyMessage       = errors.New("message content is empty")
)

// Document is an outbound file attachment.
type Document struct {
	Bytes    []byte
	MimeType string
	FileName string
}

// FormatPhone normalizes a raw phone number into a WhatsApp JID string.
// Non-digits are stripped; a bare national number gets the configured country
// code prepended. Numbers already carrying the code pass through unchanged.
func FormatPhone(phone string, countryCode string, nationalLen int) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	normalized := digits.String()
	if len(normalized) == nationalLen && !strings.HasPrefix(normalized, countryCode) {
		normalized = countryCode + normalized
	}
	return normalized + "@" + types.DefaultUserServer
}

// FormatPhone applies the manager's configured country settings.
func (m *Manager) FormatPhone(phone string) string {
	return FormatPhone(phone, m.cfg.CountryCode, m.cfg.NationalNumberLen)
}

// resolveDestination accepts either a full JID ("...@s.whatsapp.net",
// "...@g.us") or a bare phone number.
func (m *Manager) resolveDestination(to string) (types.JID, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return types.EmptyJID, ErrInvalidDestination
	}
	if strings.ContainsRune(to, '@') {
		jid, err := types.ParseJID(to)
		if err != nil || jid.User == "" {
			return types.EmptyJID, ErrInvalidDestination
		}
		return jid, nil
	}
	jid, err := types.ParseJID(m.FormatPhone(to))
	if err != nil || jid.User == "" {
		return types.EmptyJID, ErrInvalidDestination
	}
	return jid, nil
}

// acquireSend gates one outbound message: the client must be in the connected
// state (checked before any network work, so sends fail fast while pairing or
// reconnecting), sends are serialized, and the rate limit is honored.
func (m *Manager) acquireSend(ctx context.Context, op string, to string) (func(), error) {
	if !m.IsConnected() {
		log.SendOp(op, to).Warn("Dropping outbound message: client not connected")
		return nil, ErrNotConnected
	}
	if err := m.sendGate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if err := m.limiter.Wait(ctx); err != nil {
		m.sendGate.Release(1)
		return nil, err
	}
	return func() { m.sendGate.Release(1) }, nil
}

// SendText delivers a plain text message and returns the message id.
func (m *Manager) SendText(ctx context.Context, to string, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", ErrEmptyMessage
	}
	remoteJID, err := m.resolveDestination(to)
	if err != nil {
		return "", err
	}

	release, err := m.acquireSend(ctx, "text", to)
	if err != nil {
		return "", err
	}
	defer release()

	msgExtra := whatsmeow.SendRequestExtra{ID: m.client.GenerateMessageID()}
	msgContent := &waE2E.Message{
		Conversation: proto.String(message),
	}
	if _, err = m.client.SendMessage(ctx, remoteJID, msgContent, msgExtra); err != nil {
		log.SendOp("text", remoteJID.String()).WithError(err).Error("Failed to send text message")
		return "", err
	}
	log.SendOp("text", remoteJID.String()).Info("Text message sent")
	return msgExtra.ID, nil
}

// SendDocument uploads and delivers a document with an optional caption.
func (m *Manager) SendDocument(ctx context.Context, to string, doc Document, caption string) (string, error) {
	if len(doc.Bytes) == 0 {
		return "", ErrEmptyMessage
	}
	remoteJID, err := m.resolveDestination(to)
	if err != nil {
		return "", err
	}

	release, err := m.acquireSend(ctx, "document", to)
	if err != nil {
		return "", err
	}
	defer release()

	documentUploaded, err := m.client.Upload(ctx, doc.Bytes, whatsmeow.MediaDocument)
	if err != nil {
		log.SendOp("document", remoteJID.String()).WithError(err).Error("Failed to upload document")
		return "", err
	}

	msgExtra := whatsmeow.SendRequestExtra{ID: m.client.GenerateMessageID()}
	msgContent := &waE2E.Message{
		DocumentMessage: &waE2E.DocumentMessage{
			URL:           proto.String(documentUploaded.URL),
			DirectPath:    proto.String(documentUploaded.DirectPath),
			Mimetype:      proto.String(doc.MimeType),
			FileName:      proto.String(doc.FileName),
			Caption:       proto.String(caption),
			FileLength:    proto.Uint64(documentUploaded.FileLength),
			FileSHA256:    documentUploaded.FileSHA256,
			FileEncSHA256: documentUploaded.FileEncSHA256,
			MediaKey:      documentUploaded.MediaKey,
		},
	}
	if _, err = m.client.SendMessage(ctx, remoteJID, msgContent, msgExtra); err != nil {
		log.SendOp("document", remoteJID.String()).WithError(err).Error("Failed to send document")
		return "", err
	}
	log.SendOp("document", remoteJID.String()).WithField("file_name", doc.FileName).Info("Document sent")
	return msgExtra.ID, nil
}

// SendImage uploads and delivers an image with a caption. WebP input is
// converted to PNG when enabled, large images are resized to 1024px wide when
// compression is enabled, and a 72px JPEG thumbnail is always attached.
func (m *Manager) SendImage(ctx context.Context, to string, imageBytes []byte, imageType string, caption string) (string, error) {
	if len(imageBytes) == 0 {
		return "", ErrEmptyMessage
	}
	remoteJID, err := m.resolveDestination(to)
	if err != nil {
		return "", err
	}

	if imageType == "image/webp" && m.cfg.ImageConvertWebP {
		imgConvDecode, err := imgconv.Decode(bytes.NewReader(imageBytes))
		if err != nil {
			return "", errors.New("failed to decode webp image for conversion")
		}
		imgConvEncode := new(bytes.Buffer)
		err = imgconv.Write(imgConvEncode, imgConvDecode, &imgconv.FormatOption{Format: imgconv.PNG})
		if err != nil {
			return "", errors.New("failed to encode converted image")
		}
		imageBytes = imgConvEncode.Bytes()
		imageType = "image/png"
	}

	if m.cfg.ImageCompression {
		imgResizeDecode, err := imgconv.Decode(bytes.NewReader(imageBytes))
		if err != nil {
			return "", errors.New("failed to decode image for compression")
		}
		imgResizeEncode := new(bytes.Buffer)
		err = imgconv.Write(imgResizeEncode,
			imgconv.Resize(imgResizeDecode, &imgconv.ResizeOption{Width: 1024}),
			&imgconv.FormatOption{})
		if err != nil {
			return "", errors.New("failed to encode compressed image")
		}
		imageBytes = imgResizeEncode.Bytes()
	}

	imgThumbDecode, err := imgconv.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return "", errors.New("failed to decode image for thumbnail")
	}
	imgThumbEncode := new(bytes.Buffer)
	err = imgconv.Write(imgThumbEncode,
		imgconv.Resize(imgThumbDecode, &imgconv.ResizeOption{Width: 72}),
		&imgconv.FormatOption{Format: imgconv.JPEG})
	if err != nil {
		return "", errors.New("failed to encode image thumbnail")
	}

	release, err := m.acquireSend(ctx, "image", to)
	if err != nil {
		return "", err
	}
	defer release()

	imageUploaded, err := m.client.Upload(ctx, imageBytes, whatsmeow.MediaImage)
	if err != nil {
		log.SendOp("image", remoteJID.String()).WithError(err).Error("Failed to upload image")
		return "", err
	}
	imageThumbUploaded, err := m.client.Upload(ctx, imgThumbEncode.Bytes(), whatsmeow.MediaLinkThumbnail)
	if err != nil {
		log.SendOp("image", remoteJID.String()).WithError(err).Error("Failed to upload image thumbnail")
		return "", err
	}

	msgExtra := whatsmeow.SendRequestExtra{ID: m.client.GenerateMessageID()}
	msgContent := &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{
			URL:                 proto.String(imageUploaded.URL),
			DirectPath:          proto.String(imageUploaded.DirectPath),
			Mimetype:            proto.String(imageType),
			Caption:             proto.String(caption),
			FileLength:          proto.Uint64(imageUploaded.FileLength),
			FileSHA256:          imageUploaded.FileSHA256,
			FileEncSHA256:       imageUploaded.FileEncSHA256,
			MediaKey:            imageUploaded.MediaKey,
			JPEGThumbnail:       imgThumbEncode.Bytes(),
			ThumbnailDirectPath: &imageThumbUploaded.DirectPath,
			ThumbnailSHA256:     imageThumbUploaded.FileSHA256,
			ThumbnailEncSHA256:  imageThumbUploaded.FileEncSHA256,
		},
	}
	if _, err = m.client.SendMessage(ctx, remoteJID, msgContent, msgExtra); err != nil {
		log.SendOp("image", remoteJID.String()).WithError(err).Error("Failed to send image")
		return "", err
	}
	log.SendOp("image", remoteJID.String()).Info("Image sent")
	return msgExtra.ID, nil
}

// SendInvoice formats and delivers an invoice. With a PDF attached the
// invoice goes out as one document message carrying the formatted text as
// its caption; without one it is a plain text message.
func (m *Manager) SendInvoice(ctx context.Context, phone string, data InvoiceData, pdf []byte) (string, error) {
	message := FormatInvoiceMessage(data)
	if len(pdf) == 0 {
		return m.SendText(ctx, phone, message)
	}
	doc := Document{
		Bytes:    pdf,
		MimeType: "application/pdf",
		FileName: "Invoice_" + strconv.FormatInt(data.SaleID, 10) + ".pdf",
	}
	return m.SendDocument(ctx, phone, doc, message)
}

// SendLowStockReport formats and delivers a low-stock report.
func (m *Manager) SendLowStockReport(ctx context.Context, phone string, products []LowStockProduct) (string, error) {
	if len(products) == 0 {
		return "", errors.New("no products to report")
	}
	return m.SendText(ctx, phone, FormatLowStockReport(products))
}

// sendReminder delivers one payment reminder for a follow-up entry. The
// wording matches the reminder about to be sent, not the count already sent.
func (m *Manager) sendReminder(ctx context.Context, entry FollowUp) error {
	message := FormatPaymentReminderMessage(entry.OrderID, entry.CustomerName, entry.TotalAmount, entry.ReminderCount+1)
	_, err := m.SendText(ctx, entry.CustomerPhone, message)
	return err
}
