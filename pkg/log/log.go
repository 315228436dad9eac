package log

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

var logger = logrus.New()

func init() {
	logger.Formatter = &logrus.TextFormatter{
		TimestampFormat: time.RFC3339,
		FullTimestamp:   true,
		DisableColors:   false,
		ForceColors:     true,
	}
}

func Print(c *fiber.Ctx) *logrus.Entry {
	if c == nil {
		return logger.WithFields(logrus.Fields{})
	}

	remoteIP := c.IP()
	if v := c.Locals("remote_ip"); v != nil {
		if ip, ok := v.(string); ok && ip != "" {
			remoteIP = ip
		}
	}
	return logger.WithFields(logrus.Fields{
		"remote_ip": remoteIP,
		"method":    c.Method(),
		"uri":       c.OriginalURL(),
	})
}

// SessionOp scopes a log entry to a connection lifecycle operation.
func SessionOp(op string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"component": "session",
		"op":        op,
	})
}

// SendOp scopes a log entry to an outbound send.
func SendOp(op string, to string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"component": "dispatch",
		"op":        op,
		"to":        MaskJID(to),
	})
}

// FollowUpOp scopes a log entry to a payment follow-up operation.
func FollowUpOp(op string, orderID int64) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"component": "followup",
		"op":        op,
		"order_id":  orderID,
	})
}

// MaskJID hides the last digits of a phone-shaped identifier in logs.
func MaskJID(jid string) string {
	if len(jid) < 4 {
		return jid
	}
	return jid[0:len(jid)-4] + "xxxx"
}
