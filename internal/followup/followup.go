package followup

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	typGateway "github.com/tambongslade/pos-whatsapp-gateway/internal/types"
	"github.com/tambongslade/pos-whatsapp-gateway/pkg/router"
	"github.com/tambongslade/pos-whatsapp-gateway/pkg/validation"
	"github.com/tambongslade/pos-whatsapp-gateway/pkg/whatsapp"
)

var gateway *whatsapp.Manager

func Init(m *whatsapp.Manager) {
	gateway = m
}

func parseOrderID(c *fiber.Ctx) (int64, error) {
	orderID, err := strconv.ParseInt(c.Params("order_id"), 10, 64)
	if err != nil {
		return 0, err
	}
	return orderID, validation.ValidateOrderID(orderID)
}

// Register adds a pending payment follow-up. Re-registering an order resets
// its escalation, which matches a customer placing the order again.
func Register(c *fiber.Ctx) error {
	var req typGateway.RequestFollowUp
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed to parse body request")
	}
	if err := validation.ValidateOrderID(req.OrderID); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	if err := validation.ValidatePhone(req.CustomerPhone); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	if err := validation.ValidateAmount(req.TotalAmount.Value()); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	entry := gateway.FollowUps().Add(req.OrderID, req.CustomerPhone, req.CustomerName, req.TotalAmount.Value())
	return router.ResponseCreatedWithData(c, "Follow-up registered", entry)
}

func List(c *fiber.Ctx) error {
	store := gateway.FollowUps()
	return router.ResponseSuccessWithData(c, "Pending payment follow-ups", fiber.Map{
		"entries": store.List(),
		"summary": store.Summary(),
	})
}

func Analytics(c *fiber.Ctx) error {
	days := c.QueryInt("days", 30)
	return router.ResponseSuccessWithData(c, "Follow-up analytics", gateway.FollowUps().Analytics(days))
}

func Get(c *fiber.Ctx) error {
	orderID, err := parseOrderID(c)
	if err != nil {
		return router.ResponseBadRequest(c, "order_id must be a positive integer")
	}
	entry, ok := gateway.FollowUps().Get(orderID)
	if !ok {
		return router.ResponseNotFound(c, "No follow-up registered for this order")
	}
	return router.ResponseSuccessWithData(c, "Follow-up entry", entry)
}

// Remind sends an immediate out-of-schedule reminder and advances the
// escalation on success.
func Remind(c *fiber.Ctx) error {
	orderID, err := parseOrderID(c)
	if err != nil {
		return router.ResponseBadRequest(c, "order_id must be a positive integer")
	}
	entry, err := gateway.RemindNow(c.UserContext(), orderID)
	if err != nil {
		return router.ResponseInternalError(c, err.Error())
	}
	return router.ResponseSuccessWithData(c, "Reminder sent", entry)
}

// Remove drops a follow-up, normally on payment confirmation.
func Remove(c *fiber.Ctx) error {
	orderID, err := parseOrderID(c)
	if err != nil {
		return router.ResponseBadRequest(c, "order_id must be a positive integer")
	}
	if !gateway.FollowUps().Remove(orderID) {
		return router.ResponseNotFound(c, "No follow-up registered for this order")
	}
	return router.ResponseSuccess(c, "Follow-up removed")
}
