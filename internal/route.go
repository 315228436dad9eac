package internal

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tambongslade/pos-whatsapp-gateway/pkg/auth"
	"github.com/tambongslade/pos-whatsapp-gateway/pkg/router"

	ctlAuth "github.com/tambongslade/pos-whatsapp-gateway/internal/auth"
	ctlFollowUp "github.com/tambongslade/pos-whatsapp-gateway/internal/followup"
	ctlIndex "github.com/tambongslade/pos-whatsapp-gateway/internal/index"
	ctlInvoice "github.com/tambongslade/pos-whatsapp-gateway/internal/invoice"
	ctlMessaging "github.com/tambongslade/pos-whatsapp-gateway/internal/messaging"
	ctlSession "github.com/tambongslade/pos-whatsapp-gateway/internal/session"
)

func Routes(app *fiber.App) {
	// Route for Index
	// ---------------------------------------------
	if router.BaseURL == "" {
		app.Get("/", ctlIndex.Index)
	} else {
		app.Get(router.BaseURL, ctlIndex.Index)
		app.Get(router.BaseURL+"/", ctlIndex.Index)
	}

	// ============================================================
	// ADMIN ROUTES (X-Admin-Secret authentication)
	// ============================================================
	adminMiddleware := auth.AdminAuth()

	app.Post(router.BaseURL+"/auth/staff-tokens", adminMiddleware, ctlAuth.IssueStaffToken)
	app.Post(router.BaseURL+"/whatsapp/session/restart", adminMiddleware, ctlSession.Restart)
	app.Delete(router.BaseURL+"/whatsapp/session", adminMiddleware, ctlSession.Logout)

	// ============================================================
	// STAFF ROUTES (Bearer JWT authentication)
	// ============================================================
	anyStaff := auth.StaffAuth(auth.RoleAdmin, auth.RoleManager, auth.RoleCashier)
	managerUp := auth.StaffAuth(auth.RoleAdmin, auth.RoleManager)

	// Session observability
	app.Get(router.BaseURL+"/whatsapp/status", anyStaff, ctlSession.Status)
	app.Get(router.BaseURL+"/whatsapp/qr-code", anyStaff, ctlSession.QRCode)
	app.Get(router.BaseURL+"/whatsapp/qr-code/image", anyStaff, ctlSession.QRCodeImage)

	// Raw outbound messaging
	app.Post(router.BaseURL+"/whatsapp/messages/text", anyStaff, ctlMessaging.SendText)
	app.Post(router.BaseURL+"/whatsapp/messages/document", anyStaff, ctlMessaging.SendDocument)
	app.Post(router.BaseURL+"/whatsapp/messages/image", anyStaff, ctlMessaging.SendImage)

	// Invoices and reports
	app.Post(router.BaseURL+"/whatsapp/invoices", anyStaff, ctlInvoice.Send)
	app.Post(router.BaseURL+"/whatsapp/reports/low-stock", anyStaff, ctlInvoice.SendLowStockReport)

	// Payment follow-ups
	app.Post(router.BaseURL+"/whatsapp/follow-ups", anyStaff, ctlFollowUp.Register)
	app.Get(router.BaseURL+"/whatsapp/follow-ups", managerUp, ctlFollowUp.List)
	app.Get(router.BaseURL+"/whatsapp/follow-ups/analytics", managerUp, ctlFollowUp.Analytics)
	app.Get(router.BaseURL+"/whatsapp/follow-ups/:order_id", anyStaff, ctlFollowUp.Get)
	app.Post(router.BaseURL+"/whatsapp/follow-ups/:order_id/remind", anyStaff, ctlFollowUp.Remind)
	app.Delete(router.BaseURL+"/whatsapp/follow-ups/:order_id", managerUp, ctlFollowUp.Remove)
}
