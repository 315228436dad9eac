package auth

import (
	"time"

	"github.com/gofiber/fiber/v2"

	typGateway "github.com/tambongslade/pos-whatsapp-gateway/internal/types"
	pkgAuth "github.com/tambongslade/pos-whatsapp-gateway/pkg/auth"
	"github.com/tambongslade/pos-whatsapp-gateway/pkg/log"
	"github.com/tambongslade/pos-whatsapp-gateway/pkg/router"
	"github.com/tambongslade/pos-whatsapp-gateway/pkg/validation"
)

const defaultTokenTTL = 12 * time.Hour

// IssueStaffToken mints a JWT for a staff member. The route is guarded by the
// admin secret; tokens are how the POS backend authenticates to the gateway.
func IssueStaffToken(c *fiber.Ctx) error {
	var req typGateway.RequestStaffToken
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed to parse body request")
	}
	if req.StaffName == "" {
		return router.ResponseBadRequest(c, "staff_name is required")
	}
	if err := validation.ValidateRole(req.Role); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	ttl := defaultTokenTTL
	if req.TTLMinutes > 0 {
		ttl = time.Duration(req.TTLMinutes) * time.Minute
	}

	token, err := pkgAuth.GenerateStaffToken(req.StaffName, req.Role, ttl)
	if err != nil {
		return router.ResponseInternalError(c, err.Error())
	}

	log.Print(c).WithField("staff_name", req.StaffName).WithField("role", req.Role).Info("Issued staff token")
	return router.ResponseCreatedWithData(c, "Staff token issued", fiber.Map{
		"token":      token,
		"expires_in": int(ttl.Seconds()),
	})
}
