package auth

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/tambongslade/pos-whatsapp-gateway/pkg/router"
)

// AdminAuth validates the X-Admin-Secret header for operator endpoints
func AdminAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		adminSecret := c.Get("X-Admin-Secret")
		if adminSecret == "" {
			return router.ResponseUnauthorized(c, "Missing X-Admin-Secret header")
		}

		if AdminSecretKey == "" {
			return router.ResponseInternalError(c, "Admin secret key not configured")
		}

		if subtle.ConstantTimeCompare([]byte(adminSecret), []byte(AdminSecretKey)) != 1 {
			return router.ResponseUnauthorized(c, "Invalid admin secret")
		}

		return c.Next()
	}
}

// StaffAuth validates the JWT token from Authorization header and, when roles
// are given, requires the token's role to be one of them. No roles means any
// authenticated staff member.
// Token format: "Bearer <jwt_token>"
func StaffAuth(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return router.ResponseUnauthorized(c, "Missing Authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return router.ResponseUnauthorized(c, "Invalid Authorization header format. Use: Bearer <token>")
		}

		tokenString := parts[1]
		if tokenString == "" {
			return router.ResponseUnauthorized(c, "Missing token")
		}

		claims, err := ValidateStaffToken(tokenString)
		if err != nil {
			return router.ResponseUnauthorized(c, "Invalid or expired token")
		}

		if len(allowed) > 0 {
			if _, ok := allowed[claims.Role]; !ok {
				return router.ResponseForbidden(c, "Role "+claims.Role+" is not allowed for this operation")
			}
		}

		c.Locals("staff_name", claims.StaffName)
		c.Locals("staff_role", claims.Role)

		return c.Next()
	}
}
