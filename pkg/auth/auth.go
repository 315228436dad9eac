package auth

import (
	"github.com/tambongslade/pos-whatsapp-gateway/pkg/env"
)

// Staff roles carried in token claims, mirroring the POS personnel roles.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleCashier = "cashier"
)

// AdminSecretKey guards operator endpoints (session reset, token minting)
var AdminSecretKey string

func init() {
	AdminSecretKey, _ = env.GetEnvString("ADMIN_SECRET_KEY")
}
