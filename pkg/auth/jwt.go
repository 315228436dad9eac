package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tambongslade/pos-whatsapp-gateway/pkg/env"
)

// JWTSecretKey for signing staff tokens
// REQUIRED: Application will panic if not set
var JWTSecretKey string

func init() {
	JWTSecretKey = env.MustGetEnvString("JWT_SECRET_KEY")
}

// StaffTokenClaims represents the claims in a staff JWT
type StaffTokenClaims struct {
	StaffName string `json:"staff_name"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateStaffToken creates a JWT for a POS staff member. Tokens expire
// after ttl; zero means no expiry.
func GenerateStaffToken(staffName string, role string, ttl time.Duration) (string, error) {
	if JWTSecretKey == "" {
		return "", errors.New("JWT_SECRET_KEY not configured")
	}

	switch role {
	case RoleAdmin, RoleManager, RoleCashier:
	default:
		return "", errors.New("unknown staff role: " + role)
	}

	claims := StaffTokenClaims{
		StaffName: staffName,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   staffName,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(JWTSecretKey))
}

// ValidateStaffToken validates a staff JWT and returns the claims
func ValidateStaffToken(tokenString string) (*StaffTokenClaims, error) {
	if JWTSecretKey == "" {
		return nil, errors.New("JWT_SECRET_KEY not configured")
	}

	token, err := jwt.ParseWithClaims(tokenString, &StaffTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(JWTSecretKey), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*StaffTokenClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token claims")
}
