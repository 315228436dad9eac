package validation

import (
	"errors"
	"regexp"
	"strings"
)

var (
	phonePattern = regexp.MustCompile(`^[1-9][0-9]{5,15}$`)
)

// ValidatePhone ensures international format (no leading 0, digits only, length 6-16).
func ValidatePhone(phone string) error {
	trimmed := strings.TrimSpace(phone)
	if trimmed == "" {
		return errors.New("phone number cannot be empty")
	}
	if strings.HasPrefix(trimmed, "+") {
		trimmed = trimmed[1:]
	}
	if strings.HasPrefix(trimmed, "0") {
		return errors.New("phone number must be in international format without leading 0")
	}
	if !phonePattern.MatchString(trimmed) {
		return errors.New("phone number must be digits only and at least 6 characters")
	}
	return nil
}

// ValidateOrderID ensures a positive order identifier.
func ValidateOrderID(orderID int64) error {
	if orderID <= 0 {
		return errors.New("order_id must be a positive integer")
	}
	return nil
}

// ValidateAmount rejects negative monetary values.
func ValidateAmount(amount float64) error {
	if amount < 0 {
		return errors.New("amount cannot be negative")
	}
	return nil
}

// ValidateRole ensures a staff role is one of the known values.
func ValidateRole(role string) error {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "admin", "manager", "cashier":
		return nil
	}
	return errors.New("role must be one of admin, manager, cashier")
}
