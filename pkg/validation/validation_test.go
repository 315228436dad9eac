package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePhone(t *testing.T) {
	assert.NoError(t, ValidatePhone("670527426"))
	assert.NoError(t, ValidatePhone("237670527426"))
	assert.Error(t, ValidatePhone(""))
	assert.Error(t, ValidatePhone("012345"))
	assert.Error(t, ValidatePhone("not-a-phone"))
	assert.Error(t, ValidatePhone("12345678901234567"))
}

func TestValidateOrderID(t *testing.T) {
	assert.NoError(t, ValidateOrderID(1))
	assert.Error(t, ValidateOrderID(0))
	assert.Error(t, ValidateOrderID(-5))
}

func TestValidateAmount(t *testing.T) {
	assert.NoError(t, ValidateAmount(0))
	assert.NoError(t, ValidateAmount(4500.5))
	assert.Error(t, ValidateAmount(-1))
}

func TestValidateRole(t *testing.T) {
	assert.NoError(t, ValidateRole("admin"))
	assert.NoError(t, ValidateRole("manager"))
	assert.NoError(t, ValidateRole("cashier"))
	assert.Error(t, ValidateRole("root"))
	assert.Error(t, ValidateRole(""))
}
