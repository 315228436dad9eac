package whatsapp

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountUnmarshal(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  float64
	}{
		{"number", `12.5`, 12.5},
		{"quoted number", `"12.5"`, 12.5},
		{"integer string", `"1500"`, 1500},
		{"non-numeric", `"abc"`, 0},
		{"empty string", `""`, 0},
		{"null", `null`, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var a Amount
			require.NoError(t, json.Unmarshal([]byte(tc.input), &a))
			assert.Equal(t, tc.want, a.Value())
		})
	}
}

func TestFormatInvoiceMessage(t *testing.T) {
	data := InvoiceData{
		SaleID:       42,
		OrderID:      7,
		Date:         time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC),
		CustomerName: "Alice",
		CashierName:  "Bob",
		StoreName:    "Main Store",
		Items: []InvoiceItem{
			{ProductName: "Soap", Quantity: 2, UnitPrice: 500, Total: 1000},
			{ProductName: "Rice 5kg", Quantity: 1, UnitPrice: 3500, Total: 3500},
		},
		AmountPaid:    4500,
		PaymentMethod: "CASH",
		Notes:         "Deliver before noon",
	}

	message := FormatInvoiceMessage(data)

	t.Run("renders all sections", func(t *testing.T) {
		assert.Contains(t, message, "INVOICE - Main Store")
		assert.Contains(t, message, "15/03/2025")
		assert.Contains(t, message, "Sale ID: #42")
		assert.Contains(t, message, "Order ID: #7")
		assert.Contains(t, message, "Customer: Alice")
		assert.Contains(t, message, "Cashier: Bob")
		assert.Contains(t, message, "Qty: 2 × 500.00 XAF = 1000.00 XAF")
		assert.Contains(t, message, "TOTAL: 4500.00 XAF")
		assert.Contains(t, message, "Payment: CASH")
		assert.Contains(t, message, "Notes: Deliver before noon")
	})

	t.Run("deterministic output", func(t *testing.T) {
		assert.Equal(t, message, FormatInvoiceMessage(data))
	})

	t.Run("defaults for missing names", func(t *testing.T) {
		blank := data
		blank.CustomerName = ""
		blank.CashierName = "  "
		blank.StoreName = ""
		rendered := FormatInvoiceMessage(blank)
		assert.Contains(t, rendered, "Customer: Walk-in Customer")
		assert.Contains(t, rendered, "Cashier: Unknown")
		assert.Contains(t, rendered, "INVOICE - Unknown")
	})

	t.Run("no notes section when empty", func(t *testing.T) {
		noNotes := data
		noNotes.Notes = ""
		assert.NotContains(t, FormatInvoiceMessage(noNotes), "Notes:")
	})
}

func TestFormatPaymentReminderMessage(t *testing.T) {
	first := FormatPaymentReminderMessage(7, "Alice", 4500, 1)
	second := FormatPaymentReminderMessage(7, "Alice", 4500, 2)
	final := FormatPaymentReminderMessage(7, "Alice", 4500, 3)

	for _, message := range []string{first, second, final} {
		assert.Contains(t, message, "Order ID: #7")
		assert.Contains(t, message, "4500.00 XAF")
		assert.Contains(t, message, "Hi Alice!")
	}

	assert.Contains(t, first, "Please complete your payment")
	assert.Contains(t, second, "second reminder")
	assert.Contains(t, second, "within 24 hours")
	assert.Contains(t, final, "Final reminder")

	assert.NotEqual(t, first, second)
	assert.NotEqual(t, second, final)
}

func TestFormatLowStockReport(t *testing.T) {
	products := []LowStockProduct{
		{ID: 1, Name: "Soap", StoreName: "Main Store", Stock: 2, Threshold: 5},
		{ID: 2, Name: "Rice 5kg", Stock: 0, Threshold: 10},
	}

	report := FormatLowStockReport(products)

	assert.Contains(t, report, "Low Stock Report")
	assert.Contains(t, report, "*Soap* (ID: 1)")
	assert.Contains(t, report, "Current Stock: *2*")
	assert.Contains(t, report, "Threshold: 5")
	assert.Contains(t, report, "Store: N/A")
	assert.Equal(t, 2, strings.Count(report, "📦"))
}

func TestFormatDeletionNotice(t *testing.T) {
	t.Run("known content", func(t *testing.T) {
		notice := formatDeletionNotice("Alice", "Bob", "123@g.us", "hello", true)
		assert.Contains(t, notice, "Alice")
		assert.Contains(t, notice, "Bob")
		assert.Contains(t, notice, `"hello"`)
	})

	t.Run("unknown content is reported, not omitted", func(t *testing.T) {
		notice := formatDeletionNotice("Alice", "", "123@g.us", "", false)
		assert.Contains(t, notice, "was not in cache")
		assert.NotContains(t, notice, `""`)
	})
}
